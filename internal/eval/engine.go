package eval

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelbench-ai/modelbench/engine/pkg/types"
)

const (
	// DefaultSplitCount is the number of progress-reporting partitions a
	// request collection is divided into.
	DefaultSplitCount = 4
	// DefaultBatchSize bounds how many requests are in flight per batch.
	DefaultBatchSize = 50
)

// Client is the endpoint capability the engine dispatches against: one
// network round-trip per call, no retry. The handle is shared read-only by
// all concurrent calls in a batch, so implementations must be safe for
// concurrent use.
type Client interface {
	Generate(ctx context.Context, prompt string, stop []string, maxNewTokens int) (*types.RawResponse, error)
}

// Tokenizer is the encode capability used to populate token fields before
// dispatch.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	EOSToken() string
	EOSTokenID() int
}

// Config holds the engine's dispatch settings. Dispatch mode is fixed per
// engine value, not process-wide state, so concurrent evaluation runs cannot
// interfere with one another.
type Config struct {
	// SplitCount is the number of progress partitions. Defaults to
	// DefaultSplitCount.
	SplitCount int
	// BatchSize is the per-batch concurrency/memory unit. Defaults to
	// DefaultBatchSize.
	BatchSize int
	// Concurrent selects fan-out dispatch within each batch. Batches and
	// splits always progress sequentially.
	Concurrent bool
	// WantLogits includes prefill log-probabilities in greedy results.
	WantLogits bool
	// Logger receives split/batch progress. Defaults to slog.Default().
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.SplitCount <= 0 {
		c.SplitCount = DefaultSplitCount
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Engine batches evaluation requests, dispatches them against a remote
// endpoint, and decodes the token-level responses into typed results.
// Results come back in input order: one result per request, same ordinal
// position.
type Engine struct {
	client Client
	tok    Tokenizer
	cfg    Config
	stats  *Stats
}

// New creates an engine bound to an endpoint client and tokenizer. The
// client handle and dispatch mode are fixed for the engine's lifetime.
func New(client Client, tok Tokenizer, cfg Config) *Engine {
	return &Engine{
		client: client,
		tok:    tok,
		cfg:    cfg.withDefaults(),
		stats:  &Stats{},
	}
}

// Stats returns a snapshot of the engine's dispatch counters.
func (e *Engine) Stats() StatsSnapshot { return e.stats.Snapshot() }

// RunGreedy generates greedily for each request. Every request's stop
// sequences are augmented with the tokenizer's end-of-sequence token, after
// the caller's own stop sequences.
func (e *Engine) RunGreedy(ctx context.Context, requests []types.GreedyRequest) ([]types.GenerateResult, error) {
	eos := e.tok.EOSToken()
	tokenized := make([]tokenizedRequest, len(requests))
	for i, req := range requests {
		stop := make([]string, 0, len(req.StopSequences)+1)
		stop = append(stop, req.StopSequences...)
		stop = append(stop, eos)
		tokenized[i] = tokenizedRequest{
			kind:         types.KindGreedy,
			context:      req.Context,
			stop:         stop,
			maxNewTokens: req.MaxNewTokens,
		}
	}

	results := make([]types.GenerateResult, 0, len(requests))
	err := e.run(ctx, types.KindGreedy, tokenized, func(_ tokenizedRequest, resp *types.RawResponse) {
		results = append(results, DecodeGreedy(resp, e.cfg.WantLogits))
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// RunLoglikelihood scores each request's choice as a continuation of its
// context.
func (e *Engine) RunLoglikelihood(ctx context.Context, requests []types.LoglikelihoodRequest) ([]types.LoglikelihoodResult, error) {
	tokenized := make([]tokenizedRequest, len(requests))
	for i, req := range requests {
		contextTokens, err := e.tok.Encode(req.Context)
		if err != nil {
			return nil, tokenizationError(types.KindLoglikelihood, i, err)
		}
		continuation, err := e.tok.Encode(req.Choice)
		if err != nil {
			return nil, tokenizationError(types.KindLoglikelihood, i, err)
		}
		tokenized[i] = tokenizedRequest{
			kind:          types.KindLoglikelihood,
			context:       req.Context,
			choice:        req.Choice,
			contextTokens: contextTokens,
			continuation:  continuation,
		}
	}

	return e.runLoglikelihood(ctx, types.KindLoglikelihood, tokenized)
}

// RunLoglikelihoodRolling scores each request's whole context, primed by a
// single end-of-sequence token as the only true context.
func (e *Engine) RunLoglikelihoodRolling(ctx context.Context, requests []types.LoglikelihoodRollingRequest) ([]types.LoglikelihoodResult, error) {
	tokenized := make([]tokenizedRequest, len(requests))
	for i, req := range requests {
		continuation, err := e.tok.Encode(req.Context)
		if err != nil {
			return nil, tokenizationError(types.KindLoglikelihoodRolling, i, err)
		}
		tokenized[i] = tokenizedRequest{
			kind:          types.KindLoglikelihoodRolling,
			context:       req.Context,
			contextTokens: []int{e.tok.EOSTokenID()},
			continuation:  continuation,
		}
	}

	return e.runLoglikelihood(ctx, types.KindLoglikelihoodRolling, tokenized)
}

// RunLoglikelihoodSingleToken always fails: single-token scoring cannot be
// served through the generate transport. No remote calls are issued.
func (e *Engine) RunLoglikelihoodSingleToken(_ context.Context, _ []types.LoglikelihoodSingleTokenRequest) ([]types.LoglikelihoodResult, error) {
	return nil, &types.EvalError{
		Kind:        types.ErrKindUnsupportedCapability,
		RequestKind: types.KindLoglikelihoodSingleToken,
		Index:       -1,
		Err:         errors.New("endpoint models cannot use single-token metrics; change the metric to the standard version"),
	}
}

// runLoglikelihood drives dispatch and decoding for both log-likelihood
// kinds, which share a result shape but not slicing rules.
func (e *Engine) runLoglikelihood(ctx context.Context, kind types.RequestKind, tokenized []tokenizedRequest) ([]types.LoglikelihoodResult, error) {
	results := make([]types.LoglikelihoodResult, 0, len(tokenized))
	err := e.run(ctx, kind, tokenized, func(req tokenizedRequest, resp *types.RawResponse) {
		if kind == types.KindLoglikelihoodRolling {
			results = append(results, DecodeLoglikelihoodRolling(resp))
		} else {
			results = append(results, DecodeLoglikelihood(resp, len(req.continuation)))
		}
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// run executes the batch plan split by split, batch by batch, invoking
// decode once per response in input order. Splits and batches never overlap;
// the only fan-out happens inside a single batch in concurrent mode.
func (e *Engine) run(ctx context.Context, kind types.RequestKind, tokenized []tokenizedRequest, decode func(tokenizedRequest, *types.RawResponse)) error {
	plan := NewPlan(len(tokenized), e.cfg.SplitCount, e.cfg.BatchSize)

	for si, split := range plan.Splits {
		e.cfg.Logger.Info("processing split",
			"kind", string(kind),
			"split", si+1,
			"splits", len(plan.Splits),
			"requests", split.Len(),
		)
		for _, batch := range split.Batches {
			responses, err := e.dispatchBatch(ctx, tokenized[batch.Start:batch.End], batch.Start)
			if err != nil {
				e.stats.RecordFailure()
				return err
			}
			e.stats.RecordBatch(len(responses))
			for i, resp := range responses {
				decode(tokenized[batch.Start+i], resp)
			}
		}
	}
	return nil
}

func tokenizationError(kind types.RequestKind, index int, err error) error {
	return &types.EvalError{
		Kind:        types.ErrKindTokenization,
		RequestKind: kind,
		Index:       index,
		Err:         err,
	}
}
