package eval

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/modelbench-ai/modelbench/engine/pkg/types"
)

// tokenizedRequest is the immutable post-tokenization stage of a request.
// The engine builds one per input request and never mutates it afterwards;
// the caller's request values are left untouched.
type tokenizedRequest struct {
	kind         types.RequestKind
	context      string
	choice       string
	stop         []string
	maxNewTokens int
	// contextTokens and continuation are populated for the two
	// log-likelihood kinds. continuation's length drives the decoder's
	// prefill slicing.
	contextTokens []int
	continuation  []int
}

// callParams are the concrete parameters handed to the endpoint client for
// one request.
type callParams struct {
	prompt       string
	stop         []string
	maxNewTokens int
}

// buildParams maps a tokenized request onto endpoint call parameters.
// Greedy calls pass the context with the request's stop sequences; scoring
// calls append the choice (plain log-likelihood) or pass the bare context
// (rolling), with no stop sequences and a single forced token.
func buildParams(req tokenizedRequest) callParams {
	switch req.kind {
	case types.KindGreedy:
		return callParams{
			prompt:       req.context,
			stop:         req.stop,
			maxNewTokens: req.maxNewTokens,
		}
	case types.KindLoglikelihood:
		return callParams{
			prompt:       req.context + req.choice,
			stop:         []string{},
			maxNewTokens: 1,
		}
	case types.KindLoglikelihoodRolling:
		return callParams{
			prompt:       req.context,
			stop:         []string{},
			maxNewTokens: 1,
		}
	default:
		// KindLoglikelihoodSingleToken is rejected before dispatch.
		panic("eval: unreachable request kind " + string(req.kind))
	}
}

// dispatchSequential issues the batch's calls one at a time. A failure on
// any request aborts the batch: no partial results are returned.
// offset is the batch's start index in the caller's request slice, used to
// report the global index of a failing request.
func (e *Engine) dispatchSequential(ctx context.Context, batch []tokenizedRequest, offset int) ([]*types.RawResponse, error) {
	responses := make([]*types.RawResponse, len(batch))
	for i, req := range batch {
		p := buildParams(req)
		resp, err := e.client.Generate(ctx, p.prompt, p.stop, p.maxNewTokens)
		if err != nil {
			return nil, &types.EvalError{
				Kind:        types.ErrKindRemoteCall,
				RequestKind: req.kind,
				Index:       offset + i,
				Err:         err,
			}
		}
		responses[i] = resp
	}
	return responses, nil
}

// dispatchConcurrent issues all of the batch's calls at once and joins on
// completion. The join is fail-fast: the first failure cancels the group's
// context and the whole batch returns zero results. Response order equals
// input order regardless of completion order.
func (e *Engine) dispatchConcurrent(ctx context.Context, batch []tokenizedRequest, offset int) ([]*types.RawResponse, error) {
	responses := make([]*types.RawResponse, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range batch {
		g.Go(func() error {
			p := buildParams(req)
			resp, err := e.client.Generate(gctx, p.prompt, p.stop, p.maxNewTokens)
			if err != nil {
				return &types.EvalError{
					Kind:        types.ErrKindRemoteCall,
					RequestKind: req.kind,
					Index:       offset + i,
					Err:         err,
				}
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

// dispatchBatch runs one batch in the engine's configured mode.
func (e *Engine) dispatchBatch(ctx context.Context, batch []tokenizedRequest, offset int) ([]*types.RawResponse, error) {
	if e.cfg.Concurrent {
		return e.dispatchConcurrent(ctx, batch, offset)
	}
	return e.dispatchSequential(ctx, batch, offset)
}
