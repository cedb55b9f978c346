package eval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/modelbench-ai/modelbench/engine/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeTokenizer encodes one token per rune, with the rune value as token id.
type fakeTokenizer struct {
	failOn string
}

func (f *fakeTokenizer) Encode(text string) ([]int, error) {
	if f.failOn != "" && text == f.failOn {
		return nil, errors.New("unencodable text")
	}
	runes := []rune(text)
	tokens := make([]int, len(runes))
	for i, r := range runes {
		tokens[i] = int(r)
	}
	return tokens, nil
}

func (f *fakeTokenizer) Decode(tokens []int) (string, error) {
	runes := make([]rune, len(tokens))
	for i, tok := range tokens {
		runes[i] = rune(tok)
	}
	return string(runes), nil
}

func (f *fakeTokenizer) EOSToken() string { return "<eos>" }
func (f *fakeTokenizer) EOSTokenID() int  { return 2 }

// recordedCall captures the parameters of one Generate call.
type recordedCall struct {
	prompt       string
	stop         []string
	maxNewTokens int
}

// fakeClient synthesizes a deterministic RawResponse per prompt: the prefill
// has one token per rune (rune value as id, first logprob absent), the
// generated trace has three fixed tokens, and the generated text echoes the
// prompt. Safe for concurrent use.
type fakeClient struct {
	mu     sync.Mutex
	calls  []recordedCall
	failOn string
}

func (f *fakeClient) Generate(_ context.Context, prompt string, stop []string, maxNewTokens int) (*types.RawResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{prompt: prompt, stop: stop, maxNewTokens: maxNewTokens})
	f.mu.Unlock()

	if f.failOn != "" && prompt == f.failOn {
		return nil, errors.New("provider exploded")
	}

	runes := []rune(prompt)
	prefill := make([]types.Token, len(runes))
	for i, r := range runes {
		prefill[i] = types.Token{ID: int(r)}
		if i > 0 {
			v := -float64(i)
			prefill[i].Logprob = &v
		}
	}

	generated := make([]types.Token, 3)
	for i := range generated {
		v := -0.5 * float64(i+1)
		generated[i] = types.Token{ID: 1000 + i, Logprob: &v}
	}

	return &types.RawResponse{
		GeneratedText: "gen:" + prompt,
		Prefill:       prefill,
		Tokens:        generated,
	}, nil
}

func (f *fakeClient) numCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestEngine(t *testing.T, client Client, concurrent bool) *Engine {
	t.Helper()
	return New(client, &fakeTokenizer{}, Config{
		SplitCount: 2,
		BatchSize:  3,
		Concurrent: concurrent,
		Logger:     discardLogger(),
	})
}

func greedyRequests(n int) []types.GreedyRequest {
	requests := make([]types.GreedyRequest, n)
	for i := range requests {
		requests[i] = types.GreedyRequest{
			Context:      fmt.Sprintf("prompt-%02d", i),
			MaxNewTokens: 16,
		}
	}
	return requests
}

func TestRunGreedy_OrderPreserved(t *testing.T) {
	for _, mode := range []struct {
		name       string
		concurrent bool
	}{
		{"sequential", false},
		{"concurrent", true},
	} {
		t.Run(mode.name, func(t *testing.T) {
			client := &fakeClient{}
			engine := newTestEngine(t, client, mode.concurrent)

			requests := greedyRequests(11)
			results, err := engine.RunGreedy(context.Background(), requests)
			if err != nil {
				t.Fatalf("RunGreedy: %v", err)
			}

			if len(results) != len(requests) {
				t.Fatalf("got %d results for %d requests", len(results), len(requests))
			}
			for i, res := range results {
				want := "gen:" + requests[i].Context
				if res.Text != want {
					t.Errorf("results[%d].Text = %q, want %q", i, res.Text, want)
				}
			}
		})
	}
}

func TestRunGreedy_DispatchModeEquivalence(t *testing.T) {
	requests := greedyRequests(7)

	seq, err := newTestEngine(t, &fakeClient{}, false).RunGreedy(context.Background(), requests)
	if err != nil {
		t.Fatalf("sequential RunGreedy: %v", err)
	}
	conc, err := newTestEngine(t, &fakeClient{}, true).RunGreedy(context.Background(), requests)
	if err != nil {
		t.Fatalf("concurrent RunGreedy: %v", err)
	}

	if !reflect.DeepEqual(seq, conc) {
		t.Fatalf("sequential and concurrent results differ:\n%+v\n%+v", seq, conc)
	}
}

func TestRunGreedy_StopTokenAugmentation(t *testing.T) {
	client := &fakeClient{}
	engine := newTestEngine(t, client, false)

	_, err := engine.RunGreedy(context.Background(), []types.GreedyRequest{
		{Context: "hello", StopSequences: []string{"\n"}, MaxNewTokens: 8},
	})
	if err != nil {
		t.Fatalf("RunGreedy: %v", err)
	}

	if len(client.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(client.calls))
	}
	call := client.calls[0]
	wantStop := []string{"\n", "<eos>"}
	if !reflect.DeepEqual(call.stop, wantStop) {
		t.Errorf("stop = %v, want %v", call.stop, wantStop)
	}
	if call.maxNewTokens != 8 {
		t.Errorf("maxNewTokens = %d, want 8", call.maxNewTokens)
	}
}

func TestRunGreedy_Empty(t *testing.T) {
	client := &fakeClient{}
	engine := newTestEngine(t, client, false)

	results, err := engine.RunGreedy(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunGreedy: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("got %d results, want 0", len(results))
	}
	if client.numCalls() != 0 {
		t.Fatalf("issued %d calls for empty input", client.numCalls())
	}
}

func TestRunLoglikelihood_PromptAndSlicing(t *testing.T) {
	client := &fakeClient{}
	engine := newTestEngine(t, client, false)

	requests := []types.LoglikelihoodRequest{
		{Context: "the sky is ", Choice: "blue"},
		{Context: "water is ", Choice: "wet"},
	}
	results, err := engine.RunLoglikelihood(context.Background(), requests)
	if err != nil {
		t.Fatalf("RunLoglikelihood: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, call := range client.calls {
		wantPrompt := requests[i].Context + requests[i].Choice
		if call.prompt != wantPrompt {
			t.Errorf("call %d prompt = %q, want %q", i, call.prompt, wantPrompt)
		}
		if len(call.stop) != 0 {
			t.Errorf("call %d stop = %v, want empty", i, call.stop)
		}
		if call.maxNewTokens != 1 {
			t.Errorf("call %d maxNewTokens = %d, want 1", i, call.maxNewTokens)
		}
	}

	// The fake prefill has one token per prompt rune, so the scored tail
	// must be exactly the choice's runes.
	for i, res := range results {
		choiceRunes := []rune(requests[i].Choice)
		if len(res.GeneratedTokenIDs) != len(choiceRunes) {
			t.Fatalf("results[%d]: %d generated token ids, want %d", i, len(res.GeneratedTokenIDs), len(choiceRunes))
		}
		for j, id := range res.GeneratedTokenIDs {
			if id != int(choiceRunes[j]) {
				t.Errorf("results[%d].GeneratedTokenIDs[%d] = %d, want %d", i, j, id, int(choiceRunes[j]))
			}
		}
		if len(res.Logprobs) != len(choiceRunes) {
			t.Errorf("results[%d]: %d logprobs, want %d", i, len(res.Logprobs), len(choiceRunes))
		}
		if len(res.InputTokenIDs) != len([]rune(requests[i].Context)) {
			t.Errorf("results[%d]: %d input token ids, want %d", i, len(res.InputTokenIDs), len([]rune(requests[i].Context)))
		}
	}
}

func TestRunLoglikelihoodRolling(t *testing.T) {
	client := &fakeClient{}
	engine := newTestEngine(t, client, false)

	results, err := engine.RunLoglikelihoodRolling(context.Background(), []types.LoglikelihoodRollingRequest{
		{Context: "abc"},
	})
	if err != nil {
		t.Fatalf("RunLoglikelihoodRolling: %v", err)
	}

	call := client.calls[0]
	if call.prompt != "abc" {
		t.Errorf("prompt = %q, want %q", call.prompt, "abc")
	}
	if call.maxNewTokens != 1 {
		t.Errorf("maxNewTokens = %d, want 1", call.maxNewTokens)
	}

	// The fake returns 3 generated tokens; rolling decode drops the last.
	res := results[0]
	if len(res.GeneratedTokenIDs) != 2 {
		t.Fatalf("%d generated token ids, want 2", len(res.GeneratedTokenIDs))
	}
	if len(res.Logprobs) != 2 {
		t.Fatalf("%d logprobs, want 2", len(res.Logprobs))
	}
	// Input ids are the full prefill: one per context rune.
	if len(res.InputTokenIDs) != 3 {
		t.Fatalf("%d input token ids, want 3", len(res.InputTokenIDs))
	}
}

func TestRunLoglikelihoodSingleToken_AlwaysFails(t *testing.T) {
	client := &fakeClient{}
	engine := newTestEngine(t, client, false)

	_, err := engine.RunLoglikelihoodSingleToken(context.Background(), []types.LoglikelihoodSingleTokenRequest{
		{Context: "x", Choices: []string{"a", "b"}},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !types.IsKind(err, types.ErrKindUnsupportedCapability) {
		t.Fatalf("error kind = %v, want unsupported capability", err)
	}
	if client.numCalls() != 0 {
		t.Fatalf("issued %d remote calls, want 0", client.numCalls())
	}
}

func TestDispatch_FailureDiscardsBatch(t *testing.T) {
	for _, mode := range []struct {
		name       string
		concurrent bool
	}{
		{"sequential", false},
		{"concurrent", true},
	} {
		t.Run(mode.name, func(t *testing.T) {
			client := &fakeClient{failOn: "prompt-01"}
			// One split, one batch of three, second request fails.
			engine := New(client, &fakeTokenizer{}, Config{
				SplitCount: 1,
				BatchSize:  3,
				Concurrent: mode.concurrent,
				Logger:     discardLogger(),
			})

			results, err := engine.RunGreedy(context.Background(), greedyRequests(3))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if results != nil {
				t.Fatalf("got %d partial results, want none", len(results))
			}

			if !types.IsKind(err, types.ErrKindRemoteCall) {
				t.Fatalf("error kind = %v, want remote call failure", err)
			}
			var ee *types.EvalError
			if !errors.As(err, &ee) {
				t.Fatalf("error %v is not an EvalError", err)
			}
			if ee.Index != 1 {
				t.Errorf("failing index = %d, want 1", ee.Index)
			}
			if ee.RequestKind != types.KindGreedy {
				t.Errorf("request kind = %q, want greedy", ee.RequestKind)
			}
		})
	}
}

func TestRunLoglikelihood_TokenizationFailure(t *testing.T) {
	client := &fakeClient{}
	engine := New(client, &fakeTokenizer{failOn: "bad"}, Config{SplitCount: 1, BatchSize: 3, Logger: discardLogger()})

	_, err := engine.RunLoglikelihood(context.Background(), []types.LoglikelihoodRequest{
		{Context: "fine", Choice: "ok"},
		{Context: "bad", Choice: "ok"},
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !types.IsKind(err, types.ErrKindTokenization) {
		t.Fatalf("error kind = %v, want tokenization failure", err)
	}
	var ee *types.EvalError
	if !errors.As(err, &ee) {
		t.Fatalf("error %v is not an EvalError", err)
	}
	if ee.Index != 1 {
		t.Errorf("failing index = %d, want 1", ee.Index)
	}
	if client.numCalls() != 0 {
		t.Fatalf("issued %d remote calls before dispatch, want 0", client.numCalls())
	}
}

func TestEngine_Stats(t *testing.T) {
	client := &fakeClient{}
	engine := newTestEngine(t, client, false)

	if _, err := engine.RunGreedy(context.Background(), greedyRequests(5)); err != nil {
		t.Fatalf("RunGreedy: %v", err)
	}

	stats := engine.Stats()
	if stats.RequestsDispatched != 5 {
		t.Errorf("requests dispatched = %d, want 5", stats.RequestsDispatched)
	}
	if stats.BatchesCompleted == 0 {
		t.Error("no batches recorded")
	}
	if stats.BatchesFailed != 0 {
		t.Errorf("batches failed = %d, want 0", stats.BatchesFailed)
	}
}
