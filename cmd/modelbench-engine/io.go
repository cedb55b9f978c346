package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/segmentio/encoding/json"

	"github.com/modelbench-ai/modelbench/engine/internal/eval"
	"github.com/modelbench-ai/modelbench/engine/pkg/types"
)

// requestLine is one JSONL input line. Kind selects which fields apply.
type requestLine struct {
	Kind          types.RequestKind `json:"kind"`
	Context       string            `json:"context"`
	Choice        string            `json:"choice,omitempty"`
	Choices       []string          `json:"choices,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	MaxNewTokens  int               `json:"max_new_tokens,omitempty"`
}

// resultLine is one JSONL output line, correlated to its input by Index.
type resultLine struct {
	Index         int                        `json:"index"`
	Kind          types.RequestKind          `json:"kind"`
	Generate      *types.GenerateResult      `json:"generate,omitempty"`
	Loglikelihood *types.LoglikelihoodResult `json:"loglikelihood,omitempty"`
}

func readRequests(path string) ([]requestLine, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open requests: %w", err)
		}
		defer f.Close()
		r = f
	}

	var requests []requestLine
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req requestLine
		if err := json.Unmarshal(line, &req); err != nil {
			return nil, fmt.Errorf("requests line %d: %w", lineNo, err)
		}
		switch req.Kind {
		case types.KindGreedy, types.KindLoglikelihood, types.KindLoglikelihoodRolling, types.KindLoglikelihoodSingleToken:
		default:
			return nil, fmt.Errorf("requests line %d: unknown kind %q", lineNo, req.Kind)
		}
		requests = append(requests, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}
	return requests, nil
}

// runAll groups the input lines by kind, runs each group through the engine,
// and scatters the results back into input order.
func runAll(ctx context.Context, engine *eval.Engine, requests []requestLine) ([]resultLine, error) {
	results := make([]resultLine, len(requests))
	for i, req := range requests {
		results[i] = resultLine{Index: i, Kind: req.Kind}
	}

	var (
		greedyIdx, llIdx, rollingIdx []int
		greedy                       []types.GreedyRequest
		ll                           []types.LoglikelihoodRequest
		rolling                      []types.LoglikelihoodRollingRequest
		single                       []types.LoglikelihoodSingleTokenRequest
	)
	for i, req := range requests {
		switch req.Kind {
		case types.KindGreedy:
			greedyIdx = append(greedyIdx, i)
			greedy = append(greedy, types.GreedyRequest{
				Context:       req.Context,
				StopSequences: req.StopSequences,
				MaxNewTokens:  req.MaxNewTokens,
			})
		case types.KindLoglikelihood:
			llIdx = append(llIdx, i)
			ll = append(ll, types.LoglikelihoodRequest{Context: req.Context, Choice: req.Choice})
		case types.KindLoglikelihoodRolling:
			rollingIdx = append(rollingIdx, i)
			rolling = append(rolling, types.LoglikelihoodRollingRequest{Context: req.Context})
		case types.KindLoglikelihoodSingleToken:
			single = append(single, types.LoglikelihoodSingleTokenRequest{Context: req.Context, Choices: req.Choices})
		}
	}

	if len(single) > 0 {
		if _, err := engine.RunLoglikelihoodSingleToken(ctx, single); err != nil {
			return nil, err
		}
	}

	if len(greedy) > 0 {
		out, err := engine.RunGreedy(ctx, greedy)
		if err != nil {
			return nil, err
		}
		for i := range out {
			results[greedyIdx[i]].Generate = &out[i]
		}
	}

	if len(ll) > 0 {
		out, err := engine.RunLoglikelihood(ctx, ll)
		if err != nil {
			return nil, err
		}
		for i := range out {
			results[llIdx[i]].Loglikelihood = &out[i]
		}
	}

	if len(rolling) > 0 {
		out, err := engine.RunLoglikelihoodRolling(ctx, rolling)
		if err != nil {
			return nil, err
		}
		for i := range out {
			results[rollingIdx[i]].Loglikelihood = &out[i]
		}
	}

	return results, nil
}

func writeResults(path string, results []resultLine) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create results: %w", err)
		}
		defer f.Close()
		w = f
	}

	bw := bufio.NewWriter(w)
	for _, res := range results {
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshal result %d: %w", res.Index, err)
		}
		data = append(data, '\n')
		if _, err := bw.Write(data); err != nil {
			return fmt.Errorf("write result %d: %w", res.Index, err)
		}
	}
	return bw.Flush()
}
