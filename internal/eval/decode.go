package eval

import (
	"github.com/modelbench-ai/modelbench/engine/pkg/types"
)

// DecodeGreedy turns a raw generate response into a GenerateResult.
// When wantLogits is set, the prefill log-probabilities are carried along
// with the generated text; the first prefill position never has one and is
// omitted.
func DecodeGreedy(resp *types.RawResponse, wantLogits bool) types.GenerateResult {
	result := types.GenerateResult{
		Text:           resp.GeneratedText,
		TruncatedCount: types.CountNotReported,
		PaddedCount:    types.CountNotReported,
	}
	if wantLogits {
		result.Logits = presentLogprobs(resp.Prefill)
	}
	return result
}

// DecodeLoglikelihood slices the prefill trace of a scoring call. The
// continuation tokens were appended to the context before the call, so their
// log-probabilities sit at the tail of the prefill: the last continuationLen
// entries are the scored continuation, everything before them is input
// context. The first context token never has a log-probability and must not
// leak into the scored output.
func DecodeLoglikelihood(resp *types.RawResponse, continuationLen int) types.LoglikelihoodResult {
	prefill := resp.Prefill
	cut := len(prefill) - continuationLen
	if cut < 0 {
		cut = 0
	}

	return types.LoglikelihoodResult{
		Logprobs:          presentLogprobs(prefill[cut:]),
		InputTokenIDs:     tokenIDs(prefill[:cut]),
		GeneratedTokenIDs: tokenIDs(prefill[cut:]),
		TruncatedCount:    types.CountNotReported,
		PaddedCount:       types.CountNotReported,
	}
}

// DecodeLoglikelihoodRolling slices a rolling scoring response, where the
// whole context is itself the scored continuation and the prefill holds only
// the end-of-sequence priming token. The final generated token is the one
// forced by maxTokens=1 and is not part of the scored text, so it is dropped.
func DecodeLoglikelihoodRolling(resp *types.RawResponse) types.LoglikelihoodResult {
	generated := resp.Tokens
	if len(generated) > 0 {
		generated = generated[:len(generated)-1]
	}

	return types.LoglikelihoodResult{
		Logprobs:          presentLogprobs(generated),
		InputTokenIDs:     tokenIDs(resp.Prefill),
		GeneratedTokenIDs: tokenIDs(generated),
		TruncatedCount:    types.CountNotReported,
		PaddedCount:       types.CountNotReported,
	}
}

// presentLogprobs collects the log-probabilities of tokens that have one.
func presentLogprobs(tokens []types.Token) []float64 {
	out := make([]float64, 0, len(tokens))
	for _, t := range tokens {
		if t.Logprob != nil {
			out = append(out, *t.Logprob)
		}
	}
	return out
}

func tokenIDs(tokens []types.Token) []int {
	out := make([]int, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.ID)
	}
	return out
}
