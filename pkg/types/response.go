package types

// Token is one position of a provider token trace.
type Token struct {
	ID   int    `json:"id"`
	Text string `json:"text,omitempty"`
	// Logprob is the natural-log probability the model assigned to this
	// token given the preceding ones. Nil for the very first prefill
	// position, which has no preceding context.
	Logprob *float64 `json:"logprob"`
}

// RawResponse is the token-annotated response returned by the remote
// endpoint for a single generate call.
type RawResponse struct {
	GeneratedText string `json:"generated_text"`
	// Prefill is the per-token trace over the input prompt (plus, for
	// scoring calls, the appended continuation).
	Prefill []Token `json:"prefill"`
	// Tokens is the per-token trace over the generated continuation.
	Tokens []Token `json:"tokens"`
}
