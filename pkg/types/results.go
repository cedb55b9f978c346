package types

// CountNotReported is the sentinel carried in TruncatedCount / PaddedCount
// when the provider does not report token accounting. Callers must not treat
// it as a real count.
const CountNotReported = -1

// GenerateResult is the decoded outcome of a GreedyRequest.
type GenerateResult struct {
	Text string `json:"text"`
	// Logits holds the prefill log-probabilities when the caller requested
	// them, nil otherwise. Positions with no log-probability (the first
	// prefill token) are omitted.
	Logits         []float64 `json:"logits,omitempty"`
	TruncatedCount int       `json:"truncated_tokens_count"`
	PaddedCount    int       `json:"padded_tokens_count"`
}

// LoglikelihoodResult is the decoded outcome of a LoglikelihoodRequest or
// LoglikelihoodRollingRequest.
type LoglikelihoodResult struct {
	// Logprobs are the log-probabilities of the scored continuation tokens.
	Logprobs []float64 `json:"logprobs"`
	// InputTokenIDs are the token ids of the unscored context positions.
	InputTokenIDs []int `json:"input_token_ids"`
	// GeneratedTokenIDs are the token ids of the scored continuation
	// positions.
	GeneratedTokenIDs []int `json:"generated_token_ids"`
	TruncatedCount    int   `json:"truncated_tokens_count"`
	PaddedCount       int   `json:"padded_tokens_count"`
}
