package types

// RequestKind identifies the scoring semantics of a request. The set is
// closed: the dispatcher and decoder switch exhaustively over it.
type RequestKind string

const (
	KindGreedy                   RequestKind = "greedy"
	KindLoglikelihood            RequestKind = "loglikelihood"
	KindLoglikelihoodRolling     RequestKind = "loglikelihood_rolling"
	KindLoglikelihoodSingleToken RequestKind = "loglikelihood_single_token"
)

// GreedyRequest asks for greedy generation from a context until one of the
// stop sequences (or the tokenizer's end-of-sequence token) is produced.
type GreedyRequest struct {
	Context       string   `json:"context"`
	StopSequences []string `json:"stop_sequences,omitempty"`
	MaxNewTokens  int      `json:"max_new_tokens"`
}

// LoglikelihoodRequest asks for the log-likelihood of Choice as a
// continuation of Context.
type LoglikelihoodRequest struct {
	Context string `json:"context"`
	Choice  string `json:"choice"`
}

// LoglikelihoodRollingRequest asks for the log-likelihood of Context itself,
// primed by a single end-of-sequence token. Used for perplexity-style metrics.
type LoglikelihoodRollingRequest struct {
	Context string `json:"context"`
}

// LoglikelihoodSingleTokenRequest scores a set of single-token choices in one
// call. The generate transport cannot serve this mode; the engine rejects it
// with ErrKindUnsupportedCapability.
type LoglikelihoodSingleTokenRequest struct {
	Context string   `json:"context"`
	Choices []string `json:"choices"`
}
