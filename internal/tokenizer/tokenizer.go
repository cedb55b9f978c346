// Package tokenizer provides the encode/decode capability the evaluation
// engine uses to populate token fields before dispatch.
package tokenizer

// Tokenizer is the capability consumed by the engine. Implementations must
// be safe for concurrent use.
type Tokenizer interface {
	// Encode converts text to token ids.
	Encode(text string) ([]int, error)

	// Decode converts token ids back to text.
	Decode(tokens []int) (string, error)

	// EOSToken returns the end-of-sequence token as a string, used to
	// augment stop sequences for greedy generation.
	EOSToken() string

	// EOSTokenID returns the end-of-sequence token id, used as the priming
	// context for rolling log-likelihood.
	EOSTokenID() int
}
