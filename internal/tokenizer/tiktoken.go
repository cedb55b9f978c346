package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// eosByEncoding maps each supported tiktoken encoding to its end-of-text
// token and id.
var eosByEncoding = map[string]struct {
	token string
	id    int
}{
	"o200k_base":  {token: "<|endoftext|>", id: 199999},
	"cl100k_base": {token: "<|endoftext|>", id: 100257},
	"p50k_base":   {token: "<|endoftext|>", id: 50256},
	"r50k_base":   {token: "<|endoftext|>", id: 50256},
}

// Tiktoken is a Tokenizer backed by a tiktoken BPE encoding.
type Tiktoken struct {
	encoding string
	eosToken string
	eosID    int

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktoken creates a tokenizer for the named encoding (for example
// "cl100k_base"). The encoding data is loaded lazily on first use, since
// tiktoken may need to fetch it.
func NewTiktoken(encoding string) (*Tiktoken, error) {
	eos, ok := eosByEncoding[encoding]
	if !ok {
		return nil, fmt.Errorf("tokenizer: unsupported encoding %q", encoding)
	}
	return &Tiktoken{
		encoding: encoding,
		eosToken: eos.token,
		eosID:    eos.id,
	}, nil
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("tokenizer: init encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *Tiktoken) Encode(text string) ([]int, error) {
	if err := t.init(); err != nil {
		return nil, err
	}
	return t.enc.Encode(text, nil, nil), nil
}

func (t *Tiktoken) Decode(tokens []int) (string, error) {
	if err := t.init(); err != nil {
		return "", err
	}
	return t.enc.Decode(tokens), nil
}

func (t *Tiktoken) EOSToken() string { return t.eosToken }

func (t *Tiktoken) EOSTokenID() int { return t.eosID }
