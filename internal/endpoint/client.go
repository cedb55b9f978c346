package endpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/modelbench-ai/modelbench/engine/pkg/types"
)

const defaultRequestTimeout = 120 * time.Second

// Generator is the generate surface consumed by the evaluation engine and
// implemented by Client and its decorators.
type Generator interface {
	Generate(ctx context.Context, prompt string, stop []string, maxNewTokens int) (*types.RawResponse, error)
}

// Client calls a text-generation-inference style /generate endpoint and
// decodes the token-annotated response. One network round-trip per call, no
// retry, no timeout beyond the transport's. The shared *http.Client makes it
// safe for concurrent use across a batch.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a client bound to the endpoint at baseURL. token may be
// empty for unauthenticated endpoints.
func NewClient(baseURL, token string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("endpoint client: baseURL is required")
	}
	return &Client{
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		baseURL:    baseURL,
		token:      token,
	}, nil
}

type generateParameters struct {
	MaxNewTokens int      `json:"max_new_tokens"`
	Stop         []string `json:"stop,omitempty"`
	// Details and DecoderInputDetails request the per-token traces over
	// the generated continuation and the input prompt respectively.
	Details             bool `json:"details"`
	DecoderInputDetails bool `json:"decoder_input_details"`
}

type generateRequest struct {
	Inputs     string             `json:"inputs"`
	Parameters generateParameters `json:"parameters"`
}

type wireToken struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Logprob *float64 `json:"logprob"`
}

type generateDetails struct {
	Prefill []wireToken `json:"prefill"`
	Tokens  []wireToken `json:"tokens"`
}

type generateResponse struct {
	GeneratedText string           `json:"generated_text"`
	Details       *generateDetails `json:"details"`
	Error         string           `json:"error,omitempty"`
	ErrorType     string           `json:"error_type,omitempty"`
}

// Generate sends one generate call and returns the provider's raw response.
func (c *Client) Generate(ctx context.Context, prompt string, stop []string, maxNewTokens int) (*types.RawResponse, error) {
	genReq := generateRequest{
		Inputs: prompt,
		Parameters: generateParameters{
			MaxNewTokens:        maxNewTokens,
			Stop:                stop,
			Details:             true,
			DecoderInputDetails: true,
		},
	}

	body, err := json.Marshal(genReq)
	if err != nil {
		return nil, fmt.Errorf("generate: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("generate: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generate: http: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("generate: read body: %w", err)
	}

	var genResp generateResponse
	if err := json.Unmarshal(raw, &genResp); err != nil {
		return nil, fmt.Errorf("generate: unmarshal (status %d): %w", httpResp.StatusCode, err)
	}

	if genResp.Error != "" {
		return nil, fmt.Errorf("generate: provider error (%s): %s", genResp.ErrorType, genResp.Error)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generate: unexpected status %d", httpResp.StatusCode)
	}
	if genResp.Details == nil {
		return nil, fmt.Errorf("generate: response missing token details")
	}

	return &types.RawResponse{
		GeneratedText: genResp.GeneratedText,
		Prefill:       convertTokens(genResp.Details.Prefill),
		Tokens:        convertTokens(genResp.Details.Tokens),
	}, nil
}

func convertTokens(wire []wireToken) []types.Token {
	out := make([]types.Token, len(wire))
	for i, t := range wire {
		out[i] = types.Token{ID: t.ID, Text: t.Text, Logprob: t.Logprob}
	}
	return out
}
