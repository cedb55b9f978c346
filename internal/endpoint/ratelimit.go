package endpoint

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/modelbench-ai/modelbench/engine/pkg/types"
)

// RateLimitConfig configures the token-bucket pacing decorator.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained call rate.
	RequestsPerMinute float64
	// Burst is the maximum burst size above the sustained rate.
	Burst int
}

// DefaultRateLimitConfig returns sensible defaults.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerMinute: 600,
	Burst:             50,
}

// RateLimitedClient wraps a Generator with token-bucket pacing. It does not
// retry: a failed call surfaces immediately, and retry policy stays a
// caller-level concern.
type RateLimitedClient struct {
	inner   Generator
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with pacing from cfg.
func NewRateLimitedClient(inner Generator, cfg RateLimitConfig) (*RateLimitedClient, error) {
	if cfg.RequestsPerMinute <= 0 {
		return nil, fmt.Errorf("rate limiter: RequestsPerMinute must be > 0")
	}
	if cfg.Burst <= 0 {
		return nil, fmt.Errorf("rate limiter: Burst must be > 0")
	}

	perSecond := rate.Limit(cfg.RequestsPerMinute / 60.0)
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(perSecond, cfg.Burst),
	}, nil
}

// Generate waits for a rate limit token then calls the inner client.
func (r *RateLimitedClient) Generate(ctx context.Context, prompt string, stop []string, maxNewTokens int) (*types.RawResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}
	return r.inner.Generate(ctx, prompt, stop, maxNewTokens)
}
