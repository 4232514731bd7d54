package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = time.Second
)

// Robust wraps a chain of generative clients with retries and model
// fallback. Each client gets maxAttempts tries with exponential backoff
// before the next one in the chain is consulted.
type Robust struct {
	chain       []GenerativeClient
	names       []string
	maxAttempts int
	baseBackoff time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	log         zerolog.Logger
}

// RobustOption configures a Robust client.
type RobustOption func(*Robust)

// WithMaxAttempts overrides the per-model attempt count.
func WithMaxAttempts(n int) RobustOption {
	return func(r *Robust) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// WithBaseBackoff overrides the first retry delay.
func WithBaseBackoff(d time.Duration) RobustOption {
	return func(r *Robust) {
		if d > 0 {
			r.baseBackoff = d
		}
	}
}

// WithSleeper replaces the backoff sleep. Used by tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) RobustOption {
	return func(r *Robust) { r.sleep = sleep }
}

// NewRobust builds a retrying client over an ordered model chain. Names are
// parallel to clients and appear in log lines only.
func NewRobust(clients []GenerativeClient, names []string, log zerolog.Logger, opts ...RobustOption) *Robust {
	r := &Robust{
		chain:       clients,
		names:       names,
		maxAttempts: defaultMaxAttempts,
		baseBackoff: defaultBaseBackoff,
		sleep:       sleepCtx,
		log:         log.With().Str("component", "robust-llm").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate tries each model in order until one succeeds.
func (r *Robust) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i, client := range r.chain {
		name := fmt.Sprintf("model-%d", i)
		if i < len(r.names) {
			name = r.names[i]
		}

		out, err := r.generateWithRetry(ctx, client, name, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if i < len(r.chain)-1 {
			r.log.Warn().Err(err).Str("model", name).Msg("Model exhausted retries, falling back")
		}
	}
	return "", fmt.Errorf("all models failed: %w", lastErr)
}

func (r *Robust) generateWithRetry(ctx context.Context, client GenerativeClient, name, prompt string) (string, error) {
	backoff := r.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out, err := client.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < r.maxAttempts {
			r.log.Warn().Err(err).Str("model", name).Int("attempt", attempt).
				Dur("backoff", backoff).Msg("Generation failed, retrying")
			if err := r.sleep(ctx, backoff); err != nil {
				return "", err
			}
			backoff *= 2
		}
	}
	return "", lastErr
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
