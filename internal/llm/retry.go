package llm

import (
	"context"
	"log/slog"
	"time"
)

// retrying retries a Generator with exponential backoff.
type retrying struct {
	next     Generator
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// WithRetry wraps next so that a failed Generate is retried up to attempts
// times in total, sleeping delay*2^n between tries. Cancellation of ctx stops
// the retry loop immediately.
func WithRetry(next Generator, attempts int, delay time.Duration, logger *slog.Logger) Generator {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retrying{next: next, attempts: attempts, delay: delay, logger: logger}
}

func (r *retrying) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		out, err := r.next.Generate(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == r.attempts-1 {
			break
		}

		wait := r.delay * time.Duration(1<<attempt)
		r.logger.Debug("llm retry", "attempt", attempt+1, "wait", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}
