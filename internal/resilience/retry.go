package resilience

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig tunes [Retry].
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	// Default: 2 (one retry).
	Attempts int

	// BaseDelay is the wait before the first retry. Each further retry
	// doubles it. Default: 200ms.
	BaseDelay time.Duration

	// Retryable decides whether an error is worth another attempt. Nil
	// retries everything.
	Retryable func(error) bool
}

// Retry runs fn up to cfg.Attempts times with doubling backoff between
// tries. It stops early when ctx is cancelled or Retryable rejects the
// error. op labels log lines.
func Retry(ctx context.Context, cfg RetryConfig, op string, fn func() error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}

	var err error
	delay := cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt >= cfg.Attempts {
			return err
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}

		slog.Warn("retrying after failure",
			"op", op, "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		delay *= 2
	}
}
