// Package retry runs fallible operations with bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sitechat/internal/core/domain"
)

// Config holds retry configuration
type Config struct {
	// MaxAttempts includes the first attempt
	MaxAttempts int

	// BaseDelay is multiplied by 2^attempt, where attempt counts the
	// failures so far
	BaseDelay time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
	}
}

// FromPipeline builds a Config from the pipeline retry section
func FromPipeline(cfg domain.RetryConfig, logger *slog.Logger) Config {
	return Config{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Logger:      logger,
	}
}

// Retrier retries operations. All errors are retried alike; there is no
// jitter.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier
func New(cfg Config) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retrier{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		logger:      cfg.Logger,
		sleep:       sleepContext,
	}
}

// MaxAttempts returns the attempt limit
func (r *Retrier) MaxAttempts() int {
	return r.maxAttempts
}

// Backoff returns the wait after the given number of failed attempts
func (r *Retrier) Backoff(failures int) time.Duration {
	return r.baseDelay * time.Duration(1<<failures)
}

// Do runs op until it succeeds or the attempt limit is reached, and returns
// the last error in that case. Cancelling ctx aborts the wait between attempts.
func Do[T any](ctx context.Context, r *Retrier, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempt := 0
	for {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		attempt++
		if attempt >= r.maxAttempts {
			r.logger.Error("operation failed after retries",
				"operation", name,
				"attempts", attempt,
				"error", err,
			)
			return zero, err
		}

		delay := r.Backoff(attempt)
		r.logger.Warn("retrying operation",
			"operation", name,
			"attempt", attempt+1,
			"max_attempts", r.maxAttempts,
			"delay", delay,
			"error", err,
		)

		if serr := r.sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("%s: retry aborted: %w", name, serr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
