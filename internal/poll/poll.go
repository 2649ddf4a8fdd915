// Package poll waits on external asynchronous jobs with a fixed interval and
// a hard attempt ceiling, so an unbounded dependency becomes a finite
// operation with two distinguishable failure modes.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status is one observation of the external job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

var (
	// ErrJobFailed means the external service reported the job failed.
	ErrJobFailed = errors.New("external job failed")
	// ErrJobTimedOut means the job was still pending after MaxAttempts polls.
	ErrJobTimedOut = errors.New("external job timed out")
)

// Config bounds the wait: at most MaxAttempts polls, Interval apart.
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// Func is one poll of the external job. A non-nil error is a transport
// problem, not a job outcome, and aborts the wait as-is.
type Func[T any] func(ctx context.Context) (Status, T, error)

// Wait drives fn until it reports SUCCEEDED (returning the payload), FAILED
// (ErrJobFailed), or the attempt ceiling is reached while still PENDING
// (ErrJobTimedOut). The poll function is called exactly once per attempt; the
// wait blocks only the calling goroutine.
func Wait[T any](ctx context.Context, cfg Config, fn Func[T]) (T, error) {
	var zero T
	if cfg.MaxAttempts <= 0 {
		return zero, fmt.Errorf("poll: MaxAttempts must be positive, got %d", cfg.MaxAttempts)
	}

	for attempt := 1; ; attempt++ {
		status, payload, err := fn(ctx)
		if err != nil {
			return zero, fmt.Errorf("poll attempt %d: %w", attempt, err)
		}
		switch status {
		case StatusSucceeded:
			return payload, nil
		case StatusFailed:
			return zero, fmt.Errorf("after %d attempts: %w", attempt, ErrJobFailed)
		case StatusPending:
			if attempt >= cfg.MaxAttempts {
				return zero, fmt.Errorf("after %d attempts: %w", attempt, ErrJobTimedOut)
			}
		default:
			return zero, fmt.Errorf("poll attempt %d: unknown status %q", attempt, status)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}
