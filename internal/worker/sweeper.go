package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/docpipe/docpipe/internal/repository"
)

// Sweeper is the backstop for the intake durability gap and crashed workers:
// it periodically fails jobs that have sat IN_PROGRESS past the age
// threshold, so a lost enqueue can never leave a job in limbo forever. The
// failure write is conditional, so a job that completes while the sweep runs
// is untouched.
type Sweeper struct {
	Jobs     repository.JobRepository
	Interval time.Duration
	MaxAge   time.Duration
	Limit    int
	Logger   *slog.Logger
}

func NewSweeper(jobs repository.JobRepository, interval, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &Sweeper{Jobs: jobs, Interval: interval, MaxAge: maxAge, Limit: 100, Logger: logger}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce fails one batch of stuck jobs. Errors are logged, not returned;
// the next tick retries.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.MaxAge)
	ids, err := s.Jobs.FailStuck(ctx, cutoff, s.Limit)
	if err != nil {
		s.Logger.Error("sweeper.sweep_failed", "error", err)
		return
	}
	for _, id := range ids {
		s.Logger.Warn("sweeper.failed_stuck_job", "job_id", id, "older_than", s.MaxAge)
	}
}
