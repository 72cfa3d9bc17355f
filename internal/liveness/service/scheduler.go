package service

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper runs one liveness sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (SweepReport, error)
}

// Scheduler runs Sweep on a fixed interval for deployments without an
// external scheduler. A slow sweep delays the next tick rather than
// overlapping it within one process; other replicas may still overlap.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(sweeper Sweeper, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{sweeper: sweeper, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
// Sweep errors are logged; the loop keeps going.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if _, err := s.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.ErrorContext(ctx, "scheduled sweep failed", "error", err)
	}
}
