package expiry

import (
	"context"
	"log/slog"
	"time"

	"foodshare/internal/observability"

	"github.com/google/uuid"
)

// Store is the sweep-facing slice of the listing store.
type Store interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// Sweeper periodically transitions time-expired listings to the terminal
// expired status. Sweeping is idempotent, so it is safe to run concurrently
// with live claim and query traffic.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper over the given store.
func NewSweeper(store Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Run blocks, sweeping on every tick until ctx is canceled. Store failures
// are logged and retried on the next tick; they never stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single sweep pass. Each run carries a correlation id
// so log lines from one pass can be grouped.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	runID := uuid.NewString()
	now := s.now()

	expired, err := s.store.SweepExpired(ctx, now)
	if err != nil {
		// Transient store failures are retried on the next scheduled run.
		observability.SweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.Error("expiry sweep failed",
			slog.String("run_id", runID),
			slog.String("error", err.Error()),
		)
		return
	}

	observability.SweepRunsTotal.WithLabelValues("ok").Inc()
	if expired > 0 {
		observability.SweepExpiredTotal.Add(float64(expired))
		s.logger.Info("expiry sweep completed",
			slog.String("run_id", runID),
			slog.Int64("expired", expired),
		)
	}
}
