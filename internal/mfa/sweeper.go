package mfa

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultSweepInterval is how often expired sessions are purged.
const DefaultSweepInterval = 60 * time.Second

// Sweeper purges expired sessions on a fixed interval.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper. A non-positive interval selects DefaultSweepInterval.
func NewSweeper(store Store, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval, logger: logger.Named("mfa_sweeper"), now: time.Now}
}

// Run sweeps until ctx is cancelled. It returns nil on cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Debug("Sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := s.store.Sweep(ctx, s.now())
			if err != nil {
				s.logger.Warn("Sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("Expired MFA sessions removed", zap.Int("count", n))
			}
		}
	}
}
