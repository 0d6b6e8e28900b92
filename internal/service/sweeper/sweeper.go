// Package sweeper periodically removes expired request tokens and sessions.
package sweeper

import (
	"context"
	"time"

	"github.com/nkiryanov/schoolauth/internal/logger"
)

const DefaultInterval = 5 * time.Minute

// Repository able to drop its expired records
type expirer interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	// Interval between sweeps. If not set than default is used
	Interval time.Duration
}

type Sweeper struct {
	interval time.Duration

	requestTokens expirer
	sessions      expirer
	logger        logger.Logger

	now func() time.Time
}

func New(cfg Config, requestTokens expirer, sessions expirer, l logger.Logger) *Sweeper {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Sweeper{
		interval:      cfg.Interval,
		requestTokens: requestTokens,
		sessions:      sessions,
		logger:        l,
		now:           time.Now,
	}
}

// Run sweeps on every tick until context is done
// Returned channel is closed when sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting sweeper", "interval", s.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()

	return idleStopped
}

// Delete everything expired by now
// Errors are logged, the next sweep will try again
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := s.now()

	tokens, err := s.requestTokens.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("Failed to delete expired request tokens", "error", err)
	}

	sessions, err := s.sessions.DeleteExpired(ctx, now)
	if err != nil {
		s.logger.Error("Failed to delete expired sessions", "error", err)
	}

	s.logger.Info("Expired records swept", "request_tokens", tokens, "sessions", sessions)
}
