package housekeeping

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sweepRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_sweeps_total",
			Help: "Total number of expired refresh token sweeps by outcome",
		},
		[]string{"outcome"},
	)

	purgedTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_refresh_tokens_purged_total",
			Help: "Total number of expired refresh tokens deleted",
		},
	)
)

// Purger deletes refresh tokens that expired before cutoff.
type Purger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls how often the sweeper runs and how long expired tokens are
// kept before deletion.
type Config struct {
	Interval  time.Duration
	Retention time.Duration
}

// Sweeper periodically removes expired refresh tokens.
type Sweeper struct {
	purger    Purger
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper creates a sweeper. It does nothing until Start is called.
func NewSweeper(purger Purger, cfg Config, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		purger:    purger,
		interval:  cfg.Interval,
		retention: cfg.Retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Start launches the sweep loop in a goroutine. The loop ends when ctx is
// cancelled or Stop is called. Calling Start twice has no effect.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.interval <= 0 {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.InfoContext(ctx, "token sweeper started",
			slog.Duration("interval", s.interval),
			slog.Duration("retention", s.retention),
		)
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("token sweeper stopped")
				return
			case <-ticker.C:
				_, _ = s.SweepOnce(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SweepOnce purges tokens that expired more than the retention period ago.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.retention)

	purged, err := s.purger.PurgeExpired(ctx, cutoff)
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.ErrorContext(ctx, "token sweep failed",
			slog.Time("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	sweepRunsTotal.WithLabelValues("success").Inc()
	purgedTokensTotal.Add(float64(purged))
	if purged > 0 {
		s.logger.InfoContext(ctx, "expired refresh tokens purged",
			slog.Int64("purged", purged),
			slog.Time("cutoff", cutoff),
		)
	}
	return purged, nil
}
