package lockout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tempuro/auth-service/pkg/middleware"
)

const keyPrefix = "lockout:"

// Config controls when an email is considered locked.
type Config struct {
	Enabled   bool
	Threshold int
	Window    time.Duration
}

// Tracker counts failed logins per email and client address in Redis, so
// failures sent from one address never lock the account for others. Without
// an address in the context the count is per email. A key expires Window after
// the first failure, so a lock lifts by itself.
//
// Redis errors never block a login: the tracker logs them and reports the
// email as unlocked.
type Tracker struct {
	client    redis.UniversalClient
	threshold int64
	window    time.Duration
	enabled   bool
	logger    *slog.Logger
}

// NewTracker creates a login-attempt tracker.
func NewTracker(client redis.UniversalClient, cfg Config, logger *slog.Logger) *Tracker {
	return &Tracker{
		client:    client,
		threshold: int64(cfg.Threshold),
		window:    cfg.Window,
		enabled:   cfg.Enabled && client != nil && cfg.Threshold > 0,
		logger:    logger,
	}
}

func key(ctx context.Context, email string) string {
	if ip := middleware.ClientIPFromContext(ctx); ip != "" {
		return keyPrefix + email + ":" + ip
	}
	return keyPrefix + email
}

// IsLocked reports whether the caller has reached the failure threshold for
// email.
func (t *Tracker) IsLocked(ctx context.Context, email string) bool {
	if !t.enabled {
		return false
	}

	count, err := t.client.Get(ctx, key(ctx, email)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			t.warn(ctx, "lockout check failed", err)
		}
		return false
	}
	return count >= t.threshold
}

// RecordFailure counts one failed attempt for email.
func (t *Tracker) RecordFailure(ctx context.Context, email string) {
	if !t.enabled {
		return
	}

	k := key(ctx, email)
	count, err := t.client.Incr(ctx, k).Result()
	if err != nil {
		t.warn(ctx, "lockout record failed", err)
		return
	}
	if count == 1 {
		if err := t.client.Expire(ctx, k, t.window).Err(); err != nil {
			t.warn(ctx, "lockout expire failed", err)
		}
	}
	if count == t.threshold {
		t.logger.WarnContext(ctx, "account locked after repeated failures",
			slog.Int64("attempts", count),
			slog.Duration("window", t.window),
		)
	}
}

// Reset clears the caller's failure count after a successful login.
func (t *Tracker) Reset(ctx context.Context, email string) {
	if !t.enabled {
		return
	}
	if err := t.client.Del(ctx, key(ctx, email)).Err(); err != nil {
		t.warn(ctx, "lockout reset failed", err)
	}
}

func (t *Tracker) warn(ctx context.Context, msg string, err error) {
	t.logger.WarnContext(ctx, msg, slog.String("error", err.Error()))
}
