package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/warden-io/warden/pkg/audit"
	"github.com/warden-io/warden/pkg/observability"
)

// Limit type labels recorded with violations.
const (
	LimitTypeUser   = "user"
	LimitTypeGlobal = "global"
)

// Config holds the fixed-window limits. A zero limit disables that
// window.
type Config struct {
	// PerUserLimit is the number of requests one handle may make per
	// window.
	PerUserLimit int64

	// GlobalLimit is the number of requests the whole system may make
	// per window.
	GlobalLimit int64

	// Window is the fixed window length.
	Window time.Duration
}

// DefaultConfig returns 30 requests per user and 300 global per
// minute.
func DefaultConfig() Config {
	return Config{
		PerUserLimit: 30,
		GlobalLimit:  300,
		Window:       time.Minute,
	}
}

// Limiter is a redis-backed fixed-window rate limiter. Redis being
// unreachable fails open: availability of the guarded feature wins
// over limiting precision.
type Limiter struct {
	client   *redis.Client
	cfg      Config
	recorder *audit.Recorder
	log      logrus.FieldLogger
	metrics  *observability.Metrics
}

// New creates a limiter. The recorder, logger, and metrics are
// optional.
func New(client *redis.Client, cfg Config, recorder *audit.Recorder, log logrus.FieldLogger, metrics *observability.Metrics) *Limiter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Limiter{
		client:   client,
		cfg:      cfg,
		recorder: recorder,
		log:      log,
		metrics:  metrics,
	}
}

// Allow consumes one request slot for the handle, checking the global
// window first and then the per-user window. A violation is recorded
// in the audit trail and counted before the denial is returned.
func (l *Limiter) Allow(ctx context.Context, handle string) (bool, error) {
	if l.cfg.GlobalLimit > 0 {
		allowed, current, err := l.consume(ctx, l.globalKey(), l.cfg.GlobalLimit)
		if err != nil {
			l.failOpen(err)
			return true, nil
		}
		if !allowed {
			l.violation(ctx, handle, LimitTypeGlobal, current, l.cfg.GlobalLimit)
			return false, nil
		}
	}

	if l.cfg.PerUserLimit > 0 {
		allowed, current, err := l.consume(ctx, l.userKey(handle), l.cfg.PerUserLimit)
		if err != nil {
			l.failOpen(err)
			return true, nil
		}
		if !allowed {
			l.violation(ctx, handle, LimitTypeUser, current, l.cfg.PerUserLimit)
			return false, nil
		}
	}

	return true, nil
}

// Remaining reports how many requests the handle has left in the
// current window, without consuming one.
func (l *Limiter) Remaining(ctx context.Context, handle string) (int64, error) {
	if l.cfg.PerUserLimit <= 0 {
		return -1, nil
	}
	current, err := l.client.Get(ctx, l.userKey(handle)).Int64()
	if err == redis.Nil {
		return l.cfg.PerUserLimit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	remaining := l.cfg.PerUserLimit - current
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// consume increments the window counter and reports whether the
// increment stayed within the limit. The expiry is set when the
// counter is first created, so the window is fixed, not sliding.
func (l *Limiter) consume(ctx context.Context, key string, limit int64) (bool, int64, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, l.cfg.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, err
	}

	current := incr.Val()
	return current <= limit, current, nil
}

func (l *Limiter) violation(ctx context.Context, handle, limitType string, current, limit int64) {
	if l.metrics != nil {
		l.metrics.RateLimitViolationsTotal.WithLabelValues(limitType).Inc()
	}
	if l.recorder != nil {
		l.recorder.RateLimitViolation(ctx, handle, limitType, current, limit, current)
	}
	l.log.WithFields(logrus.Fields{
		"handle":     handle,
		"limit_type": limitType,
		"current":    current,
		"limit":      limit,
	}).Warn("rate limit exceeded")
}

func (l *Limiter) failOpen(err error) {
	l.log.WithError(err).Warn("rate limiter unavailable, failing open")
}

func (l *Limiter) window() int64 {
	return time.Now().UTC().Unix() / int64(l.cfg.Window.Seconds())
}

func (l *Limiter) userKey(handle string) string {
	return fmt.Sprintf("warden:ratelimit:user:%s:%d", handle, l.window())
}

func (l *Limiter) globalKey() string {
	return fmt.Sprintf("warden:ratelimit:global:%d", l.window())
}
