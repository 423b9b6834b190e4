package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-io/warden/pkg/audit"
)

type captureWriter struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (w *captureWriter) Create(_ context.Context, entry *audit.Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
	return nil
}

func setupLimiter(t *testing.T, cfg Config) (*Limiter, *captureWriter) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	writer := &captureWriter{}
	logger, _ := logrustest.NewNullLogger()
	recorder := audit.NewRecorder(writer, logger, nil)
	return New(client, cfg, recorder, logger, nil), writer
}

func TestLimiter_AllowsWithinLimit(t *testing.T) {
	limiter, writer := setupLimiter(t, Config{PerUserLimit: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "+15553330001")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}
	assert.Empty(t, writer.entries)
}

func TestLimiter_DeniesOverLimitAndRecords(t *testing.T) {
	limiter, writer := setupLimiter(t, Config{PerUserLimit: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := limiter.Allow(ctx, "+15553330002")
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, err := limiter.Allow(ctx, "+15553330002")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, audit.ActionRateLimitViolation, entry.Action)
	assert.Nil(t, entry.ActorID)
	assert.Equal(t, "+15553330002", entry.Handle)
	assert.Equal(t, LimitTypeUser, entry.Metadata["limitType"])
	assert.Equal(t, int64(3), entry.Metadata["currentRate"])
	assert.Equal(t, int64(2), entry.Metadata["limit"])
}

func TestLimiter_PerUserIsolation(t *testing.T) {
	limiter, _ := setupLimiter(t, Config{PerUserLimit: 1, Window: time.Minute})
	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "+15553330003")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "+15553330003")
	require.NoError(t, err)
	assert.False(t, allowed)

	// A different handle has its own window.
	allowed, err = limiter.Allow(ctx, "+15553330004")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_GlobalLimit(t *testing.T) {
	limiter, writer := setupLimiter(t, Config{GlobalLimit: 2, Window: time.Minute})
	ctx := context.Background()

	for i, handle := range []string{"+15553330005", "+15553330006"} {
		allowed, err := limiter.Allow(ctx, handle)
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, err := limiter.Allow(ctx, "+15553330007")
	require.NoError(t, err)
	assert.False(t, allowed)

	require.Len(t, writer.entries, 1)
	assert.Equal(t, LimitTypeGlobal, writer.entries[0].Metadata["limitType"])
}

func TestLimiter_Remaining(t *testing.T) {
	limiter, _ := setupLimiter(t, Config{PerUserLimit: 5, Window: time.Minute})
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "+15553330008")
	require.NoError(t, err)
	assert.Equal(t, int64(5), remaining)

	_, err = limiter.Allow(ctx, "+15553330008")
	require.NoError(t, err)

	remaining, err = limiter.Remaining(ctx, "+15553330008")
	require.NoError(t, err)
	assert.Equal(t, int64(4), remaining)
}

func TestLimiter_FailsOpenWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger, _ := logrustest.NewNullLogger()
	limiter := New(client, Config{PerUserLimit: 1, Window: time.Minute}, nil, logger, nil)
	mr.Close()

	allowed, err := limiter.Allow(context.Background(), "+15553330009")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestLimiter_ZeroLimitsDisableChecks(t *testing.T) {
	limiter, writer := setupLimiter(t, Config{Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(ctx, "+15553330010")
		require.NoError(t, err)
		require.True(t, allowed)
	}
	assert.Empty(t, writer.entries)
}
