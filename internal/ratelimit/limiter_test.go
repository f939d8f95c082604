package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/teleora/teleora/internal/clock"
	"github.com/teleora/teleora/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:           true,
		ProvisioningWrite: config.CategoryLimit{Limit: 3, WindowSeconds: 60},
		ProvisioningRead:  config.CategoryLimit{Limit: 10, WindowSeconds: 60},
		UsageSingle:       config.CategoryLimit{Limit: 5, WindowSeconds: 60},
		UsageBatch:        config.CategoryLimit{Limit: 2, WindowSeconds: 60},
		Overrides:         map[string]int{"vip:usage-single": 100},
	}
}

func newTestLimiter(cfg config.RateLimitConfig) *Limiter {
	return NewLimiter(cfg, nil, zap.NewNop(), nil)
}

func TestAllow_Boundary(t *testing.T) {
	l := newTestLimiter(testConfig())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		result := l.Allow(ctx, "client-1", CategoryUsageSingle)
		assert.True(t, result.Allowed, "request %d within the limit must pass", i)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 5-i, result.Remaining)
	}

	result := l.Allow(ctx, "client-1", CategoryUsageSingle)
	assert.False(t, result.Allowed, "limit+1 must be rejected")
	assert.Equal(t, 0, result.Remaining)
}

func TestAllow_NextWindowResets(t *testing.T) {
	l := newTestLimiter(testConfig())
	ctx := context.Background()

	fc := clock.NewFakeClock(time.Date(2026, 8, 26, 10, 0, 30, 0, time.UTC))
	l.now = fc.Now

	for i := 0; i < 2; i++ {
		require.True(t, l.Allow(ctx, "client-1", CategoryUsageBatch).Allowed)
	}
	assert.False(t, l.Allow(ctx, "client-1", CategoryUsageBatch).Allowed)

	fc.Advance(time.Minute)
	result := l.Allow(ctx, "client-1", CategoryUsageBatch)
	assert.True(t, result.Allowed, "a new window starts a fresh count")
	assert.Equal(t, 1, result.Remaining)
}

func TestAllow_PerCategoryWindows(t *testing.T) {
	cfg := testConfig()
	cfg.UsageBatch = config.CategoryLimit{Limit: 2, WindowSeconds: 300}
	cfg.UsageSingle = config.CategoryLimit{Limit: 5, WindowSeconds: 10}
	l := newTestLimiter(cfg)
	ctx := context.Background()

	fc := clock.NewFakeClock(time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC))
	l.now = fc.Now

	for i := 0; i < 2; i++ {
		require.True(t, l.Allow(ctx, "client-1", CategoryUsageBatch).Allowed)
	}
	require.False(t, l.Allow(ctx, "client-1", CategoryUsageBatch).Allowed)
	for i := 0; i < 5; i++ {
		require.True(t, l.Allow(ctx, "client-1", CategoryUsageSingle).Allowed)
	}
	require.False(t, l.Allow(ctx, "client-1", CategoryUsageSingle).Allowed)

	// One minute on: the short usage-single window has rolled over while the
	// five-minute usage-batch window is still counting.
	fc.Advance(time.Minute)
	assert.True(t, l.Allow(ctx, "client-1", CategoryUsageSingle).Allowed)
	assert.False(t, l.Allow(ctx, "client-1", CategoryUsageBatch).Allowed)

	result := l.Allow(ctx, "client-1", CategoryUsageBatch)
	assert.Equal(t, time.Date(2026, 8, 26, 10, 5, 0, 0, time.UTC), result.Reset)
}

func TestAllow_ClientsAndCategoriesIsolated(t *testing.T) {
	l := newTestLimiter(testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.True(t, l.Allow(ctx, "client-1", CategoryUsageBatch).Allowed)
	}
	assert.False(t, l.Allow(ctx, "client-1", CategoryUsageBatch).Allowed)

	assert.True(t, l.Allow(ctx, "client-2", CategoryUsageBatch).Allowed, "another client has its own window")
	assert.True(t, l.Allow(ctx, "client-1", CategoryUsageSingle).Allowed, "another category has its own window")
}

func TestAllow_PerClientOverride(t *testing.T) {
	l := newTestLimiter(testConfig())

	result := l.Allow(context.Background(), "vip", CategoryUsageSingle)
	assert.True(t, result.Allowed)
	assert.Equal(t, 100, result.Limit)
	assert.Equal(t, 99, result.Remaining)
}

func TestAllow_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	l := newTestLimiter(cfg)

	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow(context.Background(), "client-1", CategoryUsageBatch).Allowed)
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestAllow_FallsBackWhenPrimaryFails(t *testing.T) {
	l := NewLimiter(testConfig(), failingStore{}, zap.NewNop(), nil)
	ctx := context.Background()

	// The in-process fallback still enforces the limit.
	for i := 0; i < 2; i++ {
		assert.True(t, l.Allow(ctx, "client-1", CategoryUsageBatch).Allowed)
	}
	assert.False(t, l.Allow(ctx, "client-1", CategoryUsageBatch).Allowed)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Incr(ctx, "k", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(51), count)
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	count, err := store.Incr(ctx, "k", -time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// The expired bucket restarts instead of accumulating.
	count, err = store.Incr(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
