package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/teleora/teleora/internal/config"
	"github.com/teleora/teleora/internal/observability/metrics"
	"go.uber.org/zap"
)

// Category names the endpoint class a request counts against.
type Category string

const (
	CategoryProvisioningWrite Category = "provisioning-write"
	CategoryProvisioningRead  Category = "provisioning-read"
	CategoryUsageSingle       Category = "usage-single"
	CategoryUsageBatch        Category = "usage-batch"
)

// Result reports one limiter decision plus the header metadata every
// rate-limited response carries.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter applies a fixed window per (client, category, window start).
// When the primary store fails the decision falls back to the in-process
// store instead of failing the request.
type Limiter struct {
	cfg      config.RateLimitConfig
	primary  Store
	fallback *MemoryStore
	log      *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewLimiter(cfg config.RateLimitConfig, primary Store, log *zap.Logger, m *metrics.Metrics) *Limiter {
	return &Limiter{
		cfg:      cfg,
		primary:  primary,
		fallback: NewMemoryStore(),
		log:      log.Named("ratelimit"),
		metrics:  m,
		now:      time.Now,
	}
}

// Allow counts the request and decides. The post-increment count is compared
// against the category limit, so exactly limit requests pass per window.
func (l *Limiter) Allow(ctx context.Context, clientID string, category Category) Result {
	sizing := l.sizingFor(category)
	limit := l.limitFor(clientID, category, sizing)
	window := windowOf(sizing)

	now := l.now().UTC()
	windowStart := now.Truncate(window)
	reset := windowStart.Add(window)

	if !l.cfg.Enabled {
		return Result{Allowed: true, Limit: limit, Remaining: limit, Reset: reset}
	}

	key := fmt.Sprintf("ratelimit:%s:%s:%s", clientID, category, strconv.FormatInt(windowStart.Unix(), 10))
	ttl := reset.Sub(now)

	count, err := l.incr(ctx, key, ttl)
	if err != nil {
		// Unreachable even through the fallback; fail open rather than
		// rejecting traffic on limiter trouble.
		l.log.Error("rate limit store unavailable", zap.Error(err))
		return Result{Allowed: true, Limit: limit, Remaining: 0, Reset: reset}
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	allowed := count <= int64(limit)
	if l.metrics != nil {
		if allowed {
			l.metrics.RecordRateLimitAllowed(string(category))
		} else {
			l.metrics.RecordRateLimitDenied(string(category))
		}
	}

	return Result{Allowed: allowed, Limit: limit, Remaining: remaining, Reset: reset}
}

func (l *Limiter) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if l.primary != nil {
		count, err := l.primary.Incr(ctx, key, ttl)
		if err == nil {
			return count, nil
		}
		l.log.Warn("primary rate limit store failed, using in-process fallback", zap.Error(err))
	}
	return l.fallback.Incr(ctx, key, ttl)
}

func (l *Limiter) sizingFor(category Category) config.CategoryLimit {
	switch category {
	case CategoryProvisioningWrite:
		return l.cfg.ProvisioningWrite
	case CategoryProvisioningRead:
		return l.cfg.ProvisioningRead
	case CategoryUsageSingle:
		return l.cfg.UsageSingle
	case CategoryUsageBatch:
		return l.cfg.UsageBatch
	default:
		return l.cfg.ProvisioningRead
	}
}

func (l *Limiter) limitFor(clientID string, category Category, sizing config.CategoryLimit) int {
	if override, ok := l.cfg.Overrides[clientID+":"+string(category)]; ok {
		return override
	}
	return sizing.Limit
}

func windowOf(sizing config.CategoryLimit) time.Duration {
	if sizing.WindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(sizing.WindowSeconds) * time.Second
}
