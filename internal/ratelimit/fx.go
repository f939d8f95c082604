package ratelimit

import (
	"github.com/teleora/teleora/internal/config"
	"github.com/teleora/teleora/internal/observability/metrics"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// provideLimiter wires the redis-backed store when an address is configured,
// otherwise the limiter runs on its in-process fallback alone.
func provideLimiter(cfg config.Config, log *zap.Logger, m *metrics.Metrics) *Limiter {
	var primary Store
	if cfg.RateLimit.Enabled && cfg.RateLimit.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		primary = NewRedisStore(client)
	}
	return NewLimiter(cfg.RateLimit, primary, log, m)
}

var Module = fx.Module("ratelimit",
	fx.Provide(provideLimiter),
)
