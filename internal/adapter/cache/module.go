package cache

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/webitel/im-realtime-service/config"
	"github.com/webitel/im-realtime-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cache",
	fx.Provide(New),
)

// New selects the cache backend from config. Redis is not pinged at start:
// the cache is optional and the breaker handles an absent server.
func New(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) service.CacheBackend {
	logger = logger.With("component", "cache")
	switch cfg.Cache.Driver {
	case "redis":
		client := redis.NewClient(redisOptions(cfg.Cache))
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return client.Close() },
		})
		return NewRedis(client, BreakerConfig{
			MaxFailures: cfg.Cache.Breaker.MaxFailures,
			OpenTimeout: cfg.Cache.Breaker.OpenTimeout,
		}, logger)
	case "memory":
		return NewMemory(cfg.Cache.MemorySize, cfg.Cache.TTL)
	default:
		logger.Info("CACHE_DISABLED")
		return Noop{}
	}
}

// redisOptions makes the client fail fast: no retries, and I/O bounded by the
// per-call cache timeout so a blackholed server costs one deadline per call.
func redisOptions(cfg config.CacheConfig) *redis.Options {
	return &redis.Options{
		Addr:                  cfg.Redis.Addr,
		Password:              cfg.Redis.Password,
		DB:                    cfg.Redis.DB,
		PoolSize:              cfg.Redis.PoolSize,
		DialTimeout:           cfg.Redis.DialTimeout,
		ReadTimeout:           cfg.Timeout,
		WriteTimeout:          cfg.Timeout,
		PoolTimeout:           cfg.Timeout,
		MaxRetries:            -1,
		ContextTimeoutEnabled: true,
	}
}
