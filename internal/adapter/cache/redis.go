package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

const scanBatch = 500

// BreakerConfig controls when the cache is considered down.
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Redis is the shared cache backend. Every call goes through a circuit
// breaker so that an unreachable Redis fails fast instead of stalling sends.
type Redis struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
}

func NewRedis(client *redis.Client, cfg BreakerConfig, logger *slog.Logger) *Redis {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	return &Redis{
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "cache.redis",
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= cfg.MaxFailures
			},
			// A miss is an answer, not an outage.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, model.ErrNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("CACHE_BREAKER_STATE_CHANGED", "breaker", name, "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.client.Set(ctx, key, value, ttl).Err()
	})
	return wrap("set", err)
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := r.breaker.Execute(func() (any, error) {
		b, err := r.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotFound
		}
		return b, err
	})
	if err != nil {
		return nil, wrap("get", err)
	}
	return res.([]byte), nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.client.Del(ctx, key).Err()
	})
	return wrap("delete", err)
}

// Keys walks the keyspace with SCAN; KEYS would block the server.
func (r *Redis) Keys(ctx context.Context, pattern string) ([]string, error) {
	res, err := r.breaker.Execute(func() (any, error) {
		var (
			out    []string
			cursor uint64
		)
		for {
			keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatch).Result()
			if err != nil {
				return nil, err
			}
			out = append(out, keys...)
			if next == 0 {
				return out, nil
			}
			cursor = next
		}
	})
	if err != nil {
		return nil, wrap("keys", err)
	}
	return res.([]string), nil
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, model.ErrNotFound) {
		return err
	}
	return fmt.Errorf("cache: redis %s: %w: %w", op, model.ErrCache, err)
}
