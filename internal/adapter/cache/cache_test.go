package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/webitel/im-realtime-service/config"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

func TestMemory_TTLAndPattern(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(16, time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	_ = m.Set(ctx, "message:1", []byte("a"), time.Second)
	_ = m.Set(ctx, "message:2", []byte("b"), time.Hour)
	_ = m.Set(ctx, "other:1", []byte("c"), time.Hour)

	keys, _ := m.Keys(ctx, "message:*")
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "message:1" {
		t.Fatalf("keys = %v", keys)
	}

	now = now.Add(2 * time.Second)
	if _, err := m.Get(ctx, "message:1"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expired entry: %v", err)
	}
	if v, err := m.Get(ctx, "message:2"); err != nil || string(v) != "b" {
		t.Fatalf("live entry = %q, %v", v, err)
	}
	keys, _ = m.Keys(ctx, "message:*")
	if len(keys) != 1 {
		t.Fatalf("keys after expiry = %v", keys)
	}

	_ = m.Delete(ctx, "message:2")
	if _, err := m.Get(ctx, "message:2"); !errors.Is(err, model.ErrNotFound) {
		t.Fatal("deleted entry still readable")
	}
}

func TestNoop_AlwaysMisses(t *testing.T) {
	var n Noop
	ctx := context.Background()
	if err := n.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Get(ctx, "k"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

// An unreachable Redis surfaces ErrCache and then trips the breaker.
func TestRedis_UnreachableTripsBreaker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := NewRedis(client, BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := r.Set(ctx, "message:x", []byte("{}"), time.Second); !errors.Is(err, model.ErrCache) {
			t.Fatalf("attempt %d: err = %v, want cache error", i, err)
		}
	}

	start := time.Now()
	_, err = r.Keys(ctx, "message:*")
	if !errors.Is(err, gobreaker.ErrOpenState) || !errors.Is(err, model.ErrCache) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Fatal("open breaker must fail fast")
	}
}

// A server that accepts connections but never answers costs one cache
// timeout per call, not the client's retry budget.
func TestRedis_SilentServerFailsWithinTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()

	opts := redisOptions(config.CacheConfig{
		Timeout: 100 * time.Millisecond,
		Redis:   config.RedisConfig{Addr: ln.Addr().String(), DialTimeout: time.Second, PoolSize: 2},
	})
	if opts.MaxRetries != -1 || !opts.ContextTimeoutEnabled {
		t.Fatalf("options = %+v", opts)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	r := NewRedis(client, BreakerConfig{MaxFailures: 5, OpenTimeout: time.Minute},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	start := time.Now()
	if err := r.Set(context.Background(), "message:x", []byte("{}"), time.Second); !errors.Is(err, model.ErrCache) {
		t.Fatalf("err = %v, want cache error", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("set took %s against a silent server", elapsed)
	}
}
