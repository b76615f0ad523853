package cache

import (
	"context"
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

type entry struct {
	value    []byte
	expireAt time.Time
}

// Memory is a bounded in-process cache for single node deployments.
// The LRU enforces a ceiling TTL; each entry also carries its own deadline
// so per-call TTLs shorter than the ceiling are honoured.
type Memory struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

func NewMemory(size int, maxTTL time.Duration) *Memory {
	if size <= 0 {
		size = 10000
	}
	return &Memory{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	m.lru.Add(key, e)
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := m.lru.Get(key)
	if !ok || m.expired(e) {
		return nil, model.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *Memory) Keys(_ context.Context, pattern string) ([]string, error) {
	var out []string
	for _, key := range m.lru.Keys() {
		e, ok := m.lru.Peek(key)
		if !ok || m.expired(e) {
			continue
		}
		if match, _ := path.Match(pattern, key); match {
			out = append(out, key)
		}
	}
	return out, nil
}

func (m *Memory) expired(e entry) bool {
	return !e.expireAt.IsZero() && !m.now().Before(e.expireAt)
}
