package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/adapter/memory"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
)

var errBackendDown = errors.New("backend down")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCache is an in-process CacheBackend that can be switched off.
type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
	down bool
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string][]byte)} }

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errBackendDown
	}
	c.data[key] = value
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, errBackendDown
	}
	v, ok := c.data[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	return v, nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return errBackendDown
	}
	delete(c.data, key)
	return nil
}

func (c *fakeCache) Keys(_ context.Context, pattern string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.down {
		return nil, errBackendDown
	}
	var out []string
	for k := range c.data {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// failingStore rejects writes of new messages.
type failingStore struct {
	*memory.Store
}

func (failingStore) SaveMessage(context.Context, *model.Message) error { return errBackendDown }

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Eventer
}

func (p *recordingPublisher) Publish(_ context.Context, ev event.Eventer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type harness struct {
	hub        *registry.Hub
	store      *memory.Store
	dir        *memory.Directory
	cache      *fakeCache
	staging    *Staging
	presence   *PresenceTracker
	receipts   *Receipts
	router     *Router
	typing     *Typing
	reactions  *Reactions
	reconciler *Reconciler
	history    *History
	delivery   *DeliveryService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, nil)
}

// newHarnessWith wires the core over in-memory adapters. store overrides the
// durable store when non-nil.
func newHarnessWith(t *testing.T, store MessageStore) *harness {
	t.Helper()
	logger := discardLogger()

	h := &harness{
		hub:   registry.NewHub(registry.WithShards(4), registry.WithSendTimeout(50*time.Millisecond)),
		store: memory.NewStore(),
		dir:   memory.NewDirectory(),
		cache: newFakeCache(),
	}
	if store == nil {
		store = h.store
	}

	emit := NewEmitter(h.hub, nil, logger)
	h.presence = NewPresenceTracker(h.hub, 64, logger)
	h.hub.Observe(h.presence)
	h.staging = NewStaging(h.cache, 5*time.Second, 100*time.Millisecond, logger)
	h.receipts = NewReceipts(store, h.dir, h.staging, emit, time.Second, logger)
	h.router = NewRouter(store, h.dir, h.staging, NewFanoutResolver(h.dir), h.receipts, h.hub, emit,
		RouterOptions{StoreTimeout: time.Second}, logger)
	h.typing = NewTyping(h.hub)
	h.reactions = NewReactions(store, h.dir, h.staging, h.hub, time.Second)
	h.reconciler = NewReconciler(h.cache, store, 10*time.Millisecond, logger)
	h.history = NewHistory(store, h.dir, h.router, time.Second)
	h.delivery = NewDeliveryService(h.hub, h.presence, 64)

	ctx, cancel := context.WithCancel(context.Background())
	go h.presence.Run(ctx)
	t.Cleanup(func() {
		cancel()
		h.hub.Shutdown()
	})
	return h
}

func (h *harness) connect(t *testing.T, userID uuid.UUID) registry.Connector {
	t.Helper()
	conn, err := h.delivery.Subscribe(context.Background(), userID, registry.ConnectMetadata{Platform: "test"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitFor(t, conn, event.Connected)
	waitFor(t, conn, event.PresenceSnapshot)
	return conn
}

func waitFor(t *testing.T, conn registry.Connector, kind event.EventKind) event.Eventer {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-conn.Recv():
			if ev.GetKind() == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("session %s: no %s event", conn.GetID(), kind)
			return nil
		}
	}
}

func assertNo(t *testing.T, conn registry.Connector, kind event.EventKind, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ev := <-conn.Recv():
			if ev.GetKind() == kind {
				t.Fatalf("session %s: unexpected %s event", conn.GetID(), kind)
			}
		case <-deadline:
			return
		}
	}
}

func registryMeta() registry.ConnectMetadata {
	return registry.ConnectMetadata{Platform: "test"}
}
