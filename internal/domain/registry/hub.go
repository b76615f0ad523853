package registry

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

// PresenceObserver receives the online/offline edges of users.
// It is invoked with the user's shard lock held: implementations must return
// quickly and must not call back into the Hub.
type PresenceObserver interface {
	OnPresenceChanged(userID uuid.UUID, online bool)
}

// Hubber defines the gateway for user session management and event routing.
type Hubber interface {
	Register(conn Connector) bool
	Unregister(connID uuid.UUID) bool
	SessionsOf(userID uuid.UUID) []uuid.UUID
	IsOnline(userID uuid.UUID) bool
	Broadcast(ev event.Eventer) bool
	OnlineUsers() []uuid.UUID
	Observe(obs PresenceObserver)
	Stats() model.HubStats
	Shutdown()
}

type hubConfig struct {
	shards      int
	mailboxSize int
	sendTimeout time.Duration
	logger      *slog.Logger
}

type shard struct {
	mu    sync.RWMutex
	cells map[uuid.UUID]*Cell
}

// Hub implements a [SCALABLE_REGISTRY] using Virtual Cell pattern.
type Hub struct {
	config hubConfig
	shards []*shard

	// owners maps session id -> user id. Entries are written under the
	// owning user's shard lock.
	owners sync.Map

	observer  atomic.Pointer[PresenceObserver]
	startedAt time.Time
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		config: hubConfig{
			shards:      32,
			mailboxSize: 1024,
			sendTimeout: 500 * time.Millisecond,
			logger:      slog.Default(),
		},
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.config.shards <= 0 {
		h.config.shards = 1
	}
	h.shards = make([]*shard, h.config.shards)
	for i := range h.shards {
		h.shards[i] = &shard{cells: make(map[uuid.UUID]*Cell)}
	}
	return h
}

// Observe installs the presence edge observer. Call before serving traffic.
func (h *Hub) Observe(obs PresenceObserver) {
	h.observer.Store(&obs)
}

func (h *Hub) shardOf(userID uuid.UUID) *shard {
	return h.shards[binary.BigEndian.Uint64(userID[8:])%uint64(len(h.shards))]
}

func (h *Hub) notify(userID uuid.UUID, online bool) {
	if p := h.observer.Load(); p != nil && *p != nil {
		(*p).OnPresenceChanged(userID, online)
	}
}

// Register attaches a session. It is [IDEMPOTENT] for a repeated session id and
// returns true only when the user went from zero to one session.
func (h *Hub) Register(conn Connector) bool {
	uID := conn.GetUserID()
	s := h.shardOf(uID)

	s.mu.Lock()
	defer s.mu.Unlock()

	// [LAZY_INIT] Create cell only when first connection arrives.
	cell, ok := s.cells[uID]
	if !ok {
		cell = NewCell(uID, h.config.mailboxSize, h.config.sendTimeout, h.config.logger)
		s.cells[uID] = cell
	}
	if !cell.Attach(conn) {
		return false
	}
	h.owners.Store(conn.GetID(), uID)

	if !ok {
		h.notify(uID, true)
		return true
	}
	return false
}

// Unregister performs [GRACEFUL_RECLAMATION] of resources when sessions end.
// Unknown or already removed sessions are a no-op. Returns true only on the
// one-to-zero edge.
func (h *Hub) Unregister(connID uuid.UUID) bool {
	val, ok := h.owners.Load(connID)
	if !ok {
		return false
	}
	uID := val.(uuid.UUID)
	s := h.shardOf(uID)

	s.mu.Lock()
	defer s.mu.Unlock()

	cell, ok := s.cells[uID]
	if !ok {
		return false
	}
	removed, empty := cell.Detach(connID)
	if !removed {
		return false
	}
	h.owners.Delete(connID)

	if empty {
		cell.Stop()
		delete(s.cells, uID)
		h.notify(uID, false)
		return true
	}
	return false
}

func (h *Hub) SessionsOf(userID uuid.UUID) []uuid.UUID {
	s := h.shardOf(userID)
	s.mu.RLock()
	cell, ok := s.cells[userID]
	s.mu.RUnlock()
	if !ok {
		return []uuid.UUID{}
	}
	conns := cell.Sessions()
	ids := make([]uuid.UUID, 0, len(conns))
	for _, c := range conns {
		ids = append(ids, c.GetID())
	}
	return ids
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	s := h.shardOf(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cells[userID]
	return ok
}

// Broadcast routes event to the specific [USER_CELL]. Returns false on miss or overflow.
func (h *Hub) Broadcast(ev event.Eventer) bool {
	s := h.shardOf(ev.GetUserID())
	s.mu.RLock()
	cell, ok := s.cells[ev.GetUserID()]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if !cell.Push(ev) {
		h.config.logger.Warn("MAILBOX_OVERFLOW",
			"user_id", ev.GetUserID(),
			"event_id", ev.GetID(),
			"event_kind", ev.GetKind().String(),
		)
		return false
	}
	return true
}

func (h *Hub) OnlineUsers() []uuid.UUID {
	var out []uuid.UUID
	for _, s := range h.shards {
		s.mu.RLock()
		for uID := range s.cells {
			out = append(out, uID)
		}
		s.mu.RUnlock()
	}
	return out
}

func (h *Hub) Stats() model.HubStats {
	stats := model.HubStats{
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Shards:        make([]model.ShardStats, 0, len(h.shards)),
	}
	for i, s := range h.shards {
		s.mu.RLock()
		sh := model.ShardStats{ShardID: i, UserCount: len(s.cells)}
		for _, cell := range s.cells {
			for _, conn := range cell.Sessions() {
				sh.Connections++
				stats.DroppedEvents += conn.Dropped()
			}
		}
		s.mu.RUnlock()

		stats.TotalUsers += sh.UserCount
		stats.TotalConnections += sh.Connections
		stats.Shards = append(stats.Shards, sh)
	}
	return stats
}

// Shutdown closes every session and stops every cell. No presence edges are
// emitted: the whole node is going away.
func (h *Hub) Shutdown() {
	for _, s := range h.shards {
		s.mu.Lock()
		for uID, cell := range s.cells {
			for _, conn := range cell.Sessions() {
				h.owners.Delete(conn.GetID())
				conn.Close()
			}
			cell.Stop()
			delete(s.cells, uID)
		}
		s.mu.Unlock()
	}
}
