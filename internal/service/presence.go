package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
)

var _ registry.PresenceObserver = (*PresenceTracker)(nil)

const snapshotSendTimeout = 250 * time.Millisecond

// PresenceTracker maintains the set of online users from registry edges and
// announces every edge to the connected users.
//
// The set is updated synchronously inside OnPresenceChanged (which runs under
// the registry shard lock), so it always agrees with the registry. The
// announcement itself is queued and sent by the Run worker: best effort,
// dropped on overflow, never retried.
type PresenceTracker struct {
	hub    registry.Hubber
	logger *slog.Logger

	mu     sync.RWMutex
	online map[uuid.UUID]struct{}

	queue    chan model.PresencePayload
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewPresenceTracker(hub registry.Hubber, queueSize int, logger *slog.Logger) *PresenceTracker {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &PresenceTracker{
		hub:    hub,
		logger: logger,
		online: make(map[uuid.UUID]struct{}),
		queue:  make(chan model.PresencePayload, queueSize),
		stopCh: make(chan struct{}),
	}
}

// OnPresenceChanged must not block: it runs with a registry lock held.
func (p *PresenceTracker) OnPresenceChanged(userID uuid.UUID, online bool) {
	p.mu.Lock()
	if online {
		p.online[userID] = struct{}{}
	} else {
		delete(p.online, userID)
	}
	p.mu.Unlock()

	select {
	case p.queue <- model.PresencePayload{UserID: userID, Online: online}:
	default:
		p.logger.Warn("PRESENCE_BROADCAST_DROPPED", "user_id", userID, "online", online)
	}
}

func (p *PresenceTracker) IsOnline(userID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok
}

// Snapshot returns the users online at the call instant.
func (p *PresenceTracker) Snapshot() []uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(p.online))
	for id := range p.online {
		out = append(out, id)
	}
	return out
}

// SendSnapshot pushes the full presence set straight to one session.
func (p *PresenceTracker) SendSnapshot(conn registry.Connector) bool {
	ev := event.NewSystemEvent(conn.GetUserID(), event.PresenceSnapshot, event.PriorityNormal,
		&model.PresenceSnapshotPayload{Online: p.Snapshot()})
	return conn.Send(ev, snapshotSendTimeout)
}

// Run drains the announcement queue until ctx is done or Stop is called.
func (p *PresenceTracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case change := <-p.queue:
			p.announce(change)
		}
	}
}

func (p *PresenceTracker) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

// announce tells every other connected user about the edge. The subject's own
// sessions are skipped: they learn their state from the connected handshake.
func (p *PresenceTracker) announce(change model.PresencePayload) {
	payload := change
	for _, userID := range p.hub.OnlineUsers() {
		if userID == change.UserID {
			continue
		}
		ev := event.NewSystemEvent(userID, event.PresenceChanged, event.PriorityNormal, &payload)
		p.hub.Broadcast(ev)
	}
}
