/*
Package registry is the session registry of the delivery core.

Key Architectural Concepts:
  - Virtual Cells: Every online user is represented by an isolated 'Cell' (Actor) that
    owns all concurrent sessions of that identity and fans events out to them.
  - Decoupling & Backpressure: Per-user mailboxes ensure that slow network consumers
    do not block the producers (router, presence tracker, bus consumers).
  - Atomic Presence Edges: Cells live in sharded, mutex-guarded maps. A cell exists
    iff its user has at least one session, and the 0<->1 edge is reported to the
    PresenceObserver while the shard lock is held.
*/
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
)

// Celler defines the internal API for user-specific delivery units.
type Celler interface {
	Push(ev event.Eventer) bool
	Attach(conn Connector) bool
	Detach(connID uuid.UUID) (removed, empty bool)
	Sessions() []Connector
	Size() int
	Stop()
}

// Cell implements [ISOLATED_DELIVERY] logic for a single user.
type Cell struct {
	// [IDENTITY]
	userID uuid.UUID

	// [MAILBOX]
	// Buffered channel that decouples producers from individual delivery.
	mailbox chan event.Eventer

	// [SESSIONS]
	// All live sessions of the user (mobile, web, desktop).
	sessions map[uuid.UUID]Connector
	mu       sync.RWMutex

	// [LIFECYCLE_CONTROL]
	doneCh   chan struct{}
	stopOnce sync.Once

	sendTimeout time.Duration
	logger      *slog.Logger
}

func NewCell(userID uuid.UUID, mailboxSize int, sendTimeout time.Duration, logger *slog.Logger) *Cell {
	c := &Cell{
		userID:      userID,
		mailbox:     make(chan event.Eventer, mailboxSize),
		sessions:    make(map[uuid.UUID]Connector),
		doneCh:      make(chan struct{}),
		sendTimeout: sendTimeout,
		logger:      logger,
	}
	go c.loop()
	return c
}

func (c *Cell) Push(ev event.Eventer) bool {
	select {
	case <-c.doneCh:
		return false
	case c.mailbox <- ev:
		return true
	default:
		return false
	}
}

// Attach adds conn; false means the session id was already attached.
func (c *Cell) Attach(conn Connector) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[conn.GetID()]; ok {
		return false
	}
	c.sessions[conn.GetID()] = conn
	return true
}

func (c *Cell) Detach(connID uuid.UUID) (removed, empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[connID]; ok {
		delete(c.sessions, connID)
		removed = true
	}
	return removed, len(c.sessions) == 0
}

func (c *Cell) Sessions() []Connector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Connector, 0, len(c.sessions))
	for _, conn := range c.sessions {
		out = append(out, conn)
	}
	return out
}

func (c *Cell) loop() {
	for {
		select {
		case <-c.doneCh:
			return
		case ev := <-c.mailbox:
			c.deliver(ev)
		}
	}
}

// deliver is fire-and-forget per session: one stalled or closed session
// never prevents delivery to the others.
func (c *Cell) deliver(ev event.Eventer) {
	for _, conn := range c.Sessions() {
		if !conn.Send(ev, c.sendTimeout) {
			c.logger.Warn("DELIVERY_FAILED",
				"user_id", c.userID,
				"conn_id", conn.GetID(),
				"event_id", ev.GetID(),
				"event_kind", ev.GetKind().String(),
				"dropped_total", conn.Dropped(),
			)
		}
	}
}

func (c *Cell) Stop() {
	c.stopOnce.Do(func() { close(c.doneCh) })
}
