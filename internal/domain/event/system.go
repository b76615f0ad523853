package event

import (
	"time"

	"github.com/google/uuid"
)

// [GUARD] Ensure compliance with the Eventer interface.
var _ Eventer = (*SystemEvent)(nil)

// SystemEvent is a generic envelope for signals that never leave this node:
// handshakes, presence, typing, reactions and request errors.
type SystemEvent struct {
	id         string
	userID     uuid.UUID
	kind       EventKind
	priority   EventPriority
	occurredAt int64
	payload    any
	cached     cacheSlot
}

// [INTERFACE_IMPLEMENTATION]
func (e *SystemEvent) GetID() string              { return e.id }
func (e *SystemEvent) GetKind() EventKind         { return e.kind }
func (e *SystemEvent) GetUserID() uuid.UUID       { return e.userID }
func (e *SystemEvent) GetPriority() EventPriority { return e.priority }
func (e *SystemEvent) GetOccurredAt() int64       { return e.occurredAt }
func (e *SystemEvent) GetPayload() any            { return e.payload }
func (e *SystemEvent) GetCached() any             { return e.cached.load() }
func (e *SystemEvent) SetCached(v any)            { e.cached.store(v) }

// NewSystemEvent is a universal factory for creating any signal.
func NewSystemEvent(userID uuid.UUID, kind EventKind, priority EventPriority, payload any) *SystemEvent {
	return &SystemEvent{
		id:         uuid.NewString(),
		userID:     userID,
		kind:       kind,
		priority:   priority,
		occurredAt: time.Now().UnixMilli(),
		payload:    payload,
	}
}
