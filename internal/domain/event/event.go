package event

import (
	"sync/atomic"

	"github.com/google/uuid"
)

type EventKind int16

const (
	Connected        EventKind = iota + 1 // [SYSTEM]
	Disconnected                          // [SYSTEM]
	PresenceChanged                       // [PRESENCE]
	PresenceSnapshot                      // [PRESENCE]
	MessageCreated                        // [BUSINESS]
	StatusUpdated                         // [BUSINESS]
	TypingStarted                         // [EPHEMERAL]
	TypingStopped                         // [EPHEMERAL]
	ReactionUpdated                       // [BUSINESS]
	Failed                                // [SYSTEM] answer to a rejected client request
)

// kindNames are the wire names of the outbound events.
var kindNames = map[EventKind]string{
	Connected:        "connected",
	Disconnected:     "disconnected",
	PresenceChanged:  "presenceChanged",
	PresenceSnapshot: "presenceSnapshot",
	MessageCreated:   "newMessage",
	StatusUpdated:    "statusUpdate",
	TypingStarted:    "typingStarted",
	TypingStopped:    "typingStopped",
	ReactionUpdated:  "reactionUpdated",
	Failed:           "error",
}

func (k EventKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

type EventPriority int32

const (
	PriorityLow    EventPriority = 10
	PriorityNormal EventPriority = 20
	PriorityHigh   EventPriority = 30
)

// Eventer defines the contract for all data packets flowing through the Hub.
type Eventer interface {
	GetID() string
	GetKind() EventKind
	GetUserID() uuid.UUID
	GetPriority() EventPriority
	GetOccurredAt() int64
	GetPayload() any
	GetCached() any
	SetCached(any)
}

// Exportable defines an event that should be re-published to the message bus.
type Exportable interface {
	// We return the key only if the event is ready to be exported.
	// If it returns an empty string, the binder will skip publishing.
	GetRoutingKey() string
}

// cacheSlot keeps the transport-specific encoding of an event. Several session
// pumps may marshal the same event concurrently, so access is atomic.
type cacheSlot struct {
	v atomic.Pointer[any]
}

func (c *cacheSlot) load() any {
	if p := c.v.Load(); p != nil {
		return *p
	}
	return nil
}

func (c *cacheSlot) store(v any) { c.v.Store(&v) }
