package model

import (
	"time"

	"github.com/google/uuid"
)

// PresencePayload announces an online/offline edge of one user.
type PresencePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Online bool      `json:"online"`
}

// PresenceSnapshotPayload is the full presence set pushed to a session on join.
type PresenceSnapshotPayload struct {
	Online []uuid.UUID `json:"online"`
}

// MessagePayload carries a committed message plus the sender's transient
// correlation token. The token is relayed once and never stored.
type MessagePayload struct {
	Message       *Message `json:"message"`
	CorrelationID string   `json:"client_correlation_id,omitempty"`
}

// StatusPayload reports a committed delivery transition to the sender.
// Bulk read acknowledgements put every affected id into MessageIDs.
type StatusPayload struct {
	MessageID   uuid.UUID   `json:"message_id"`
	MessageIDs  []uuid.UUID `json:"message_ids,omitempty"`
	To          Peer        `json:"to"`
	Status      Status      `json:"status"`
	DeliveredAt *time.Time  `json:"delivered_at,omitempty"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
	DeliveredTo []Receipt   `json:"delivered_to,omitempty"`
	ReadBy      []Receipt   `json:"read_by,omitempty"`
}

// NewStatusPayload snapshots the delivery state of m.
func NewStatusPayload(m *Message) *StatusPayload {
	c := m.Clone()
	return &StatusPayload{
		MessageID:   c.ID,
		To:          c.To,
		Status:      c.Status,
		DeliveredAt: c.DeliveredAt,
		ReadAt:      c.ReadAt,
		DeliveredTo: c.DeliveredTo,
		ReadBy:      c.ReadBy,
	}
}

type TypingPayload struct {
	FromID uuid.UUID `json:"from_id"`
	ToID   uuid.UUID `json:"to_id"`
}

type ReactionPayload struct {
	MessageID uuid.UUID  `json:"message_id"`
	To        Peer       `json:"to"`
	Reactions []Reaction `json:"reactions"`
}

// ErrorPayload answers a rejected client request.
type ErrorPayload struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Request       string `json:"request,omitempty"`
	CorrelationID string `json:"client_correlation_id,omitempty"`
}

// DisconnectedPayload is the last frame of a session the server closes.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"`
}
