package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PeerType int16

const (
	// [ZERO_VALUE_GUARD] WE START FROM 1 TO DISTINGUISH FROM UNINITIALIZED DATA
	PeerUser PeerType = iota + 1
	PeerGroup
)

func (t PeerType) String() string {
	switch t {
	case PeerUser:
		return "user"
	case PeerGroup:
		return "group"
	default:
		return "unknown"
	}
}

func (t PeerType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *PeerType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "user":
		*t = PeerUser
	case "group":
		*t = PeerGroup
	default:
		return fmt.Errorf("unknown peer type %q", b)
	}
	return nil
}

// Peer addresses a conversation: a direct peer user or a group.
type Peer struct {
	ID   uuid.UUID `json:"id"`
	Type PeerType  `json:"type"`
}

func NewPeer(id uuid.UUID, t PeerType) Peer { return Peer{ID: id, Type: t} }

func (p Peer) IsGroup() bool { return p.Type == PeerGroup }

func (p Peer) Valid() bool {
	return p.ID != uuid.Nil && (p.Type == PeerUser || p.Type == PeerGroup)
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageMixed MessageType = "mixed"
)

// ClassifyMessage derives the stored message type from content and attachment presence.
func ClassifyMessage(content string, att *Attachment) MessageType {
	hasText := strings.TrimSpace(content) != ""
	hasImage := att.Present()
	switch {
	case hasText && hasImage:
		return MessageMixed
	case hasImage:
		return MessageImage
	default:
		return MessageText
	}
}

// Attachment references an already uploaded image.
type Attachment struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id,omitempty"`
}

func (a *Attachment) Present() bool {
	return a != nil && strings.TrimSpace(a.URL) != ""
}

// Receipt is one (recipient, timestamp) pair of a group delivery or read set.
type Receipt struct {
	UserID uuid.UUID `json:"user_id"`
	At     time.Time `json:"at"`
}

type Reaction struct {
	UserID   uuid.UUID `json:"user_id"`
	Reaction string    `json:"reaction"`
}

// [MESSAGE] CORE ENTITY REPRESENTING A CONVERSATION ELEMENT
//
// Immutable after creation except for the delivery fields and Reactions.
type Message struct {
	ID          uuid.UUID   `json:"id"`
	SenderID    uuid.UUID   `json:"sender_id"`
	To          Peer        `json:"to"`
	Content     string      `json:"content"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	Type        MessageType `json:"message_type"`
	Status      Status      `json:"status"`
	DeliveredAt *time.Time  `json:"delivered_at,omitempty"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
	DeliveredTo []Receipt   `json:"delivered_to,omitempty"`
	ReadBy      []Receipt   `json:"read_by,omitempty"`
	Reactions   []Reaction  `json:"reactions,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	// Version is bumped by the store on every committed update.
	Version int64 `json:"version"`
}

// IsParty reports whether userID is the sender or the direct receiver.
// Group membership is owned by the directory and is not decided here.
func (m *Message) IsParty(userID uuid.UUID) bool {
	if m.SenderID == userID {
		return true
	}
	return !m.To.IsGroup() && m.To.ID == userID
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Attachment != nil {
		att := *m.Attachment
		c.Attachment = &att
	}
	if m.DeliveredAt != nil {
		t := *m.DeliveredAt
		c.DeliveredAt = &t
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	c.DeliveredTo = append([]Receipt(nil), m.DeliveredTo...)
	c.ReadBy = append([]Receipt(nil), m.ReadBy...)
	c.Reactions = append([]Reaction(nil), m.Reactions...)
	return &c
}
