package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the delivery lifecycle position of a message. The order of the
// constants is the only allowed direction of travel.
type Status int8

const (
	StatusSending Status = iota // client-local only, never stored
	StatusSent
	StatusDelivered
	StatusRead
)

var statusNames = map[Status]string{
	StatusSending:   "sending",
	StatusSent:      "sent",
	StatusDelivered: "delivered",
	StatusRead:      "read",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int8(s))
}

func ParseStatus(v string) (Status, error) {
	for s, n := range statusNames {
		if n == v {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", v)
}

func (s Status) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Status) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	parsed, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StatusPatch carries the delivery fields written back to the store.
type StatusPatch struct {
	Status      Status
	DeliveredAt *time.Time
	ReadAt      *time.Time
	DeliveredTo []Receipt
	ReadBy      []Receipt
}

// Patch snapshots the delivery fields of m.
func (m *Message) Patch() StatusPatch {
	c := m.Clone()
	return StatusPatch{
		Status:      c.Status,
		DeliveredAt: c.DeliveredAt,
		ReadAt:      c.ReadAt,
		DeliveredTo: c.DeliveredTo,
		ReadBy:      c.ReadBy,
	}
}

// Apply copies the delivery fields of p onto m.
func (m *Message) Apply(p StatusPatch) {
	m.Status = p.Status
	m.DeliveredAt = p.DeliveredAt
	m.ReadAt = p.ReadAt
	m.DeliveredTo = p.DeliveredTo
	m.ReadBy = p.ReadBy
}

// MarkDelivered advances the message for a delivery acknowledgement by userID.
// It returns false when nothing visible changed.
func (m *Message) MarkDelivered(userID uuid.UUID, at time.Time) bool {
	if m.To.IsGroup() {
		added := addReceipt(&m.DeliveredTo, userID, at)
		raised := m.raise(StatusDelivered, at)
		return added || raised
	}
	return m.raise(StatusDelivered, at)
}

// MarkRead advances the message for a read acknowledgement by userID.
// Read implies delivered even when the delivered signal never arrived.
func (m *Message) MarkRead(userID uuid.UUID, at time.Time) bool {
	if m.To.IsGroup() {
		deliveredAdded := addReceipt(&m.DeliveredTo, userID, at)
		readAdded := addReceipt(&m.ReadBy, userID, at)
		raised := m.raise(StatusRead, at)
		return deliveredAdded || readAdded || raised
	}
	return m.raise(StatusRead, at)
}

// raise moves Status forward to target, filling the timestamps it implies.
func (m *Message) raise(target Status, at time.Time) bool {
	if m.Status >= target {
		return false
	}
	m.Status = target
	if m.DeliveredAt == nil {
		t := at
		m.DeliveredAt = &t
	}
	if target == StatusRead && m.ReadAt == nil {
		t := at
		m.ReadAt = &t
	}
	return true
}

// HasReceipt reports whether userID is present in set.
func HasReceipt(set []Receipt, userID uuid.UUID) bool {
	for _, r := range set {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

func addReceipt(set *[]Receipt, userID uuid.UUID, at time.Time) bool {
	if HasReceipt(*set, userID) {
		return false
	}
	*set = append(*set, Receipt{UserID: userID, At: at})
	return true
}
