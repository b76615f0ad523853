package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

var (
	_ Eventer    = (*StatusEvent)(nil)
	_ Exportable = (*StatusEvent)(nil)
)

// StatusEvent tells a sender that one (or, for bulk reads, several) of its
// messages advanced in the delivery lifecycle.
type StatusEvent struct {
	ID         uuid.UUID            `json:"id"`
	UserID     uuid.UUID            `json:"user_id"`
	OccurredAt int64                `json:"occurred_at"`
	Payload    *model.StatusPayload `json:"payload"`
	cached     cacheSlot
}

func NewStatusEvent(senderID uuid.UUID, payload *model.StatusPayload) *StatusEvent {
	return &StatusEvent{
		ID:         uuid.New(),
		UserID:     senderID,
		OccurredAt: time.Now().UnixMilli(),
		Payload:    payload,
	}
}

func (e *StatusEvent) GetID() string              { return e.ID.String() }
func (e *StatusEvent) GetPayload() any            { return e.Payload }
func (e *StatusEvent) GetUserID() uuid.UUID       { return e.UserID }
func (e *StatusEvent) GetOccurredAt() int64       { return e.OccurredAt }
func (e *StatusEvent) GetKind() EventKind         { return StatusUpdated }
func (e *StatusEvent) GetPriority() EventPriority { return PriorityNormal }
func (e *StatusEvent) GetCached() any             { return e.cached.load() }
func (e *StatusEvent) SetCached(v any)            { e.cached.store(v) }

// [PATTERN] im_realtime.v1.{sender}.message.status
func (e *StatusEvent) GetRoutingKey() string {
	return fmt.Sprintf("im_realtime.v1.%s.message.status", e.UserID)
}
