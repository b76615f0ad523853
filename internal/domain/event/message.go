package event

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

var (
	_ Eventer    = (*MessageEvent)(nil)
	_ Exportable = (*MessageEvent)(nil)
)

// MessageEvent is a domain event wrapper that facilitates the "Fan-out" delivery pattern.
//
// [STRATEGY]
// It distinguishes between:
//   - [BUSINESS_PEERS] (Payload.Message.SenderID/To): Logical participants (The "Who").
//   - [ROUTING_TARGET] (UserID): The physical recipient of this event instance (The "Where").
type MessageEvent struct {
	ID         uuid.UUID             `json:"id"`
	UserID     uuid.UUID             `json:"user_id"` // [PHYSICAL_RECIPIENT] Target user ID
	OccurredAt int64                 `json:"occurred_at"`
	Payload    *model.MessagePayload `json:"payload"`
	cached     cacheSlot
}

// NewMessageEvent binds a committed message to one recipient.
//
// [NOTE] Even if the message is sent to a Group (message.To),
// the 'userID' must be the ID of the individual subscriber.
func NewMessageEvent(msg *model.Message, userID uuid.UUID, correlationID string) *MessageEvent {
	return &MessageEvent{
		ID:         uuid.New(),
		UserID:     userID,
		OccurredAt: msg.CreatedAt.UnixMilli(),
		Payload:    &model.MessagePayload{Message: msg, CorrelationID: correlationID},
	}
}

func (e *MessageEvent) GetID() string              { return e.ID.String() }
func (e *MessageEvent) GetPayload() any            { return e.Payload }
func (e *MessageEvent) GetUserID() uuid.UUID       { return e.UserID }
func (e *MessageEvent) GetOccurredAt() int64       { return e.OccurredAt }
func (e *MessageEvent) GetKind() EventKind         { return MessageCreated }
func (e *MessageEvent) GetPriority() EventPriority { return PriorityHigh }
func (e *MessageEvent) GetCached() any             { return e.cached.load() }
func (e *MessageEvent) SetCached(v any)            { e.cached.store(v) }

// GetRoutingKey generates the bus routing key.
// [PATTERN] im_realtime.v1.{recipient}.message.created
func (e *MessageEvent) GetRoutingKey() string {
	return fmt.Sprintf("im_realtime.v1.%s.message.created", e.UserID)
}
