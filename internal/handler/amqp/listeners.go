package amqp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
)

// [ON_MESSAGE_CREATED]
// A message committed on another node for a recipient connected here. The
// origin node only sees its own sessions, so the sent -> delivered step for
// this recipient happens here.
func (h *MessageHandler) OnMessageCreated(ctx context.Context, userID uuid.UUID, ev *event.MessageEvent) (event.Eventer, error) {
	if ev.Payload == nil || ev.Payload.Message == nil {
		return nil, fmt.Errorf("message event %s: empty payload", ev.ID)
	}
	if ev.UserID != userID {
		h.logger.Warn("ROUTING_MISMATCH", "routing_user", userID, "event_user", ev.UserID, "event_id", ev.ID)
		return nil, nil
	}
	if h.marker != nil && ev.Payload.Message.SenderID != userID {
		// The message itself is delivered either way; a failed mark waits for the client ack.
		if _, err := h.marker.MarkDeliveredOnSend(ctx, ev.Payload.Message.Clone(), []uuid.UUID{userID}); err != nil {
			h.logger.Warn("REMOTE_AUTO_DELIVERED_FAILED", "err", err, "message_id", ev.Payload.Message.ID, "user_id", userID)
		}
	}
	return ev, nil
}

// [ON_STATUS_UPDATED]
// A delivery transition committed on another node for a sender connected here.
func (h *MessageHandler) OnStatusUpdated(ctx context.Context, userID uuid.UUID, ev *event.StatusEvent) (event.Eventer, error) {
	if ev.Payload == nil {
		return nil, fmt.Errorf("status event %s: empty payload", ev.ID)
	}
	if ev.UserID != userID {
		h.logger.Warn("ROUTING_MISMATCH", "routing_user", userID, "event_user", ev.UserID, "event_id", ev.ID)
		return nil, nil
	}
	return ev, nil
}
