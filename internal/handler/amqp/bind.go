package amqp

import (
	"context"
	"encoding/json"
	"runtime/debug"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/adapter/pubsub"
	"github.com/webitel/im-realtime-service/internal/domain/event"
)

// DomainHandler validates a decoded bus event for the local recipient and
// returns what should be delivered (nil to skip).
type DomainHandler[T any] func(ctx context.Context, userID uuid.UUID, payload *T) (event.Eventer, error)

// Bind adapts a DomainHandler to a watermill consumer. Consumed events are
// delivered to local sessions only and are never re-published.
//
// Returning nil ACKs the message. Only a DomainHandler error NACKs it, so
// that retry and the poison queue take over.
func Bind[T any](h *MessageHandler, fn DomainHandler[T]) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		defer h.recoverPanic(msg)

		userID, ok := h.route(msg)
		if !ok {
			return nil
		}

		payload := new(T)
		if jsonErr := json.Unmarshal(msg.Payload, payload); jsonErr != nil {
			// [POISON_PILL] a payload that never decodes is dropped, not retried
			h.logger.Error("BUS_DECODE_FAILED", "err", jsonErr, "msg_id", msg.UUID)
			return nil
		}

		ev, err := fn(msg.Context(), userID, payload)
		if err != nil || ev == nil {
			return err
		}
		h.hub.Broadcast(ev)
		return nil
	}
}

// route applies the origin and locality filters and resolves the recipient.
func (h *MessageHandler) route(msg *message.Message) (uuid.UUID, bool) {
	// [ORIGIN_FILTER] the publishing node already delivered to its own sessions
	if msg.Metadata.Get(pubsub.MetaOriginNode) == h.nodeID {
		return uuid.Nil, false
	}

	userID, ok := recipientOf(msg.Metadata.Get(pubsub.MetaRoutingKey))
	if !ok {
		h.logger.Warn("BUS_ROUTING_FAILED", "reason", "recipient_missing", "msg_id", msg.UUID)
		return uuid.Nil, false
	}

	// [LOCALITY_FILTER] nothing to do unless the recipient is connected here
	if !h.hub.IsOnline(userID) {
		return uuid.Nil, false
	}
	return userID, true
}

func (h *MessageHandler) recoverPanic(msg *message.Message) {
	if r := recover(); r != nil {
		h.logger.Error("BUS_PANIC_RECOVERED", "err", r, "stack", string(debug.Stack()), "msg_id", msg.UUID)
	}
}

// recipientOf extracts the user id segment of a routing key such as
// im_realtime.v1.<user>.message.created.
func recipientOf(routingKey string) (uuid.UUID, bool) {
	for part := range strings.SplitSeq(routingKey, ".") {
		if id, err := uuid.Parse(part); err == nil {
			return id, true
		}
	}
	return uuid.Nil, false
}
