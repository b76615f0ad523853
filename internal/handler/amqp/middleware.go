package amqp

import (
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/adapter/pubsub"
)

// TraceIDMiddleware keeps the publisher's trace id, or assigns one to
// events that arrive without it.
func TraceIDMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		if msg.Metadata.Get(pubsub.MetaTraceID) == "" {
			msg.Metadata.Set(pubsub.MetaTraceID, uuid.NewString())
		}
		return h(msg)
	}
}

// LoggingMiddleware reports every consumed event. Failures are logged at
// warn level because the retry and poison stages still follow.
func LoggingMiddleware(logger *slog.Logger) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			out, err := h(msg)

			attrs := []any{
				"msg_id", msg.UUID,
				"trace_id", msg.Metadata.Get(pubsub.MetaTraceID),
				"origin_node", msg.Metadata.Get(pubsub.MetaOriginNode),
				"event_kind", msg.Metadata.Get(pubsub.MetaEventKind),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			if err != nil {
				logger.Warn("BUS_EVENT_FAILED", append(attrs, "err", err)...)
			} else {
				logger.Debug("BUS_EVENT_HANDLED", attrs...)
			}
			return out, err
		}
	}
}

// retryPolicy retries a failing handler briefly. A live event older than a
// few seconds is worth little to a chat client.
func retryPolicy(logger *slog.Logger) middleware.Retry {
	return middleware.Retry{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2,
		OnRetryHook: func(attempt int, delay time.Duration) {
			logger.Debug("BUS_EVENT_RETRY", "attempt", attempt, "delay_ms", delay.Milliseconds())
		},
	}
}
