package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/adapter/pubsub"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
)

// DeliveryMarker applies the automatic delivered transition for recipients
// connected to this node.
type DeliveryMarker interface {
	MarkDeliveredOnSend(ctx context.Context, msg *model.Message, online []uuid.UUID) (*model.Message, error)
}

type MessageHandler struct {
	hub    registry.Hubber
	marker DeliveryMarker
	logger *slog.Logger
	nodeID string
}

// NewMessageHandler builds the consumer side of the bus. marker may be nil,
// in which case remote messages stay sent until the client acknowledges.
func NewMessageHandler(hub registry.Hubber, marker DeliveryMarker, logger *slog.Logger, nodeID string) *MessageHandler {
	return &MessageHandler{hub: hub, marker: marker, logger: logger, nodeID: nodeID}
}

func NewWatermillRouter(logger watermill.LoggerAdapter) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 10 * time.Second}, logger)
	if err != nil {
		return nil, fmt.Errorf("ROUTER_SETUP_FAILED: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer)
	return router, nil
}

// [REGISTRATION_PIPELINE]
func (h *MessageHandler) RegisterHandlers(router *message.Router, bus *pubsub.Bus, topics pubsub.Topics) error {
	poison, err := middleware.PoisonQueue(bus.Publisher, topics.Poison)
	if err != nil {
		return fmt.Errorf("POISON_SETUP_FAILED: %w", err)
	}

	configs := []struct {
		name    string
		topic   string
		handler message.NoPublishHandlerFunc
	}{
		{"ON_MSG_CREATED", topics.MessageCreated, Bind(h, h.OnMessageCreated)},
		{"ON_STATUS_UPDATED", topics.StatusUpdated, Bind(h, h.OnStatusUpdated)},
	}

	for _, c := range configs {
		router.AddConsumerHandler(c.name, c.topic, bus.Subscriber, c.handler).AddMiddleware(
			TraceIDMiddleware,
			LoggingMiddleware(h.logger),
			poison,
			retryPolicy(h.logger).Middleware,
			middleware.Timeout(10*time.Second),
		)
	}

	h.logger.Info("BUS_PIPELINE_READY", "node_id", h.nodeID)
	return nil
}
