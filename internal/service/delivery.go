package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
)

// [DELIVERY_SERVICE] PRIMARY INTERFACE FOR TRANSPORT HANDLERS (Websocket)
type Deliverer interface {
	Subscribe(ctx context.Context, userID uuid.UUID, meta registry.ConnectMetadata) (registry.Connector, error)
	Unsubscribe(connID uuid.UUID)
}

var _ Deliverer = (*DeliveryService)(nil)

type DeliveryService struct {
	hub        registry.Hubber
	presence   *PresenceTracker
	bufferSize int
}

func NewDeliveryService(hub registry.Hubber, presence *PresenceTracker, bufferSize int) *DeliveryService {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &DeliveryService{hub: hub, presence: presence, bufferSize: bufferSize}
}

// [SUBSCRIBE] HANDLES CONNECTION LIFECYCLE INITIATION
// The handshake is queued before registration so it is always the first
// event the session reads; the presence snapshot follows it.
func (s *DeliveryService) Subscribe(ctx context.Context, userID uuid.UUID, meta registry.ConnectMetadata) (registry.Connector, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("delivery: %w: user is required", model.ErrInvalidInput)
	}

	conn := registry.NewConnectorWithID(ctx, uuid.New(), userID, s.bufferSize, meta)

	hello := event.NewSystemEvent(userID, event.Connected, event.PriorityHigh, &model.ConnectedPayload{
		Ok:            true,
		ConnectionID:  conn.GetID().String(),
		UserID:        userID,
		ServerVersion: model.ServerVersion,
	})
	conn.Send(hello, time.Second)

	s.hub.Register(conn)
	s.presence.SendSnapshot(conn)

	return conn, nil
}

// [UNSUBSCRIBE] DETACHES THE SESSION AND RELEASES IT
func (s *DeliveryService) Unsubscribe(connID uuid.UUID) {
	s.hub.Unregister(connID)
}
