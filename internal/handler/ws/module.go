package ws

import (
	"log/slog"

	"github.com/webitel/im-realtime-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("delivery-ws",
	fx.Provide(NewFromServices),
)

// NewFromServices collects the core operations for the WebSocket transport.
func NewFromServices(
	logger *slog.Logger,
	deliverer service.Deliverer,
	router *service.Router,
	receipts *service.Receipts,
	typing *service.Typing,
	reactions *service.Reactions,
	presence *service.PresenceTracker,
) *WSHandler {
	return NewWSHandler(logger.With("component", "ws"), Services{
		Deliverer: deliverer,
		Router:    router,
		Receipts:  receipts,
		Typing:    typing,
		Reactions: reactions,
		Presence:  presence,
	})
}
