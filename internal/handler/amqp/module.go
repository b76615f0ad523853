package amqp

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-realtime-service/config"
	"github.com/webitel/im-realtime-service/internal/adapter/pubsub"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
	"github.com/webitel/im-realtime-service/internal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("amqp-handler",
	fx.Provide(
		func(hub registry.Hubber, receipts *service.Receipts, logger *slog.Logger, cfg *config.Config) *MessageHandler {
			return NewMessageHandler(hub, receipts, logger.With("component", "bus"), cfg.Service.NodeID)
		},
		NewWatermillRouter,
	),

	fx.Invoke(run),
)

// run consumes the bus for the app lifetime. Without a bus there is nothing to consume.
func run(lc fx.Lifecycle, router *message.Router, h *MessageHandler, bus *pubsub.Bus, topics pubsub.Topics, logger watermill.LoggerAdapter) error {
	if bus == nil {
		return nil
	}
	if err := h.RegisterHandlers(router, bus, topics); err != nil {
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					logger.Error("BUS_ROUTER_STOPPED", err, nil)
				}
			}()
			select {
			case <-router.Running():
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(context.Context) error {
			return router.Close()
		},
	})
	return nil
}
