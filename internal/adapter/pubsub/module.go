package pubsub

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/webitel/im-realtime-service/config"
	"github.com/webitel/im-realtime-service/internal/service"
	"go.uber.org/fx"
)

// Module provides the cluster bus. With broker.driver=none no *Bus is built
// and events never leave the node.
var Module = fx.Module("pubsub",
	fx.Provide(
		func(cfg *config.Config) Topics { return NewTopics(cfg.Broker.Topic) },
		func(lc fx.Lifecycle, cfg *config.Config, logger watermill.LoggerAdapter) (*Bus, error) {
			if cfg.Broker.Driver == DriverNone {
				return nil, nil
			}
			bus, err := NewBus(BusConfig{
				Driver: cfg.Broker.Driver,
				URL:    cfg.Broker.URL,
				NodeID: cfg.Service.NodeID,
			}, logger)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error { return bus.Close() },
			})
			return bus, nil
		},
		func(bus *Bus, topics Topics, cfg *config.Config, logger *slog.Logger) EventDispatcher {
			if bus == nil {
				logger.Info("EVENT_BUS_DISABLED")
				return NopDispatcher{}
			}
			return NewEventDispatcher(bus.Publisher, topics, cfg.Service.NodeID)
		},
		fx.Annotate(
			func(d EventDispatcher) EventDispatcher { return d },
			fx.As(new(service.EventPublisher)),
		),
	),
)
