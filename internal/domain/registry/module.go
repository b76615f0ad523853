package registry

import (
	"context"
	"log/slog"

	"github.com/webitel/im-realtime-service/config"
	"go.uber.org/fx"
)

var Module = fx.Module("registry",
	fx.Provide(
		newHubFromConfig,
		func(h *Hub) Hubber { return h },
	),
	fx.Invoke(closeOnStop),
)

func newHubFromConfig(cfg *config.Config, logger *slog.Logger) *Hub {
	return NewHub(
		WithShards(cfg.Registry.Shards),
		WithMailboxSize(cfg.Registry.MailboxSize),
		WithSendTimeout(cfg.Registry.SendTimeout),
		WithLogger(logger.With("component", "registry")),
	)
}

// closeOnStop ends every session when the app stops. Transports see their
// sessions' Done channels close and send the disconnect frame.
func closeOnStop(lc fx.Lifecycle, h Hubber) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			h.Shutdown()
			return nil
		},
	})
}
