package service

import (
	"context"
	"log/slog"

	"github.com/webitel/im-realtime-service/config"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
	"go.uber.org/fx"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		NewEmitter,
		NewFanoutResolver,
		NewTyping,
		func(cache CacheBackend, cfg *config.Config, logger *slog.Logger) *Staging {
			return NewStaging(cache, cfg.Cache.TTL, cfg.Cache.Timeout, logger.With("component", "staging"))
		},
		func(hub registry.Hubber, cfg *config.Config, logger *slog.Logger) *PresenceTracker {
			return NewPresenceTracker(hub, cfg.Registry.PresenceQueue, logger.With("component", "presence"))
		},
		func(store MessageStore, dir Directory, staging *Staging, emit *Emitter, cfg *config.Config, logger *slog.Logger) *Receipts {
			return NewReceipts(store, dir, staging, emit, cfg.Store.Timeout, logger.With("component", "receipts"))
		},
		func(
			store MessageStore,
			dir Directory,
			staging *Staging,
			fanout *FanoutResolver,
			receipts *Receipts,
			hub registry.Hubber,
			emit *Emitter,
			cfg *config.Config,
			logger *slog.Logger,
		) *Router {
			return NewRouter(store, dir, staging, fanout, receipts, hub, emit, RouterOptions{
				StoreTimeout: cfg.Store.Timeout,
			}, logger.With("component", "router"))
		},
		func(cache CacheBackend, store MessageStore, cfg *config.Config, logger *slog.Logger) *Reconciler {
			return NewReconciler(cache, store, cfg.Cache.SweepInterval, logger.With("component", "reconciler"))
		},
		func(store MessageStore, dir Directory, staging *Staging, hub registry.Hubber, cfg *config.Config) *Reactions {
			return NewReactions(store, dir, staging, hub, cfg.Store.Timeout)
		},
		func(store MessageStore, dir Directory, router *Router, cfg *config.Config) *History {
			return NewHistory(store, dir, router, cfg.Store.Timeout)
		},
		fx.Annotate(
			func(hub registry.Hubber, presence *PresenceTracker, cfg *config.Config) *DeliveryService {
				return NewDeliveryService(hub, presence, cfg.Registry.SessionBuffer)
			},
			fx.As(new(Deliverer)),
		),
	),

	// [DECORATION_LAYER] Intercept Directory to add cross-cutting concerns
	fx.Decorate(func(orig Directory, logger *slog.Logger) Directory {
		return NewDirectoryMiddleware(orig, logger.With("component", "directory"))
	}),

	fx.Invoke(startWorkers),
)

// startWorkers subscribes the presence tracker to registry edges and runs the
// background loops for the lifetime of the app.
func startWorkers(lc fx.Lifecycle, hub registry.Hubber, presence *PresenceTracker, reconciler *Reconciler) {
	hub.Observe(presence)

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go presence.Run(ctx)
			go reconciler.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			presence.Stop()
			return nil
		},
	})
}
