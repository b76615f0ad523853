package service

import (
	"context"
	"log/slog"

	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
)

// Emitter hands events to the local registry and, for exportable events,
// to the cluster bus so that sessions on other nodes receive them too.
type Emitter struct {
	hub    registry.Hubber
	pub    EventPublisher
	logger *slog.Logger
}

// NewEmitter builds an emitter. pub may be nil on a single node deployment.
func NewEmitter(hub registry.Hubber, pub EventPublisher, logger *slog.Logger) *Emitter {
	return &Emitter{hub: hub, pub: pub, logger: logger}
}

// Emit never fails: a missing local session or a bus error is logged only.
func (e *Emitter) Emit(ctx context.Context, ev event.Eventer) {
	e.hub.Broadcast(ev)

	x, ok := ev.(event.Exportable)
	if !ok || e.pub == nil || x.GetRoutingKey() == "" {
		return
	}
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.logger.Warn("EVENT_EXPORT_FAILED",
			"err", err,
			"event_id", ev.GetID(),
			"event_kind", ev.GetKind().String(),
			"routing_key", x.GetRoutingKey(),
		)
	}
}
