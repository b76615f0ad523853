package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"go.opentelemetry.io/otel/trace"
)

// EventDispatcher defines the high-level contract for outgoing events.
// This allows the handler to stay agnostic of the transport implementation.
type EventDispatcher interface {
	Publish(ctx context.Context, ev event.Eventer) error
	Publisher() message.Publisher
}

type eventDispatcher struct {
	publisher message.Publisher
	topics    Topics
	nodeID    string
}

func NewEventDispatcher(pub message.Publisher, topics Topics, nodeID string) EventDispatcher {
	return &eventDispatcher{publisher: pub, topics: topics, nodeID: nodeID}
}

// Publish sends ev to its topic stamped with this node's id, so that the
// consumer on this node can skip it.
func (d *eventDispatcher) Publish(ctx context.Context, ev event.Eventer) error {
	if ev == nil {
		return fmt.Errorf("event dispatcher: cannot publish nil event")
	}
	x, ok := ev.(event.Exportable)
	if !ok {
		return fmt.Errorf("event dispatcher: %s is not exportable", ev.GetKind())
	}
	topic := d.topics.For(ev.GetKind())
	if topic == "" {
		return fmt.Errorf("event dispatcher: no topic for %s", ev.GetKind())
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event dispatcher: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetaRoutingKey, x.GetRoutingKey())
	msg.Metadata.Set(MetaOriginNode, d.nodeID)
	msg.Metadata.Set(MetaEventKind, ev.GetKind().String())
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.Metadata.Set(MetaTraceID, sc.TraceID().String())
	}

	if err := d.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("event dispatcher: failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

func (d *eventDispatcher) Publisher() message.Publisher {
	return d.publisher
}

// NopDispatcher is used when no bus is configured: events stay on this node.
type NopDispatcher struct{}

func (NopDispatcher) Publish(context.Context, event.Eventer) error { return nil }
func (NopDispatcher) Publisher() message.Publisher                { return nil }
