package pubsub

import (
	"github.com/webitel/im-realtime-service/internal/domain/event"
)

// Metadata keys carried by every exported event.
const (
	MetaRoutingKey = "routing_key"
	MetaOriginNode = "origin_node"
	MetaEventKind  = "event_kind"
	MetaTraceID    = "trace_id"
)

// Topics derives the bus topics from the configured prefix.
type Topics struct {
	MessageCreated string
	StatusUpdated  string
	Poison         string
}

func NewTopics(prefix string) Topics {
	return Topics{
		MessageCreated: prefix + ".message.created",
		StatusUpdated:  prefix + ".message.status",
		Poison:         prefix + ".poison",
	}
}

// For returns the topic of an exportable event kind, or "" when the kind
// never leaves the node.
func (t Topics) For(kind event.EventKind) string {
	switch kind {
	case event.MessageCreated:
		return t.MessageCreated
	case event.StatusUpdated:
		return t.StatusUpdated
	default:
		return ""
	}
}
