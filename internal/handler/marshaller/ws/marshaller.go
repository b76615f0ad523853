package wsmarshaller

import (
	"encoding/json"
	"fmt"

	"github.com/webitel/im-realtime-service/internal/domain/event"
)

// Envelope is the frame shape of every outbound WebSocket message.
type Envelope struct {
	Event  string `json:"event"` // e.g. "newMessage", "connected"
	ID     string `json:"id"`
	SentAt int64  `json:"sent_at"`
	Data   any    `json:"data,omitempty"`
}

// MarshallDeliveryEvent encodes ev as one text frame. A group message reaches
// many sessions through the same event, so the encoding is cached on it.
func MarshallDeliveryEvent(ev event.Eventer) ([]byte, error) {
	if cached, ok := ev.GetCached().([]byte); ok {
		return cached, nil
	}

	data, err := json.Marshal(&Envelope{
		Event:  ev.GetKind().String(),
		ID:     ev.GetID(),
		SentAt: ev.GetOccurredAt(),
		Data:   ev.GetPayload(),
	})
	if err != nil {
		return nil, fmt.Errorf("ws: marshal %s: %w", ev.GetKind(), err)
	}

	ev.SetCached(data)
	return data, nil
}
