package wsmarshaller

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

// Client request names.
const (
	OpSend               = "send"
	OpStartTyping        = "startTyping"
	OpStopTyping         = "stopTyping"
	OpAcknowledgeDeliver = "acknowledgeDelivered"
	OpAcknowledgeRead    = "acknowledgeRead"
	OpAcknowledgeAllRead = "acknowledgeAllRead"
	OpReact              = "react"
	OpPresenceSnapshot   = "presenceSnapshot"
)

// Inbound is a client frame before its data is decoded for the named request.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type SendData struct {
	To            model.Peer        `json:"to"`
	Content       string            `json:"content"`
	Attachment    *model.Attachment `json:"attachment,omitempty"`
	CorrelationID string            `json:"client_correlation_id,omitempty"`
}

type TypingData struct {
	To uuid.UUID `json:"to"`
}

type AckData struct {
	MessageID uuid.UUID `json:"message_id"`
}

type AckAllData struct {
	SenderID uuid.UUID `json:"sender_id"`
}

type ReactData struct {
	MessageID uuid.UUID `json:"message_id"`
	Reaction  string    `json:"reaction"`
}

func UnmarshallInbound(raw []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: malformed frame: %w", model.ErrInvalidInput, err)
	}
	if in.Event == "" {
		return nil, fmt.Errorf("%w: frame has no event", model.ErrInvalidInput)
	}
	return &in, nil
}

// Decode unmarshals the request data into T.
func Decode[T any](in *Inbound) (T, error) {
	var v T
	if len(in.Data) == 0 {
		return v, fmt.Errorf("%w: %s has no data", model.ErrInvalidInput, in.Event)
	}
	if err := json.Unmarshal(in.Data, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %w", model.ErrInvalidInput, in.Event, err)
	}
	return v, nil
}
