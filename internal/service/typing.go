package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
)

// Typing relays typing indicators between direct peers. It keeps no state:
// expiry of a stale indicator is left to the receiving client.
type Typing struct {
	hub registry.Hubber
}

func NewTyping(hub registry.Hubber) *Typing {
	return &Typing{hub: hub}
}

func (t *Typing) StartTyping(ctx context.Context, senderID, peerID uuid.UUID) error {
	return t.relay(senderID, peerID, event.TypingStarted)
}

func (t *Typing) StopTyping(ctx context.Context, senderID, peerID uuid.UUID) error {
	return t.relay(senderID, peerID, event.TypingStopped)
}

func (t *Typing) relay(senderID, peerID uuid.UUID, kind event.EventKind) error {
	if senderID == uuid.Nil || peerID == uuid.Nil {
		return fmt.Errorf("typing: %w: sender and peer are required", model.ErrInvalidInput)
	}
	if senderID == peerID {
		return nil
	}
	// Offline peer: nothing to do.
	t.hub.Broadcast(event.NewSystemEvent(peerID, kind, event.PriorityLow,
		&model.TypingPayload{FromID: senderID, ToID: peerID}))
	return nil
}
