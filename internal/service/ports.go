package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

// MessageStore is the durable source of truth for messages and their status.
// Implementations return model.ErrNotFound for a missing message and
// model.ErrVersionConflict when expectedVersion no longer matches.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error)
	// UpdateStatus writes the delivery fields and bumps Version by one.
	UpdateStatus(ctx context.Context, id uuid.UUID, patch model.StatusPatch, expectedVersion int64) error
	UpdateReactions(ctx context.Context, id uuid.UUID, reactions []model.Reaction, expectedVersion int64) error
	// ListConversationMessages returns the direct conversation between a and b, oldest first.
	ListConversationMessages(ctx context.Context, a, b uuid.UUID, page, size int) ([]*model.Message, error)
	ListGroupMessages(ctx context.Context, groupID uuid.UUID, page, size int) ([]*model.Message, error)
	// ListUnread returns direct messages from senderID to receiverID that are not read yet.
	ListUnread(ctx context.Context, senderID, receiverID uuid.UUID) ([]*model.Message, error)
}

// Directory answers identity and membership questions. Membership is read
// fresh on every call and never cached by the core.
type Directory interface {
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error)
	// ResolveGroupMembers returns model.ErrNotFound when the group is gone.
	ResolveGroupMembers(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
	// ValidateRecipient reports whether userID may receive messages addressed to `to`.
	ValidateRecipient(ctx context.Context, to model.Peer, userID uuid.UUID) (bool, error)
}

// CacheBackend is a disposable key-value store with TTL support.
// Get returns model.ErrNotFound on a miss.
type CacheBackend interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// EventPublisher exports events to the other nodes of the cluster.
type EventPublisher interface {
	Publish(ctx context.Context, ev event.Eventer) error
}
