package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// History is the store-and-forward read path: a client coming online fetches
// what it missed here and then acknowledges it.
type History struct {
	store        MessageStore
	dir          Directory
	router       *Router
	storeTimeout time.Duration
}

func NewHistory(store MessageStore, dir Directory, router *Router, storeTimeout time.Duration) *History {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &History{store: store, dir: dir, router: router, storeTimeout: storeTimeout}
}

func (h *History) Conversation(ctx context.Context, userID, peerID uuid.UUID, page, size int) ([]*model.Message, error) {
	if userID == uuid.Nil || peerID == uuid.Nil {
		return nil, fmt.Errorf("history: %w: user and peer are required", model.ErrInvalidInput)
	}
	page, size = normalizePage(page, size)

	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()
	msgs, err := h.store.ListConversationMessages(ctx, userID, peerID, page, size)
	if err != nil {
		return nil, storeErr("history: conversation", err)
	}
	return msgs, nil
}

func (h *History) Group(ctx context.Context, userID, groupID uuid.UUID, page, size int) ([]*model.Message, error) {
	if userID == uuid.Nil || groupID == uuid.Nil {
		return nil, fmt.Errorf("history: %w: user and group are required", model.ErrInvalidInput)
	}
	page, size = normalizePage(page, size)

	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()

	ok, err := h.dir.ValidateRecipient(ctx, model.NewPeer(groupID, model.PeerGroup), userID)
	if err != nil {
		return nil, fmt.Errorf("history: validate member: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("history: %w: not a member of %s", model.ErrUnauthorized, groupID)
	}

	msgs, err := h.store.ListGroupMessages(ctx, groupID, page, size)
	if err != nil {
		return nil, storeErr("history: group", err)
	}
	return msgs, nil
}

// Message returns one message visible to userID.
func (h *History) Message(ctx context.Context, userID, messageID uuid.UUID) (*model.Message, error) {
	msg, err := h.router.Lookup(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.IsParty(userID) {
		return msg, nil
	}
	if msg.To.IsGroup() {
		ok, err := h.dir.ValidateRecipient(ctx, msg.To, userID)
		if err != nil {
			return nil, fmt.Errorf("history: validate member: %w", err)
		}
		if ok {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("history: %w: message %s", model.ErrUnauthorized, messageID)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
