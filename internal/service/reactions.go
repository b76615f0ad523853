package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"github.com/webitel/im-realtime-service/internal/domain/registry"
)

// Reactions keeps at most one reaction per user on a message.
type Reactions struct {
	store        MessageStore
	dir          Directory
	staging      *Staging
	hub          registry.Hubber
	locks        stripedLock
	storeTimeout time.Duration
}

func NewReactions(store MessageStore, dir Directory, staging *Staging, hub registry.Hubber, storeTimeout time.Duration) *Reactions {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Reactions{store: store, dir: dir, staging: staging, hub: hub, storeTimeout: storeTimeout}
}

// React sets userID's reaction. Sending the current reaction again, or an
// empty one, removes it.
func (r *Reactions) React(ctx context.Context, messageID, userID uuid.UUID, reaction string) (*model.Message, error) {
	if messageID == uuid.Nil || userID == uuid.Nil {
		return nil, fmt.Errorf("reactions: %w: message and user are required", model.ErrInvalidInput)
	}
	reaction = strings.TrimSpace(reaction)

	ctx, cancel := context.WithTimeout(ctx, r.storeTimeout)
	defer cancel()

	unlock := r.locks.lock(messageID)
	defer unlock()

	msg, err := r.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeErr("reactions: load message", err)
	}
	parties, err := r.parties(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(parties, userID) {
		return nil, fmt.Errorf("reactions: %w: %s is not in the conversation", model.ErrUnauthorized, userID)
	}

	for attempt := 1; ; attempt++ {
		msg.Reactions = toggleReaction(msg.Reactions, userID, reaction)
		err = r.store.UpdateReactions(ctx, msg.ID, msg.Reactions, msg.Version)
		if err == nil {
			msg.Version++
			r.staging.Evict(ctx, msg.ID)
			break
		}
		if !errors.Is(err, model.ErrVersionConflict) || attempt >= maxCommitAttempts {
			return nil, storeErr("reactions: update", err)
		}
		if msg, err = r.store.GetMessage(ctx, messageID); err != nil {
			return nil, storeErr("reactions: reload message", err)
		}
	}

	payload := &model.ReactionPayload{MessageID: msg.ID, To: msg.To, Reactions: msg.Reactions}
	for _, id := range parties {
		r.hub.Broadcast(event.NewSystemEvent(id, event.ReactionUpdated, event.PriorityNormal, payload))
	}
	return msg, nil
}

// parties lists everyone who sees the message: both direct users, or the
// current group members.
func (r *Reactions) parties(ctx context.Context, msg *model.Message) ([]uuid.UUID, error) {
	if !msg.To.IsGroup() {
		return []uuid.UUID{msg.SenderID, msg.To.ID}, nil
	}
	members, err := r.dir.ResolveGroupMembers(ctx, msg.To.ID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("reactions: %w: group %s is gone", model.ErrInvalidTarget, msg.To.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("reactions: resolve members: %w", err)
	}
	return members, nil
}

func toggleReaction(set []model.Reaction, userID uuid.UUID, reaction string) []model.Reaction {
	out := make([]model.Reaction, 0, len(set)+1)
	current := ""
	for _, r := range set {
		if r.UserID == userID {
			current = r.Reaction
			continue
		}
		out = append(out, r)
	}
	if reaction != "" && reaction != current {
		out = append(out, model.Reaction{UserID: userID, Reaction: reaction})
	}
	return out
}
