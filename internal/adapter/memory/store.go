// Package memory holds process-local implementations of the durable store and
// the directory. They back single-node development setups and the tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

type Store struct {
	mu       sync.RWMutex
	messages map[uuid.UUID]*model.Message
}

func NewStore() *Store {
	return &Store{messages: make(map[uuid.UUID]*model.Message)}
}

func (s *Store) SaveMessage(ctx context.Context, m *model.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[m.ID] = m.Clone()
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, patch model.StatusPatch, expectedVersion int64) error {
	return s.update(ctx, id, expectedVersion, func(m *model.Message) { m.Apply(patch) })
}

func (s *Store) UpdateReactions(ctx context.Context, id uuid.UUID, reactions []model.Reaction, expectedVersion int64) error {
	rs := append([]model.Reaction(nil), reactions...)
	return s.update(ctx, id, expectedVersion, func(m *model.Message) { m.Reactions = rs })
}

func (s *Store) update(ctx context.Context, id uuid.UUID, expectedVersion int64, apply func(*model.Message)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return model.ErrNotFound
	}
	if m.Version != expectedVersion {
		return model.ErrVersionConflict
	}
	next := m.Clone()
	apply(next)
	next.Version++
	next.UpdatedAt = time.Now().UTC()
	s.messages[id] = next
	return nil
}

func (s *Store) ListConversationMessages(ctx context.Context, a, b uuid.UUID, page, size int) ([]*model.Message, error) {
	return s.list(ctx, page, size, func(m *model.Message) bool {
		if m.To.IsGroup() {
			return false
		}
		return (m.SenderID == a && m.To.ID == b) || (m.SenderID == b && m.To.ID == a)
	})
}

func (s *Store) ListGroupMessages(ctx context.Context, groupID uuid.UUID, page, size int) ([]*model.Message, error) {
	return s.list(ctx, page, size, func(m *model.Message) bool {
		return m.To.IsGroup() && m.To.ID == groupID
	})
}

func (s *Store) ListUnread(ctx context.Context, senderID, receiverID uuid.UUID) ([]*model.Message, error) {
	return s.list(ctx, 1, 0, func(m *model.Message) bool {
		return !m.To.IsGroup() && m.SenderID == senderID && m.To.ID == receiverID && m.Status < model.StatusRead
	})
}

// list returns matches oldest first. size 0 means no paging.
func (s *Store) list(ctx context.Context, page, size int, match func(*model.Message) bool) ([]*model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]*model.Message, 0)
	for _, m := range s.messages {
		if match(m) {
			out = append(out, m.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if size <= 0 {
		return out, nil
	}
	from := (page - 1) * size
	if from >= len(out) {
		return []*model.Message{}, nil
	}
	to := min(from+size, len(out))
	return out[from:to], nil
}
