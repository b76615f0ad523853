package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

func TestStore_OptimisticUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	m := &model.Message{ID: uuid.New(), SenderID: uuid.New(), To: model.NewPeer(uuid.New(), model.PeerUser), Status: model.StatusSent}
	if err := s.SaveMessage(ctx, m); err != nil {
		t.Fatal(err)
	}

	patch := model.StatusPatch{Status: model.StatusDelivered}
	if err := s.UpdateStatus(ctx, m.ID, patch, 0); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := s.UpdateStatus(ctx, m.ID, patch, 0); !errors.Is(err, model.ErrVersionConflict) {
		t.Fatalf("stale version must conflict, got %v", err)
	}
	got, _ := s.GetMessage(ctx, m.ID)
	if got.Version != 1 || got.Status != model.StatusDelivered {
		t.Fatalf("got %+v", got)
	}
	if _, err := s.GetMessage(ctx, uuid.New()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("missing message: %v", err)
	}
}

func TestStore_Listings(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	base := time.Now()

	save := func(from, to uuid.UUID, offset time.Duration, st model.Status) {
		_ = s.SaveMessage(ctx, &model.Message{
			ID: uuid.New(), SenderID: from, To: model.NewPeer(to, model.PeerUser),
			Status: st, CreatedAt: base.Add(offset),
		})
	}
	save(a, b, 0, model.StatusSent)
	save(b, a, time.Second, model.StatusRead)
	save(a, b, 2*time.Second, model.StatusDelivered)
	save(a, c, 3*time.Second, model.StatusSent)

	conv, err := s.ListConversationMessages(ctx, b, a, 1, 10)
	if err != nil || len(conv) != 3 {
		t.Fatalf("conversation = %d, %v", len(conv), err)
	}
	if !conv[0].CreatedAt.Before(conv[2].CreatedAt) {
		t.Fatal("conversation must be oldest first")
	}

	page2, _ := s.ListConversationMessages(ctx, a, b, 2, 2)
	if len(page2) != 1 {
		t.Fatalf("page 2 = %d messages", len(page2))
	}

	unread, _ := s.ListUnread(ctx, a, b)
	if len(unread) != 2 {
		t.Fatalf("unread = %d, want 2", len(unread))
	}
}
