package service

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

func TestPresence_SetFollowsRegistry(t *testing.T) {
	h := newHarness(t)
	a, b := uuid.New(), uuid.New()

	sa := h.connect(t, a)
	sb1 := h.connect(t, b)
	sb2 := h.connect(t, b)

	if !h.presence.IsOnline(a) || !h.presence.IsOnline(b) {
		t.Fatal("both users must be online")
	}
	online := h.presence.Snapshot()
	if len(online) != 2 || !slices.Contains(online, a) || !slices.Contains(online, b) {
		t.Fatalf("snapshot = %v", online)
	}

	ev := waitFor(t, sa, event.PresenceChanged).GetPayload().(*model.PresencePayload)
	if ev.UserID != b || !ev.Online {
		t.Fatalf("presence = %+v", ev)
	}

	h.delivery.Unsubscribe(sb1.GetID())
	if !h.presence.IsOnline(b) {
		t.Fatal("b still has a session")
	}
	assertNo(t, sa, event.PresenceChanged, 50*time.Millisecond)

	h.delivery.Unsubscribe(sb2.GetID())
	if h.presence.IsOnline(b) {
		t.Fatal("b must be offline once the last session leaves")
	}
	ev = waitFor(t, sa, event.PresenceChanged).GetPayload().(*model.PresencePayload)
	if ev.UserID != b || ev.Online {
		t.Fatalf("presence = %+v", ev)
	}

	// Repeated unregister is a no-op.
	h.delivery.Unsubscribe(sb2.GetID())
	assertNo(t, sa, event.PresenceChanged, 50*time.Millisecond)
}

func TestPresence_SnapshotOnJoin(t *testing.T) {
	h := newHarness(t)
	a, b := uuid.New(), uuid.New()
	h.connect(t, a)

	conn, err := h.delivery.Subscribe(context.Background(), b, registryMeta())
	if err != nil {
		t.Fatal(err)
	}
	hello := waitFor(t, conn, event.Connected).GetPayload().(*model.ConnectedPayload)
	if !hello.Ok || hello.UserID != b || hello.ConnectionID != conn.GetID().String() {
		t.Fatalf("handshake = %+v", hello)
	}
	snap := waitFor(t, conn, event.PresenceSnapshot).GetPayload().(*model.PresenceSnapshotPayload)
	if !slices.Contains(snap.Online, a) || !slices.Contains(snap.Online, b) {
		t.Fatalf("snapshot = %v", snap.Online)
	}
}

func TestPresence_OverflowDropsWithoutBlocking(t *testing.T) {
	h := newHarness(t)
	p := NewPresenceTracker(h.hub, 1, discardLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			p.OnPresenceChanged(uuid.New(), true)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnPresenceChanged blocked on a full queue")
	}
	if got := len(p.Snapshot()); got != 100 {
		t.Fatalf("set = %d, want 100", got)
	}
}
