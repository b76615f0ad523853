package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/event"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

func TestTyping_RelaysToPeerOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()
	sa := h.connect(t, a)
	sb := h.connect(t, b)

	if err := h.typing.StartTyping(ctx, a, b); err != nil {
		t.Fatal(err)
	}
	ev := waitFor(t, sb, event.TypingStarted)
	if ev.GetPriority() != event.PriorityLow {
		t.Fatalf("priority = %d", ev.GetPriority())
	}
	if p := ev.GetPayload().(*model.TypingPayload); p.FromID != a || p.ToID != b {
		t.Fatalf("payload = %+v", p)
	}
	assertNo(t, sa, event.TypingStarted, 50*time.Millisecond)

	if err := h.typing.StopTyping(ctx, a, b); err != nil {
		t.Fatal(err)
	}
	waitFor(t, sb, event.TypingStopped)

	if err := h.typing.StartTyping(ctx, uuid.Nil, b); !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
	// Offline peer: silently ignored.
	if err := h.typing.StartTyping(ctx, a, uuid.New()); err != nil {
		t.Fatal(err)
	}
}

func TestReactions_Toggle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	h.dir.AddUsers(a, b, c)
	msg := sendDirect(t, h, a, b, "nice")
	sa := h.connect(t, a)

	got, err := h.reactions.React(ctx, msg.ID, b, "👍")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Reactions) != 1 || got.Reactions[0].UserID != b {
		t.Fatalf("reactions = %+v", got.Reactions)
	}
	p := waitFor(t, sa, event.ReactionUpdated).GetPayload().(*model.ReactionPayload)
	if p.MessageID != msg.ID || len(p.Reactions) != 1 {
		t.Fatalf("payload = %+v", p)
	}

	got, _ = h.reactions.React(ctx, msg.ID, b, "❤️")
	if len(got.Reactions) != 1 || got.Reactions[0].Reaction != "❤️" {
		t.Fatalf("replace = %+v", got.Reactions)
	}
	got, _ = h.reactions.React(ctx, msg.ID, b, "❤️")
	if len(got.Reactions) != 0 {
		t.Fatalf("same reaction must clear, got %+v", got.Reactions)
	}
	if _, err := h.reactions.React(ctx, msg.ID, a, "😂"); err != nil {
		t.Fatal(err)
	}
	got, _ = h.reactions.React(ctx, msg.ID, a, "")
	if len(got.Reactions) != 0 {
		t.Fatalf("empty reaction must clear, got %+v", got.Reactions)
	}

	if _, err := h.reactions.React(ctx, msg.ID, c, "👀"); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("outsider: %v", err)
	}
}

func TestHistory_AccessRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, c, group := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	h.dir.AddUsers(a, b, c)
	h.dir.AddGroup(group, a, b)

	direct := sendDirect(t, h, a, b, "one")
	sendDirect(t, h, b, a, "two")
	if _, err := h.router.Send(ctx, SendRequest{SenderID: a, Target: model.NewPeer(group, model.PeerGroup), Content: "g"}); err != nil {
		t.Fatal(err)
	}

	conv, err := h.history.Conversation(ctx, b, a, 0, 0)
	if err != nil || len(conv) != 2 {
		t.Fatalf("conversation = %d, %v", len(conv), err)
	}

	msgs, err := h.history.Group(ctx, b, group, 1, 10)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("group = %d, %v", len(msgs), err)
	}
	if _, err := h.history.Group(ctx, c, group, 1, 10); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("outsider group history: %v", err)
	}

	if _, err := h.history.Message(ctx, b, direct.ID); err != nil {
		t.Fatalf("receiver lookup: %v", err)
	}
	if _, err := h.history.Message(ctx, c, direct.ID); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("outsider lookup: %v", err)
	}
}

func TestFanout_ExcludesSenderAndDuplicates(t *testing.T) {
	h := newHarness(t)
	a, b, group := uuid.New(), uuid.New(), uuid.New()
	h.dir.AddGroup(group, a, b)

	members, err := NewFanoutResolver(h.dir).MembersOf(context.Background(), group, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0] != b {
		t.Fatalf("members = %v", members)
	}

	gone, err := NewFanoutResolver(h.dir).MembersOf(context.Background(), uuid.New(), a)
	if err != nil || len(gone) != 0 {
		t.Fatalf("deleted group = %v, %v", gone, err)
	}
}
