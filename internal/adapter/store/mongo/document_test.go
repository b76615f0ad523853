package mongo

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
)

// A group message with receipts and reactions must survive a trip through BSON.
func TestDocument_GroupMessageThroughBSON(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	member := uuid.New()
	in := &model.Message{
		ID:          uuid.New(),
		SenderID:    uuid.New(),
		To:          model.NewPeer(uuid.New(), model.PeerGroup),
		Attachment:  &model.Attachment{URL: "https://cdn/p.png", PublicID: "p"},
		Type:        model.MessageImage,
		Status:      model.StatusRead,
		DeliveredAt: &now,
		ReadAt:      &now,
		DeliveredTo: []model.Receipt{{UserID: member, At: now}},
		ReadBy:      []model.Receipt{{UserID: member, At: now}},
		Reactions:   []model.Reaction{{UserID: member, Reaction: "🔥"}},
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     4,
	}

	raw, err := bson.Marshal(toDoc(in))
	if err != nil {
		t.Fatal(err)
	}
	var doc messageDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	out, err := doc.toModel()
	if err != nil {
		t.Fatal(err)
	}

	if out.ID != in.ID || out.To != in.To || out.Status != in.Status || out.Version != 4 {
		t.Fatalf("identity fields differ: %+v", out)
	}
	if !model.HasReceipt(out.ReadBy, member) || !model.HasReceipt(out.DeliveredTo, member) {
		t.Fatal("receipts lost")
	}
	if out.Attachment == nil || out.Attachment.PublicID != "p" || len(out.Reactions) != 1 {
		t.Fatalf("attachment/reactions lost: %+v", out)
	}
	if !out.ReadAt.Equal(now) {
		t.Fatalf("read_at = %v", out.ReadAt)
	}
}

func TestConversationFilter_IsSymmetric(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	f := conversationFilter(a, b)
	or := f["$or"].(bson.A)
	if len(or) != 2 {
		t.Fatalf("filter = %v", f)
	}
	first := or[0].(bson.M)
	second := or[1].(bson.M)
	if first["sender_id"] != second["peer_id"] || first["peer_id"] != second["sender_id"] {
		t.Fatalf("filter is not symmetric: %v", f)
	}
}
