package mongo

import (
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
)

// messageDoc is the stored shape of a message. Identifiers are kept as
// canonical strings so documents stay readable from the mongo shell.
type messageDoc struct {
	ID          string         `bson:"_id"`
	SenderID    string         `bson:"sender_id"`
	PeerID      string         `bson:"peer_id"`
	PeerType    int32          `bson:"peer_type"`
	Content     string         `bson:"content"`
	Attachment  *attachmentDoc `bson:"attachment,omitempty"`
	Type        string         `bson:"message_type"`
	Status      int32          `bson:"status"`
	DeliveredAt *time.Time     `bson:"delivered_at,omitempty"`
	ReadAt      *time.Time     `bson:"read_at,omitempty"`
	DeliveredTo []receiptDoc   `bson:"delivered_to"`
	ReadBy      []receiptDoc   `bson:"read_by"`
	Reactions   []reactionDoc  `bson:"reactions"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
	Version     int64          `bson:"version"`
}

type attachmentDoc struct {
	URL      string `bson:"url"`
	PublicID string `bson:"public_id,omitempty"`
}

type receiptDoc struct {
	UserID string    `bson:"user"`
	At     time.Time `bson:"at"`
}

type reactionDoc struct {
	UserID   string `bson:"user"`
	Reaction string `bson:"reaction"`
}

func toDoc(m *model.Message) *messageDoc {
	d := &messageDoc{
		ID:          m.ID.String(),
		SenderID:    m.SenderID.String(),
		PeerID:      m.To.ID.String(),
		PeerType:    int32(m.To.Type),
		Content:     m.Content,
		Type:        string(m.Type),
		Status:      int32(m.Status),
		DeliveredAt: m.DeliveredAt,
		ReadAt:      m.ReadAt,
		DeliveredTo: toReceiptDocs(m.DeliveredTo),
		ReadBy:      toReceiptDocs(m.ReadBy),
		Reactions:   toReactionDocs(m.Reactions),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
		Version:     m.Version,
	}
	if m.Attachment.Present() {
		d.Attachment = &attachmentDoc{URL: m.Attachment.URL, PublicID: m.Attachment.PublicID}
	}
	return d
}

func (d *messageDoc) toModel() (*model.Message, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	sender, err := uuid.Parse(d.SenderID)
	if err != nil {
		return nil, err
	}
	peer, err := uuid.Parse(d.PeerID)
	if err != nil {
		return nil, err
	}
	deliveredTo, err := fromReceiptDocs(d.DeliveredTo)
	if err != nil {
		return nil, err
	}
	readBy, err := fromReceiptDocs(d.ReadBy)
	if err != nil {
		return nil, err
	}
	reactions, err := fromReactionDocs(d.Reactions)
	if err != nil {
		return nil, err
	}

	m := &model.Message{
		ID:          id,
		SenderID:    sender,
		To:          model.NewPeer(peer, model.PeerType(d.PeerType)),
		Content:     d.Content,
		Type:        model.MessageType(d.Type),
		Status:      model.Status(d.Status),
		DeliveredAt: d.DeliveredAt,
		ReadAt:      d.ReadAt,
		DeliveredTo: deliveredTo,
		ReadBy:      readBy,
		Reactions:   reactions,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		Version:     d.Version,
	}
	if d.Attachment != nil {
		m.Attachment = &model.Attachment{URL: d.Attachment.URL, PublicID: d.Attachment.PublicID}
	}
	return m, nil
}

func toReceiptDocs(rs []model.Receipt) []receiptDoc {
	out := make([]receiptDoc, 0, len(rs))
	for _, r := range rs {
		out = append(out, receiptDoc{UserID: r.UserID.String(), At: r.At})
	}
	return out
}

func fromReceiptDocs(ds []receiptDoc) ([]model.Receipt, error) {
	out := make([]model.Receipt, 0, len(ds))
	for _, d := range ds {
		id, err := uuid.Parse(d.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Receipt{UserID: id, At: d.At})
	}
	return out, nil
}

func toReactionDocs(rs []model.Reaction) []reactionDoc {
	out := make([]reactionDoc, 0, len(rs))
	for _, r := range rs {
		out = append(out, reactionDoc{UserID: r.UserID.String(), Reaction: r.Reaction})
	}
	return out
}

func fromReactionDocs(ds []reactionDoc) ([]model.Reaction, error) {
	out := make([]model.Reaction, 0, len(ds))
	for _, d := range ds {
		id, err := uuid.Parse(d.UserID)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Reaction{UserID: id, Reaction: d.Reaction})
	}
	return out, nil
}
