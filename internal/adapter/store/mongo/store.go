// Package mongo stores messages in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-realtime-service/internal/domain/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Config struct {
	URI         string
	Database    string
	Collection  string
	MaxPoolSize uint64
}

// Connect opens a client and verifies the server answers.
func Connect(ctx context.Context, cfg Config) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return client, nil
}

type Store struct {
	coll *mongo.Collection
}

func NewStore(db *mongo.Database, collection string) *Store {
	return &Store{coll: db.Collection(collection)}
}

// EnsureIndexes creates the indexes the history and unread queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "peer_id", Value: 1}, {Key: "created_at", Value: 1}}},
		{Keys: bson.D{{Key: "peer_id", Value: 1}, {Key: "peer_type", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongo: ensure indexes: %w", err)
	}
	return nil
}

func (s *Store) SaveMessage(ctx context.Context, m *model.Message) error {
	if _, err := s.coll.InsertOne(ctx, toDoc(m)); err != nil {
		return fmt.Errorf("mongo: insert message %s: %w", m.ID, err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	var doc messageDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: find message %s: %w", id, err)
	}
	return doc.toModel()
}

func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, patch model.StatusPatch, expectedVersion int64) error {
	return s.update(ctx, id, expectedVersion, bson.M{
		"status":       int32(patch.Status),
		"delivered_at": patch.DeliveredAt,
		"read_at":      patch.ReadAt,
		"delivered_to": toReceiptDocs(patch.DeliveredTo),
		"read_by":      toReceiptDocs(patch.ReadBy),
	})
}

func (s *Store) UpdateReactions(ctx context.Context, id uuid.UUID, reactions []model.Reaction, expectedVersion int64) error {
	return s.update(ctx, id, expectedVersion, bson.M{"reactions": toReactionDocs(reactions)})
}

// update applies set only when the stored version still equals expectedVersion.
func (s *Store) update(ctx context.Context, id uuid.UUID, expectedVersion int64, set bson.M) error {
	set["updated_at"] = time.Now().UTC()
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id.String(), "version": expectedVersion},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return fmt.Errorf("mongo: update message %s: %w", id, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return fmt.Errorf("mongo: check message %s: %w", id, err)
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return model.ErrVersionConflict
}

func (s *Store) ListConversationMessages(ctx context.Context, a, b uuid.UUID, page, size int) ([]*model.Message, error) {
	return s.find(ctx, conversationFilter(a, b), page, size)
}

func (s *Store) ListGroupMessages(ctx context.Context, groupID uuid.UUID, page, size int) ([]*model.Message, error) {
	return s.find(ctx, bson.M{"peer_id": groupID.String(), "peer_type": int32(model.PeerGroup)}, page, size)
}

func (s *Store) ListUnread(ctx context.Context, senderID, receiverID uuid.UUID) ([]*model.Message, error) {
	return s.find(ctx, bson.M{
		"sender_id": senderID.String(),
		"peer_id":   receiverID.String(),
		"peer_type": int32(model.PeerUser),
		"status":    bson.M{"$lt": int32(model.StatusRead)},
	}, 1, 0)
}

func conversationFilter(a, b uuid.UUID) bson.M {
	return bson.M{
		"peer_type": int32(model.PeerUser),
		"$or": bson.A{
			bson.M{"sender_id": a.String(), "peer_id": b.String()},
			bson.M{"sender_id": b.String(), "peer_id": a.String()},
		},
	}
}

// find returns matches oldest first. size 0 disables paging.
func (s *Store) find(ctx context.Context, filter bson.M, page, size int) ([]*model.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if size > 0 {
		opts.SetSkip(int64((page - 1) * size)).SetLimit(int64(size))
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: find messages: %w", err)
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode messages: %w", err)
	}

	out := make([]*model.Message, 0, len(docs))
	for i := range docs {
		m, err := docs[i].toModel()
		if err != nil {
			return nil, fmt.Errorf("mongo: corrupt message %s: %w", docs[i].ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}
