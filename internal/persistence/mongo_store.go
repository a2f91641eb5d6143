package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/flowstate/pkg/api"
)

// MongoStore is a SnapshotStore backed by a MongoDB collection.
type MongoStore struct {
	coll *mongo.Collection
}

var _ SnapshotStore = (*MongoStore)(nil)

// NewMongoStore creates a Mongo-backed snapshot store.
// dbName defaults to "flowstate" if empty, collName defaults to "snapshots".
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	if dbName == "" {
		dbName = "flowstate"
	}
	if collName == "" {
		collName = "snapshots"
	}

	return &MongoStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoSnapshotDoc struct {
	ID             string    `bson:"_id"`
	ConversationID string    `bson:"conversation_id"`
	SnapshotID     int       `bson:"snapshot_id"`
	Data           []byte    `bson:"data"`
	SavedAt        time.Time `bson:"saved_at"`
}

func mongoSnapshotID(conversationID api.ConversationID, snapshotID int) string {
	return string(conversationID) + ":" + strconv.Itoa(snapshotID)
}

// EnsureIndexes creates the conversation index used by DeleteConversation.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}},
	})
	return err
}

func (s *MongoStore) SaveSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int, data []byte) error {
	id := mongoSnapshotID(conversationID, snapshotID)
	doc := mongoSnapshotDoc{
		ID:             id,
		ConversationID: string(conversationID),
		SnapshotID:     snapshotID,
		Data:           data,
		SavedAt:        time.Now().UTC(),
	}
	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) LoadSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) ([]byte, error) {
	var doc mongoSnapshotDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": mongoSnapshotID(conversationID, snapshotID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, snapshotNotFound(conversationID, snapshotID)
	}
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (s *MongoStore) DeleteSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": mongoSnapshotID(conversationID, snapshotID)})
	return err
}

func (s *MongoStore) DeleteConversation(ctx context.Context, conversationID api.ConversationID) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"conversation_id": string(conversationID)})
	return err
}
