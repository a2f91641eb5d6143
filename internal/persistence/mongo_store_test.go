package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/flowstate/internal/testutil"
)

type MongoStoreTestSuite struct {
	suite.Suite
	store *MongoStore
}

func TestMongoStoreTestSuite(t *testing.T) {
	uri := testutil.GetMongoURI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("mongo.Connect failed: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})

	store := NewMongoStore(client, "flowstate_test", "snapshots")
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	suite.Run(t, &MongoStoreTestSuite{store: store})
}

func (m *MongoStoreTestSuite) SetupTest() {
	_, err := m.store.coll.DeleteMany(context.Background(), map[string]any{})
	m.NoError(err)
}

func (m *MongoStoreTestSuite) TestContract() {
	runSnapshotStoreContract(m.T(), m.store)
}
