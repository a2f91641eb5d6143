package executor

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/flowstate/internal/persistence"
)

// NewInMemoryExecutor returns an Executor whose snapshots and history live
// in process memory.
func NewInMemoryExecutor(cfg Config) (*Executor, error) {
	cfg.Persistence = persistence.Persistence{
		Snapshots: persistence.NewInMemoryStore(),
		Events:    persistence.NewInMemoryEventStore(),
	}
	return NewExecutor(cfg)
}

// NewSQLiteExecutor stores snapshots and history in db, creating the
// tables if needed.
func NewSQLiteExecutor(db *sql.DB, cfg Config) (*Executor, error) {
	snapshots, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	events, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	cfg.Persistence = persistence.Persistence{Snapshots: snapshots, Events: events}
	return NewExecutor(cfg)
}

// NewPostgresExecutor stores snapshots in db. History is kept in memory.
func NewPostgresExecutor(db *sql.DB, cfg Config) (*Executor, error) {
	snapshots, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	cfg.Persistence = persistence.Persistence{
		Snapshots: snapshots,
		Events:    persistence.NewInMemoryEventStore(),
	}
	return NewExecutor(cfg)
}

// NewRedisExecutor stores snapshots in Redis under keyPrefix. History is
// kept in memory.
func NewRedisExecutor(client redis.UniversalClient, keyPrefix string, cfg Config) (*Executor, error) {
	cfg.Persistence = persistence.Persistence{
		Snapshots: persistence.NewRedisStore(client, keyPrefix, 0),
		Events:    persistence.NewInMemoryEventStore(),
	}
	return NewExecutor(cfg)
}

// NewMongoExecutor stores snapshots in the given database's "snapshots"
// collection. History is kept in memory.
func NewMongoExecutor(ctx context.Context, client *mongo.Client, dbName string, cfg Config) (*Executor, error) {
	store := persistence.NewMongoStore(client, dbName, "")
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	cfg.Persistence = persistence.Persistence{
		Snapshots: store,
		Events:    persistence.NewInMemoryEventStore(),
	}
	return NewExecutor(cfg)
}

// NewBlobExecutor stores snapshots in the bucket at bucketURL, such as
// "file:///var/lib/flowstate" or "mem://". The returned close function
// releases the bucket.
func NewBlobExecutor(ctx context.Context, bucketURL string, cfg Config) (*Executor, func() error, error) {
	store, err := persistence.NewBlobStore(ctx, bucketURL, "")
	if err != nil {
		return nil, nil, err
	}
	cfg.Persistence = persistence.Persistence{
		Snapshots: store,
		Events:    persistence.NewInMemoryEventStore(),
	}
	x, err := NewExecutor(cfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return x, store.Close, nil
}
