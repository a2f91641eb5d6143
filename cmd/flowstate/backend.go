package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/flowstate"
	"github.com/petrijr/flowstate/internal/config"
)

// openExecutor builds an executor on the configured snapshot store. The
// returned function releases the store's connections.
func openExecutor(ctx context.Context, cfg config.Config, xcfg flowstate.ExecutorConfig) (*flowstate.Executor, func(), error) {
	noop := func() {}

	switch cfg.Store {
	case config.StoreMemory:
		x, err := flowstate.NewInMemoryExecutor(xcfg)
		return x, noop, err

	case config.StoreSQLite:
		db, err := flowstate.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		x, err := flowstate.NewSQLiteExecutor(db, xcfg)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return x, func() { _ = db.Close() }, nil

	case config.StorePostgres:
		db, err := flowstate.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		x, err := flowstate.NewPostgresExecutor(db, xcfg)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return x, func() { _ = db.Close() }, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		x, err := flowstate.NewRedisExecutor(client, cfg.RedisPrefix, xcfg)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return x, func() { _ = client.Close() }, nil

	case config.StoreMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }
		x, err := flowstate.NewMongoExecutor(ctx, client, cfg.MongoDatabase, xcfg)
		if err != nil {
			disconnect()
			return nil, nil, err
		}
		return x, disconnect, nil

	case config.StoreBlob:
		x, closeFn, err := flowstate.NewBlobExecutor(ctx, cfg.BlobURL, xcfg)
		if err != nil {
			return nil, nil, err
		}
		return x, func() { _ = closeFn() }, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrStoreInvalid, cfg.Store)
	}
}
