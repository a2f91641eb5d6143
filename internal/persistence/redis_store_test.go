package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowstate/pkg/api"
)

const redisTestPrefix = "flowstate:test:"

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return server, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newTestRedis(t)
	runSnapshotStoreContract(t, NewRedisStore(client, redisTestPrefix, 0))
}

func TestRedisStore_KeysUsePrefix(t *testing.T) {
	server, client := newTestRedis(t)
	store := NewRedisStore(client, redisTestPrefix, 0)
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, "c1", 4, []byte("x")))
	assert.True(t, server.Exists(redisTestPrefix+"snap:c1:4"))
	members, err := server.SMembers(redisTestPrefix + "conv:c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, members)

	require.NoError(t, store.DeleteConversation(ctx, "c1"))
	assert.False(t, server.Exists(redisTestPrefix+"snap:c1:4"))
	assert.False(t, server.Exists(redisTestPrefix+"conv:c1"))
}

func TestRedisStore_TTLExpiresSnapshots(t *testing.T) {
	server, client := newTestRedis(t)
	store := NewRedisStore(client, "", time.Minute)
	ctx := context.Background()

	require.NoError(t, store.SaveSnapshot(ctx, "c1", 1, []byte("x")))
	_, err := store.LoadSnapshot(ctx, "c1", 1)
	require.NoError(t, err)

	server.FastForward(2 * time.Minute)

	_, err = store.LoadSnapshot(ctx, "c1", 1)
	require.ErrorIs(t, err, api.ErrSnapshotNotFound)
	assert.False(t, server.Exists("flowstate:conv:c1"))
}
