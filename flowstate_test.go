package flowstate

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowstate/pkg/flowtest"
)

func registerBooking(t *testing.T, x *Executor) {
	t.Helper()
	require.NoError(t, New("booking").
		View("enterDetails").On("next", "review").
		View("review").On("confirm", "booked").
		End("booked").
		Register(x))
}

// drive walks the booking flow to completion.
func drive(t *testing.T, x *Executor) {
	t.Helper()
	ctx := context.Background()
	ext := flowtest.NewMockExternalContext()

	res, err := Launch(ctx, x, "booking", map[string]any{"guest": "ada"}, ext)
	require.NoError(t, err)
	require.True(t, res.Paused)

	res, err = Signal(ctx, x, res.Key, "next", ext.InSession())
	require.NoError(t, err)
	require.Equal(t, "review", res.StateID)

	key := res.Key
	res, err = Signal(ctx, x, key, "confirm", ext.InSession())
	require.NoError(t, err)
	assert.Equal(t, "booked", res.Outcome)

	_, err = Resume(ctx, x, key, ext.InSession())
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestExecutors_Backends(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		x, err := NewInMemoryExecutor(ExecutorConfig{})
		require.NoError(t, err)
		registerBooking(t, x)
		drive(t, x)
	})

	t.Run("sqlite", func(t *testing.T) {
		db, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		x, err := NewSQLiteExecutor(db, ExecutorConfig{CompressSnapshots: true})
		require.NoError(t, err)
		registerBooking(t, x)
		drive(t, x)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		x, err := NewRedisExecutor(client, "test:", ExecutorConfig{})
		require.NoError(t, err)
		registerBooking(t, x)
		drive(t, x)
		assert.Empty(t, mr.Keys())
	})

	t.Run("blob", func(t *testing.T) {
		x, closeFn, err := NewBlobExecutor(context.Background(), "mem://", ExecutorConfig{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = closeFn() })
		registerBooking(t, x)
		drive(t, x)
	})
}

func TestExpireConversations(t *testing.T) {
	ctx := context.Background()
	x, err := NewInMemoryExecutor(ExecutorConfig{})
	require.NoError(t, err)
	registerBooking(t, x)

	sessions := NewSessionStore(SessionConfig{CleanupInterval: -1})
	ExpireConversations(sessions, x)

	ext := sessions.NewContext("bob", nil)
	res, err := Launch(ctx, x, "booking", nil, ext)
	require.NoError(t, err)
	require.Equal(t, 1, x.Conversations(ext))

	sessions.Invalidate("bob")
	assert.Equal(t, 0, x.Conversations(ext))

	_, err = Resume(ctx, x, res.Key, sessions.NewContext("bob", nil))
	require.ErrorIs(t, err, ErrConversationNotFound)
}
