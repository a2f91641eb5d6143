package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowstate/pkg/api"
)

// runSnapshotStoreContract exercises the behavior every SnapshotStore
// must share. conversation ids are derived from t.Name() so that shared
// backends do not collide between tests.
func runSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	t.Helper()
	ctx := context.Background()
	conv := api.ConversationID("c-" + t.Name())
	other := api.ConversationID("o-" + t.Name())

	t.Run("load missing", func(t *testing.T) {
		_, err := store.LoadSnapshot(ctx, conv, 1)
		require.ErrorIs(t, err, api.ErrSnapshotNotFound)
		require.ErrorIs(t, err, api.ErrNotFound)
	})

	t.Run("save and load", func(t *testing.T) {
		require.NoError(t, store.SaveSnapshot(ctx, conv, 1, []byte("one")))
		require.NoError(t, store.SaveSnapshot(ctx, conv, 2, []byte("two")))
		require.NoError(t, store.SaveSnapshot(ctx, other, 1, []byte("other")))

		got, err := store.LoadSnapshot(ctx, conv, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("one"), got)

		got, err = store.LoadSnapshot(ctx, conv, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte("two"), got)
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, store.SaveSnapshot(ctx, conv, 2, []byte("two-updated")))
		got, err := store.LoadSnapshot(ctx, conv, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte("two-updated"), got)
	})

	t.Run("delete snapshot", func(t *testing.T) {
		require.NoError(t, store.DeleteSnapshot(ctx, conv, 1))
		require.NoError(t, store.DeleteSnapshot(ctx, conv, 1))

		_, err := store.LoadSnapshot(ctx, conv, 1)
		require.ErrorIs(t, err, api.ErrSnapshotNotFound)
		_, err = store.LoadSnapshot(ctx, conv, 2)
		require.NoError(t, err)
	})

	t.Run("delete conversation", func(t *testing.T) {
		require.NoError(t, store.SaveSnapshot(ctx, conv, 3, []byte("three")))
		require.NoError(t, store.DeleteConversation(ctx, conv))
		require.NoError(t, store.DeleteConversation(ctx, conv))

		for _, id := range []int{1, 2, 3} {
			_, err := store.LoadSnapshot(ctx, conv, id)
			require.ErrorIs(t, err, api.ErrSnapshotNotFound)
		}

		got, err := store.LoadSnapshot(ctx, other, 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("other"), got)
	})
}
