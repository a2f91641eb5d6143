package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/flowstate/internal/conversation"
	"github.com/petrijr/flowstate/internal/engine"
	"github.com/petrijr/flowstate/internal/persistence"
	"github.com/petrijr/flowstate/pkg/api"
	"github.com/petrijr/flowstate/pkg/flowtest"
)

type fixture struct {
	repo  *Repository
	store *persistence.InMemoryStore
	conv  *conversation.Manager
	ext   *flowtest.MockExternalContext
}

// wizardFlow is step1 --next--> step2 --finish--> done, with back from
// step2 to step1.
func wizardFlow() *api.Flow {
	return &api.Flow{
		ID:         "wizard",
		Attributes: map[string]any{"caption": "Wizard"},
		States: []*api.State{
			{ID: "step1", Kind: api.ViewState, Transitions: []*api.Transition{
				{On: api.OnEvent("next"), Target: api.To("step2")},
				{On: api.OnEvent("stay")},
			}},
			{ID: "step2", Kind: api.ViewState, Transitions: []*api.Transition{
				{On: api.OnEvent("back"), Target: api.To("step1")},
				{On: api.OnEvent("finish"), Target: api.To("done")},
			}},
			{ID: "done", Kind: api.EndState},
		},
	}
}

func newFixture(t *testing.T, cfg Config, convCfg conversation.Config) *fixture {
	t.Helper()
	reg := engine.NewRegistry()
	require.NoError(t, reg.Register(wizardFlow()))

	store := persistence.NewInMemoryStore()
	cfg.Store = store
	cfg.Factory = engine.NewFactory(engine.Config{Locator: reg})
	cfg.Conversations = conversation.NewManager(convCfg)

	repo, err := NewRepository(cfg)
	require.NoError(t, err)
	return &fixture{
		repo:  repo,
		store: store,
		conv:  cfg.Conversations,
		ext:   flowtest.NewMockExternalContext(),
	}
}

// launch starts a wizard execution and stores its first snapshot.
func (f *fixture) launch(t *testing.T) *engine.Execution {
	t.Helper()
	ctx := context.Background()
	exec, err := f.repo.factory.Create("wizard")
	require.NoError(t, err)
	require.NoError(t, exec.Start(ctx, nil, f.ext))
	require.NotNil(t, exec.Key())
	require.NoError(t, f.repo.PutFlowExecution(ctx, f.ext, exec))
	return exec
}

// signal restores key, signals eventID and stores the result if the
// execution is still active.
func (f *fixture) signal(t *testing.T, key api.ExecutionKey, eventID string) *engine.Execution {
	t.Helper()
	ctx := context.Background()
	ext := f.ext.InSession().WithEvent(eventID)
	exec, err := f.repo.GetFlowExecution(ctx, ext, key)
	require.NoError(t, err)
	require.NoError(t, exec.Resume(ctx, ext))
	if exec.IsActive() {
		require.NoError(t, f.repo.PutFlowExecution(ctx, ext, exec))
	}
	return exec
}

func TestNewRepository_RequiresCollaborators(t *testing.T) {
	_, err := NewRepository(Config{Factory: engine.NewFactory(engine.Config{})})
	require.ErrorIs(t, err, ErrNoConversations)
	_, err = NewRepository(Config{Conversations: conversation.NewManager(conversation.Config{})})
	require.ErrorIs(t, err, ErrNoFactory)

	f := newFixture(t, Config{}, conversation.Config{})
	assert.Equal(t, DefaultMaxContinuations, f.repo.MaxContinuations())
	assert.True(t, f.repo.AlwaysGenerateNewNextKey())
}

func TestRepository_OldestSnapshotEvicted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MaxContinuations: 2}, conversation.Config{})

	exec := f.launch(t)
	k1 := *exec.Key()

	k2, err := f.repo.GetNextKey(ctx, f.ext, exec, k1)
	require.NoError(t, err)
	exec.SetKey(&k2)
	require.NoError(t, f.repo.PutFlowExecution(ctx, f.ext, exec))

	k3, err := f.repo.GetNextKey(ctx, f.ext, exec, k2)
	require.NoError(t, err)
	exec.SetKey(&k3)
	require.NoError(t, f.repo.PutFlowExecution(ctx, f.ext, exec))

	assert.Equal(t, []int{1, 2, 3}, []int{k1.SnapshotID, k2.SnapshotID, k3.SnapshotID})

	_, err = f.repo.GetFlowExecution(ctx, f.ext, k1)
	require.ErrorIs(t, err, api.ErrRestorationFailure)
	for _, k := range []api.ExecutionKey{k2, k3} {
		restored, err := f.repo.GetFlowExecution(ctx, f.ext, k)
		require.NoError(t, err)
		assert.Equal(t, "step1", restored.ActiveSession().State().ID)
		assert.Equal(t, k, *restored.Key())
	}
	assert.Equal(t, 2, f.store.Len(k1.ConversationID))
}

func TestRepository_BackButtonRestoresOlderSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, conversation.Config{})

	first := f.launch(t)
	k1 := *first.Key()

	second := f.signal(t, k1, "next")
	k2 := *second.Key()
	assert.Equal(t, k1.ConversationID, k2.ConversationID)
	assert.Equal(t, k1.SnapshotID+1, k2.SnapshotID)
	assert.Equal(t, "step2", second.ActiveSession().State().ID)

	back, err := f.repo.GetFlowExecution(ctx, f.ext, k1)
	require.NoError(t, err)
	assert.Equal(t, "step1", back.ActiveSession().State().ID)
}

func TestRepository_CompletionRemovesAllSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, conversation.Config{})

	k1 := *f.launch(t).Key()
	k2 := *f.signal(t, k1, "next").Key()
	ended := f.signal(t, k2, "finish")
	require.True(t, ended.HasEnded())

	assert.Equal(t, 0, f.store.Len(k1.ConversationID))
	for _, k := range []api.ExecutionKey{k1, k2} {
		_, err := f.repo.GetFlowExecution(ctx, f.ext, k)
		require.ErrorIs(t, err, api.ErrRestorationFailure)
	}
}

func TestRepository_KeyParsing(t *testing.T) {
	f := newFixture(t, Config{}, conversation.Config{})
	key := *f.launch(t).Key()

	parsed, err := f.repo.ParseKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{"malformed", "_cnot-a-uuid_k1", key.String() + "x"} {
		_, err := f.repo.ParseKey(bad)
		require.ErrorIs(t, err, api.ErrBadlyFormattedKey, bad)
	}
}

func TestRepository_PutRequiresKey(t *testing.T) {
	f := newFixture(t, Config{}, conversation.Config{})
	exec, err := f.repo.factory.Create("wizard")
	require.NoError(t, err)

	err = f.repo.PutFlowExecution(context.Background(), f.ext, exec)
	require.ErrorIs(t, err, api.ErrKeyNotSet)
}

func TestRepository_UnknownConversationIsNotFound(t *testing.T) {
	f := newFixture(t, Config{}, conversation.Config{})
	key := *f.launch(t).Key()

	other := flowtest.NewMockExternalContext()
	_, err := f.repo.GetFlowExecution(context.Background(), other, key)
	require.ErrorIs(t, err, api.ErrNotFound)
	require.NotErrorIs(t, err, api.ErrRestorationFailure)

	_, err = f.repo.Lock(other, key)
	require.ErrorIs(t, err, api.ErrConversationNotFound)

	unlock, err := f.repo.Lock(f.ext, key)
	require.NoError(t, err)
	unlock()
}

func TestRepository_UpdateInPlaceWhenNotGeneratingKeys(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, conversation.Config{})
	f.repo.SetAlwaysGenerateNewNextKey(false)

	k1 := *f.launch(t).Key()
	next := f.signal(t, k1, "next")
	assert.Equal(t, k1, *next.Key())

	restored, err := f.repo.GetFlowExecution(ctx, f.ext, k1)
	require.NoError(t, err)
	assert.Equal(t, "step2", restored.ActiveSession().State().ID)
	assert.Equal(t, 1, f.store.Len(k1.ConversationID))
}

func TestRepository_UpdateAndRemoveSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, conversation.Config{})
	exec := f.launch(t)
	key := *exec.Key()

	exec.ActiveSession().Scope().Put("draft", "v2")
	require.NoError(t, f.repo.UpdateFlowExecutionSnapshot(ctx, f.ext, exec))
	restored, err := f.repo.GetFlowExecution(ctx, f.ext, key)
	require.NoError(t, err)
	assert.Equal(t, "v2", restored.ActiveSession().Scope().GetString("draft"))

	require.NoError(t, f.repo.RemoveFlowExecutionSnapshot(ctx, f.ext, exec))
	_, err = f.repo.GetFlowExecution(ctx, f.ext, key)
	require.ErrorIs(t, err, api.ErrRestorationFailure)

	// Updating a snapshot that is no longer held does not resurrect it.
	require.NoError(t, f.repo.UpdateFlowExecutionSnapshot(ctx, f.ext, exec))
	assert.Equal(t, 0, f.store.Len(key.ConversationID))
}

func TestRepository_RemoveFlowExecutionEndsConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, conversation.Config{})
	exec := f.launch(t)
	key := *exec.Key()

	require.NoError(t, f.repo.RemoveFlowExecution(ctx, f.ext, exec))
	_, err := f.repo.GetConversation(f.ext, key)
	require.ErrorIs(t, err, api.ErrConversationNotFound)
	assert.Equal(t, 0, f.store.Len(key.ConversationID))
}

func TestRepository_EvictedConversationDropsSnapshots(t *testing.T) {
	f := newFixture(t, Config{}, conversation.Config{MaxConversations: 1})

	first := *f.launch(t).Key()
	require.Equal(t, 1, f.store.Len(first.ConversationID))

	second := *f.launch(t).Key()
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, 0, f.store.Len(first.ConversationID))
	assert.Equal(t, 1, f.store.Len(second.ConversationID))
}

func TestRepository_ConversationScopeSharedAcrossSnapshots(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, conversation.Config{})
	exec := f.launch(t)
	k1 := *exec.Key()

	second := f.signal(t, k1, "next")
	second.ConversationScope().Put("cart", 3)

	back, err := f.repo.GetFlowExecution(ctx, f.ext, k1)
	require.NoError(t, err)
	n, _ := back.ConversationScope().GetInt("cart")
	assert.Equal(t, 3, n)
}

func TestRepository_CorruptSnapshotFailsRestoration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, conversation.Config{})
	key := *f.launch(t).Key()

	require.NoError(t, f.store.SaveSnapshot(ctx, key.ConversationID, key.SnapshotID, []byte("garbage")))
	_, err := f.repo.GetFlowExecution(ctx, f.ext, key)
	require.ErrorIs(t, err, api.ErrRestorationFailure)
}

func TestRepository_RefreshKeepsKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{}, conversation.Config{})
	k1 := *f.launch(t).Key()

	ext := f.ext.InSession()
	exec, err := f.repo.GetFlowExecution(ctx, ext, k1)
	require.NoError(t, err)
	require.NoError(t, exec.Resume(ctx, ext))
	assert.Equal(t, k1, *exec.Key())

	// A transition back into the same view pauses again under a new key.
	stay := f.signal(t, k1, "stay")
	assert.Equal(t, k1.SnapshotID+1, stay.Key().SnapshotID)
}
