package executor

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/petrijr/flowstate/internal/conversation"
	"github.com/petrijr/flowstate/internal/persistence"
	"github.com/petrijr/flowstate/pkg/api"
	"github.com/petrijr/flowstate/pkg/flowtest"
)

var errRender = errors.New("render failed")

func on(event, target string) *api.Transition {
	return &api.Transition{On: api.OnEvent(event), Target: api.To(target)}
}

// bookingFlow is enterDetails --next--> review --confirm--> booked, with
// back from review to enterDetails.
func bookingFlow() *api.Flow {
	return &api.Flow{
		ID: "booking",
		States: []*api.State{
			{ID: "enterDetails", Kind: api.ViewState, Transitions: []*api.Transition{on("next", "review")}},
			{ID: "review", Kind: api.ViewState, Transitions: []*api.Transition{
				on("back", "enterDetails"),
				on("confirm", "booked"),
			}},
			{ID: "booked", Kind: api.EndState, Output: []api.Mapping{{Source: "bookingId"}}},
		},
		StartActions: []api.Action{func(_ context.Context, rc api.RequestContext) (string, error) {
			rc.FlowScope().Put("bookingId", "B-1")
			return "", nil
		}},
	}
}

// counterFlow increments a conversation-scope counter on every "inc".
func counterFlow() *api.Flow {
	return &api.Flow{
		ID: "counter",
		States: []*api.State{
			{ID: "count", Kind: api.ViewState, Transitions: []*api.Transition{
				{On: api.OnEvent("inc"), Actions: []api.Action{func(_ context.Context, rc api.RequestContext) (string, error) {
					n, _ := rc.ConversationScope().GetInt("count")
					rc.ConversationScope().Put("count", n+1)
					return "", nil
				}}},
			}},
		},
	}
}

func brokenFlow() *api.Flow {
	return &api.Flow{
		ID: "broken",
		States: []*api.State{
			{ID: "view", Kind: api.ViewState, RenderActions: []api.Action{
				func(context.Context, api.RequestContext) (string, error) { return "", errRender },
			}},
		},
	}
}

func newTestExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	if cfg.ConversationIDs == nil {
		cfg.ConversationIDs = &conversation.SequenceGenerator{}
	}
	x, err := NewInMemoryExecutor(cfg)
	require.NoError(t, err)
	for _, f := range []*api.Flow{bookingFlow(), counterFlow(), brokenFlow()} {
		require.NoError(t, x.Register(f))
	}
	return x
}

func TestExecutor_LaunchResumeToCompletion(t *testing.T) {
	ctx := context.Background()
	x := newTestExecutor(t, Config{})
	ext := flowtest.NewMockExternalContext()

	res, err := x.Launch(ctx, "booking", nil, ext)
	require.NoError(t, err)
	assert.True(t, res.Paused)
	assert.Equal(t, "enterDetails", res.StateID)
	assert.Equal(t, "_c1_k1", res.Key)

	res, err = x.Resume(ctx, res.Key, ext.InSession().WithEvent("next"))
	require.NoError(t, err)
	assert.Equal(t, "review", res.StateID)
	assert.Equal(t, "_c1_k2", res.Key)

	res, err = x.Resume(ctx, res.Key, ext.InSession().WithEvent("confirm"))
	require.NoError(t, err)
	assert.True(t, res.Ended)
	assert.False(t, res.Paused)
	assert.Empty(t, res.Key)
	assert.Equal(t, "booked", res.Outcome)
	assert.Equal(t, map[string]any{"bookingId": "B-1"}, res.Output)

	assert.Equal(t, 0, x.Conversations(ext))
	_, err = x.Resume(ctx, "_c1_k2", ext.InSession().WithEvent("confirm"))
	require.ErrorIs(t, err, api.ErrConversationNotFound)
}

func TestExecutor_BackButtonResumesOlderSnapshot(t *testing.T) {
	ctx := context.Background()
	x := newTestExecutor(t, Config{})
	ext := flowtest.NewMockExternalContext()

	first, err := x.Launch(ctx, "booking", nil, ext)
	require.NoError(t, err)
	second, err := x.Resume(ctx, first.Key, ext.InSession().WithEvent("next"))
	require.NoError(t, err)
	require.Equal(t, "review", second.StateID)

	// Going back to the first page and submitting again forks the history.
	again, err := x.Resume(ctx, first.Key, ext.InSession().WithEvent("next"))
	require.NoError(t, err)
	assert.Equal(t, "review", again.StateID)
	assert.Equal(t, "_c1_k3", again.Key)

	res, err := x.Resume(ctx, second.Key, ext.InSession())
	require.NoError(t, err)
	assert.Equal(t, "review", res.StateID, "refresh keeps the state")
}

func TestExecutor_SignalEvent(t *testing.T) {
	ctx := context.Background()
	x := newTestExecutor(t, Config{})
	ext := flowtest.NewMockExternalContext()

	res, err := x.Launch(ctx, "booking", nil, ext)
	require.NoError(t, err)
	res, err = x.Signal(ctx, res.Key, &api.Event{ID: "next"}, ext.InSession())
	require.NoError(t, err)
	assert.Equal(t, "review", res.StateID)
}

func TestExecutor_KeyErrors(t *testing.T) {
	ctx := context.Background()
	x := newTestExecutor(t, Config{})
	ext := flowtest.NewMockExternalContext()

	_, err := x.Resume(ctx, "garbage", ext)
	require.ErrorIs(t, err, api.ErrBadlyFormattedKey)

	_, err = x.Resume(ctx, "_c42_k1", ext)
	require.ErrorIs(t, err, api.ErrConversationNotFound)

	res, err := x.Launch(ctx, "booking", nil, ext)
	require.NoError(t, err)
	_, err = x.Resume(ctx, "_c1_k9", ext.InSession())
	require.ErrorIs(t, err, api.ErrRestorationFailure)
	require.ErrorIs(t, err, api.ErrSnapshotNotFound)

	// Another user's session cannot see the conversation.
	_, err = x.Resume(ctx, res.Key, flowtest.NewMockExternalContext())
	require.ErrorIs(t, err, api.ErrConversationNotFound)

	_, err = x.Launch(ctx, "nope", nil, ext)
	require.ErrorIs(t, err, api.ErrFlowNotFound)
}

func TestExecutor_EvictedSnapshotCannotBeResumed(t *testing.T) {
	ctx := context.Background()
	x := newTestExecutor(t, Config{MaxContinuations: 2})
	ext := flowtest.NewMockExternalContext()

	first, err := x.Launch(ctx, "booking", nil, ext)
	require.NoError(t, err)
	second, err := x.Resume(ctx, first.Key, ext.InSession().WithEvent("next"))
	require.NoError(t, err)
	_, err = x.Resume(ctx, second.Key, ext.InSession().WithEvent("back"))
	require.NoError(t, err)

	_, err = x.Resume(ctx, first.Key, ext.InSession().WithEvent("next"))
	require.ErrorIs(t, err, api.ErrRestorationFailure)
}

func TestExecutor_UpdateSnapshotsInPlace(t *testing.T) {
	ctx := context.Background()
	x := newTestExecutor(t, Config{UpdateSnapshotsInPlace: true})
	ext := flowtest.NewMockExternalContext()

	first, err := x.Launch(ctx, "booking", nil, ext)
	require.NoError(t, err)
	second, err := x.Resume(ctx, first.Key, ext.InSession().WithEvent("next"))
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)

	res, err := x.Resume(ctx, first.Key, ext.InSession())
	require.NoError(t, err)
	assert.Equal(t, "review", res.StateID)
}

func TestExecutor_LaunchFailureEndsConversation(t *testing.T) {
	ctx := context.Background()
	x := newTestExecutor(t, Config{})
	ext := flowtest.NewMockExternalContext()

	_, err := x.Launch(ctx, "broken", nil, ext)
	require.ErrorIs(t, err, errRender)
	assert.Equal(t, 0, x.Conversations(ext))
}

func TestExecutor_ConcurrentRequestsAreSerialized(t *testing.T) {
	ctx := context.Background()
	x := newTestExecutor(t, Config{MaxContinuations: -1})
	ext := flowtest.NewMockExternalContext()

	start, err := x.Launch(ctx, "counter", nil, ext)
	require.NoError(t, err)

	const n = 40
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := x.Resume(ctx, start.Key, ext.InSession().WithEvent("inc"))
			return err
		})
	}
	require.NoError(t, g.Wait())

	key, err := x.Repository().ParseKey(start.Key)
	require.NoError(t, err)
	unlock, err := x.Repository().Lock(ext, key)
	require.NoError(t, err)
	defer unlock()
	exec, err := x.Repository().GetFlowExecution(ctx, ext, key)
	require.NoError(t, err)
	count, _ := exec.ConversationScope().GetInt("count")
	assert.Equal(t, n, count)
}

func TestExecutor_RecordsHistory(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	x, err := NewSQLiteExecutor(db, Config{ConversationIDs: &conversation.SequenceGenerator{}})
	require.NoError(t, err)
	require.NoError(t, x.Register(bookingFlow()))
	ext := flowtest.NewMockExternalContext()

	res, err := x.Launch(ctx, "booking", nil, ext)
	require.NoError(t, err)
	res, err = x.Resume(ctx, res.Key, ext.InSession().WithEvent("next"))
	require.NoError(t, err)
	_, err = x.Resume(ctx, res.Key, ext.InSession().WithEvent("confirm"))
	require.NoError(t, err)

	events, err := x.History(ctx, "1")
	require.NoError(t, err)
	var types []api.EventType
	for _, ev := range events {
		assert.Equal(t, "1", ev.ConversationID)
		types = append(types, ev.Type)
	}
	assert.Equal(t, api.EventExecutionStarted, types[0])
	assert.Contains(t, types, api.EventExecutionPaused)
	assert.Contains(t, types, api.EventExecutionResumed)
	assert.Contains(t, types, api.EventSignaled)
	assert.Equal(t, api.EventExecutionEnded, types[len(types)-1])

	last := events[len(events)-1]
	assert.Equal(t, "booked", last.Detail)
	assert.Equal(t, 2, last.SnapshotID)
}

func TestExecutor_BlobBackend(t *testing.T) {
	ctx := context.Background()
	x, closeFn, err := NewBlobExecutor(ctx, "file://"+t.TempDir(), Config{CompressSnapshots: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeFn() })
	require.NoError(t, x.Register(bookingFlow()))
	ext := flowtest.NewMockExternalContext()

	res, err := x.Launch(ctx, "booking", nil, ext)
	require.NoError(t, err)
	res, err = x.Resume(ctx, res.Key, ext.InSession().WithEvent("next"))
	require.NoError(t, err)
	assert.Equal(t, "review", res.StateID)
}

func TestExecutor_EndSessionDiscardsSnapshots(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewInMemoryStore()
	x, err := NewExecutor(Config{
		Persistence:     persistence.Persistence{Snapshots: store},
		ConversationIDs: &conversation.SequenceGenerator{},
	})
	require.NoError(t, err)
	require.NoError(t, x.Register(bookingFlow()))
	ext := flowtest.NewMockExternalContext()

	res, err := x.Launch(ctx, "booking", nil, ext)
	require.NoError(t, err)
	_, err = x.Resume(ctx, res.Key, ext.InSession().WithEvent("next"))
	require.NoError(t, err)
	require.Equal(t, 2, store.Len("1"))

	assert.Equal(t, 1, x.EndSession(ext.SessionMap()))
	assert.Equal(t, 0, store.Len("1"))
	_, err = x.Resume(ctx, res.Key, ext.InSession())
	require.ErrorIs(t, err, api.ErrConversationNotFound)

	events, err := x.History(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, events)
}
