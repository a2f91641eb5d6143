package executor

import (
	"context"
	"log/slog"

	"github.com/petrijr/flowstate/internal/conversation"
	"github.com/petrijr/flowstate/internal/engine"
	"github.com/petrijr/flowstate/internal/persistence"
	"github.com/petrijr/flowstate/internal/repository"
	"github.com/petrijr/flowstate/pkg/api"
)

// Config describes how to construct an Executor.
type Config struct {
	// Persistence.Snapshots defaults to an in-memory store. History is
	// recorded only when Persistence.Events is set.
	Persistence persistence.Persistence

	Listeners  []api.Listener
	Attributes map[string]any
	Kinds      *api.KindTable

	MaxTransitions    int
	MaxConversations  int
	MaxContinuations  int
	CompressSnapshots bool

	// UpdateSnapshotsInPlace keeps an execution's key across pauses, so
	// that each request overwrites the previous snapshot instead of adding
	// one.
	UpdateSnapshotsInPlace bool

	ConversationIDs conversation.IDGenerator
	Logger          *slog.Logger
}

// Result describes an execution after a request.
type Result struct {
	// Key addresses the snapshot to resume from. Empty once the execution
	// has ended.
	Key     string         `json:"key,omitempty"`
	Paused  bool           `json:"paused"`
	Ended   bool           `json:"ended"`
	FlowID  string         `json:"flow_id"`
	StateID string         `json:"state_id,omitempty"`
	Outcome string         `json:"outcome,omitempty"`
	Output  map[string]any `json:"output,omitempty"`
}

// Executor drives flow executions across requests. It launches new
// executions, resumes paused ones by key and stores a snapshot after every
// request, holding the conversation lock across each load-modify-store
// cycle.
type Executor struct {
	registry      *engine.Registry
	factory       *engine.Factory
	conversations *conversation.Manager
	repo          *repository.Repository
	events        persistence.EventStore
	logger        *slog.Logger
}

func NewExecutor(cfg Config) (*Executor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := cfg.Persistence.Events
	listeners := cfg.Listeners
	if events != nil {
		listeners = append(append([]api.Listener(nil), listeners...), NewHistoryListener(events, logger))
	} else {
		events = persistence.NoopEventStore{}
	}

	registry := engine.NewRegistry()
	factory := engine.NewFactory(engine.Config{
		Locator:           registry,
		Listeners:         listeners,
		Attributes:        cfg.Attributes,
		Kinds:             cfg.Kinds,
		MaxTransitions:    cfg.MaxTransitions,
		CompressSnapshots: cfg.CompressSnapshots,
		Logger:            logger,
	})
	conversations := conversation.NewManager(conversation.Config{
		MaxConversations: cfg.MaxConversations,
		IDs:              cfg.ConversationIDs,
		Logger:           logger,
	})
	repo, err := repository.NewRepository(repository.Config{
		Conversations:    conversations,
		Factory:          factory,
		Store:            cfg.Persistence.Snapshots,
		MaxContinuations: cfg.MaxContinuations,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	repo.SetAlwaysGenerateNewNextKey(!cfg.UpdateSnapshotsInPlace)

	return &Executor{
		registry:      registry,
		factory:       factory,
		conversations: conversations,
		repo:          repo,
		events:        events,
		logger:        logger,
	}, nil
}

// Register adds a flow definition. Sub-flows must be registered before
// the flows that use them.
func (x *Executor) Register(flow *api.Flow) error {
	return x.registry.Register(flow)
}

// Replace swaps a registered flow definition. Snapshots that reference
// states the new definition lacks can no longer be restored.
func (x *Executor) Replace(flow *api.Flow) error {
	return x.registry.Replace(flow)
}

// Flows returns the ids of the registered flows.
func (x *Executor) Flows() []string { return x.registry.IDs() }

func (x *Executor) Repository() *repository.Repository { return x.repo }

// Conversations returns the number of active conversations in ext's
// session.
func (x *Executor) Conversations(ext api.ExternalContext) int {
	return x.conversations.Count(ext)
}

// EndSession ends every conversation held in session and discards their
// snapshots.
func (x *Executor) EndSession(session *api.SharedAttributeMap) int {
	return x.conversations.EndAll(session)
}

// History returns the recorded events of a conversation.
func (x *Executor) History(ctx context.Context, conversationID string) ([]api.ExecutionEvent, error) {
	return x.events.ListEvents(ctx, conversationID)
}

// Launch starts a new execution of flowID. If it pauses, its first
// snapshot is stored and Result.Key addresses it.
func (x *Executor) Launch(ctx context.Context, flowID string, input *api.AttributeMap, ext api.ExternalContext) (*Result, error) {
	exec, err := x.factory.Create(flowID)
	if err != nil {
		return nil, err
	}

	if err := exec.Start(ctx, input, ext); err != nil {
		if exec.Key() != nil {
			// The failed request already began a conversation.
			if rerr := x.repo.RemoveFlowExecution(ctx, ext, exec); rerr != nil {
				x.logger.WarnContext(ctx, "conversation_cleanup_failed",
					slog.String("key", exec.Key().String()),
					slog.Any("error", rerr),
				)
			}
		}
		return nil, err
	}

	if exec.Key() == nil {
		return resultOf(exec), nil
	}
	unlock, err := x.repo.Lock(ext, *exec.Key())
	if err != nil {
		return nil, err
	}
	defer unlock()
	return x.store(ctx, ext, exec)
}

// Resume restores the snapshot addressed by key and resumes it with the
// request's _eventId parameter, or refreshes it without one.
//
// A malformed key fails with api.ErrBadlyFormattedKey, an unknown
// conversation with api.ErrConversationNotFound and an evicted or
// unusable snapshot with api.ErrRestorationFailure.
func (x *Executor) Resume(ctx context.Context, key string, ext api.ExternalContext) (*Result, error) {
	return x.withExecution(ctx, key, ext, func(exec *engine.Execution) error {
		return exec.Resume(ctx, ext)
	})
}

// Signal restores the snapshot addressed by key and signals ev.
func (x *Executor) Signal(ctx context.Context, key string, ev *api.Event, ext api.ExternalContext) (*Result, error) {
	return x.withExecution(ctx, key, ext, func(exec *engine.Execution) error {
		return exec.SignalEvent(ctx, ev, ext)
	})
}

func (x *Executor) withExecution(ctx context.Context, key string, ext api.ExternalContext, fn func(*engine.Execution) error) (*Result, error) {
	k, err := x.repo.ParseKey(key)
	if err != nil {
		return nil, err
	}
	unlock, err := x.repo.Lock(ext, k)
	if err != nil {
		return nil, err
	}
	defer unlock()

	exec, err := x.repo.GetFlowExecution(ctx, ext, k)
	if err != nil {
		return nil, err
	}
	if err := fn(exec); err != nil {
		return nil, err
	}
	return x.store(ctx, ext, exec)
}

// store writes the post-request state of exec. Callers hold the
// conversation lock.
func (x *Executor) store(ctx context.Context, ext api.ExternalContext, exec *engine.Execution) (*Result, error) {
	if exec.IsActive() {
		if err := x.repo.PutFlowExecution(ctx, ext, exec); err != nil {
			return nil, err
		}
		return resultOf(exec), nil
	}

	if exec.Key() != nil {
		if err := x.repo.RemoveFlowExecution(ctx, ext, exec); err != nil {
			return nil, err
		}
		x.logger.DebugContext(ctx, "conversation_ended",
			slog.String("conversation_id", string(exec.Key().ConversationID)),
			slog.String("outcome", exec.Outcome()),
		)
	}
	return resultOf(exec), nil
}

func resultOf(exec *engine.Execution) *Result {
	r := &Result{
		Paused:  exec.IsActive(),
		Ended:   exec.HasEnded(),
		FlowID:  exec.Definition().ID,
		Outcome: exec.Outcome(),
	}
	if s := exec.ActiveSession(); s != nil {
		r.FlowID = s.Definition().ID
		if s.State() != nil {
			r.StateID = s.State().ID
		}
	}
	if r.Paused && exec.Key() != nil {
		r.Key = exec.Key().String()
	}
	if out := exec.Output(); out != nil && out.Len() > 0 {
		r.Output = out.AsMap()
	}
	return r
}
