package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/petrijr/flowstate/internal/conversation"
	"github.com/petrijr/flowstate/internal/engine"
	"github.com/petrijr/flowstate/internal/persistence"
	"github.com/petrijr/flowstate/pkg/api"
)

const (
	// DefaultMaxContinuations bounds the snapshots kept per conversation
	// when Config.MaxContinuations is zero.
	DefaultMaxContinuations = 30

	// GroupAttribute is the conversation attribute holding the
	// conversation's SnapshotGroup.
	GroupAttribute = "continuationGroup"

	// ScopeAttribute is the conversation attribute holding the
	// conversation scope shared by all of the conversation's snapshots.
	ScopeAttribute = "scope"
)

var (
	// ErrNoConversations is returned by NewRepository without a
	// conversation manager.
	ErrNoConversations = errors.New("repository: conversation manager is required")

	// ErrNoFactory is returned by NewRepository without an execution
	// factory.
	ErrNoFactory = errors.New("repository: execution factory is required")
)

// Config describes a Repository.
type Config struct {
	Conversations *conversation.Manager
	Factory       *engine.Factory

	// Store holds snapshot bytes. Defaults to an in-memory store.
	Store persistence.SnapshotStore

	// MaxContinuations bounds the snapshots per conversation. Zero means
	// DefaultMaxContinuations, -1 means unlimited.
	MaxContinuations int

	Logger *slog.Logger
}

// Repository stores flow executions as snapshots grouped by conversation.
// It is the key factory of the executions its factory creates: executions
// ask it for keys when they pause and tell it to drop their snapshots
// when they end.
type Repository struct {
	conversations    *conversation.Manager
	factory          *engine.Factory
	store            persistence.SnapshotStore
	maxContinuations int
	logger           *slog.Logger

	mu                       sync.Mutex
	alwaysGenerateNewNextKey bool
}

var _ engine.KeyFactory = (*Repository)(nil)

// NewRepository creates a repository and installs it as cfg.Factory's key
// factory.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Conversations == nil {
		return nil, ErrNoConversations
	}
	if cfg.Factory == nil {
		return nil, ErrNoFactory
	}
	r := &Repository{
		conversations:            cfg.Conversations,
		factory:                  cfg.Factory,
		store:                    cfg.Store,
		maxContinuations:         cfg.MaxContinuations,
		logger:                   cfg.Logger,
		alwaysGenerateNewNextKey: true,
	}
	if r.store == nil {
		r.store = persistence.NewInMemoryStore()
	}
	if r.maxContinuations == 0 {
		r.maxContinuations = DefaultMaxContinuations
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	cfg.Factory.SetKeyFactory(r)
	cfg.Conversations.OnEnd(r.conversationEnded)
	return r, nil
}

func (r *Repository) MaxContinuations() int { return r.maxContinuations }

// AlwaysGenerateNewNextKey reports whether every pause mints a new
// snapshot id. When false an execution keeps its key and each put
// overwrites the previous snapshot.
func (r *Repository) AlwaysGenerateNewNextKey() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.alwaysGenerateNewNextKey
}

func (r *Repository) SetAlwaysGenerateNewNextKey(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alwaysGenerateNewNextKey = v
}

// ParseKey parses a key string and validates its conversation id.
func (r *Repository) ParseKey(s string) (api.ExecutionKey, error) {
	key, err := api.ParseKey(s)
	if err != nil {
		return api.ExecutionKey{}, err
	}
	id, err := r.conversations.ParseID(string(key.ConversationID))
	if err != nil {
		return api.ExecutionKey{}, err
	}
	key.ConversationID = id
	return key, nil
}

// GetConversation returns the conversation key belongs to.
func (r *Repository) GetConversation(ext api.ExternalContext, key api.ExecutionKey) (*conversation.Conversation, error) {
	return r.conversations.Get(ext, key.ConversationID)
}

// Lock acquires the lock of key's conversation and returns the function
// releasing it. A missing conversation fails before any lock is taken.
func (r *Repository) Lock(ext api.ExternalContext, key api.ExecutionKey) (unlock func(), err error) {
	c, err := r.GetConversation(ext, key)
	if err != nil {
		return nil, err
	}
	c.Lock()
	return c.Unlock, nil
}

// GetFlowExecution restores the execution stored under key. A snapshot
// that is missing, evicted or cannot be restored fails with
// api.ErrRestorationFailure.
func (r *Repository) GetFlowExecution(ctx context.Context, ext api.ExternalContext, key api.ExecutionKey) (*engine.Execution, error) {
	c, err := r.GetConversation(ext, key)
	if err != nil {
		return nil, err
	}
	if !r.group(c).Contains(key.SnapshotID) {
		return nil, fmt.Errorf("%w: %w: %s", api.ErrRestorationFailure, api.ErrSnapshotNotFound, key)
	}

	data, err := r.store.LoadSnapshot(ctx, key.ConversationID, key.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrRestorationFailure, err)
	}
	exec, err := r.factory.Restore(data, &key)
	if err != nil {
		return nil, err
	}
	if scope, ok := c.Attribute(ScopeAttribute).(*api.AttributeMap); ok {
		exec.ReplaceConversationScope(scope)
	}

	r.logger.DebugContext(ctx, "flow_execution_restored",
		slog.String("key", key.String()),
		slog.String("flow_id", exec.Definition().ID),
	)
	return exec, nil
}

// PutFlowExecution stores a snapshot of exec under its key. The key must
// have been assigned, normally by the execution pausing.
func (r *Repository) PutFlowExecution(ctx context.Context, ext api.ExternalContext, exec *engine.Execution) error {
	key, c, err := r.keyedConversation(ext, exec)
	if err != nil {
		return err
	}
	data, err := r.factory.Snapshot(exec)
	if err != nil {
		return err
	}
	if err := r.store.SaveSnapshot(ctx, key.ConversationID, key.SnapshotID, data); err != nil {
		return err
	}

	for _, id := range r.group(c).Add(key.SnapshotID) {
		if err := r.store.DeleteSnapshot(ctx, key.ConversationID, id); err != nil {
			return err
		}
		r.logger.DebugContext(ctx, "snapshot_evicted",
			slog.String("conversation_id", string(key.ConversationID)),
			slog.Int("snapshot_id", id),
			slog.Int("max_continuations", r.maxContinuations),
		)
	}
	c.PutAttribute(ScopeAttribute, exec.ConversationScope())

	r.logger.DebugContext(ctx, "snapshot_put",
		slog.String("key", key.String()),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// GenerateKey begins a new conversation for exec and returns the key of
// its first snapshot.
func (r *Repository) GenerateKey(ctx context.Context, ext api.ExternalContext, exec *engine.Execution) (api.ExecutionKey, error) {
	flow := exec.Definition()
	params := conversation.Parameters{Name: flow.ID}
	if caption, ok := flow.Attributes["caption"].(string); ok {
		params.Caption = caption
	}
	if description, ok := flow.Attributes["description"].(string); ok {
		params.Description = description
	}

	c, err := r.conversations.Begin(ext, params)
	if err != nil {
		return api.ExecutionKey{}, err
	}
	return api.ExecutionKey{ConversationID: c.ID(), SnapshotID: r.group(c).NextID()}, nil
}

// GetNextKey returns a new key in previous's conversation.
func (r *Repository) GetNextKey(ctx context.Context, ext api.ExternalContext, exec *engine.Execution, previous api.ExecutionKey) (api.ExecutionKey, error) {
	c, err := r.GetConversation(ext, previous)
	if err != nil {
		return api.ExecutionKey{}, err
	}
	return api.ExecutionKey{ConversationID: c.ID(), SnapshotID: r.group(c).NextID()}, nil
}

// GetKey returns the key exec's next snapshot is stored under.
func (r *Repository) GetKey(ctx context.Context, ext api.ExternalContext, exec *engine.Execution) (api.ExecutionKey, error) {
	key := exec.Key()
	switch {
	case key == nil:
		return r.GenerateKey(ctx, ext, exec)
	case r.AlwaysGenerateNewNextKey():
		return r.GetNextKey(ctx, ext, exec, *key)
	default:
		return *key, nil
	}
}

// RemoveFlowExecution discards every snapshot of exec's conversation and
// ends the conversation.
func (r *Repository) RemoveFlowExecution(ctx context.Context, ext api.ExternalContext, exec *engine.Execution) error {
	key, c, err := r.keyedConversation(ext, exec)
	if err != nil {
		return err
	}
	r.group(c).Clear()
	if err := r.store.DeleteConversation(ctx, key.ConversationID); err != nil {
		return err
	}
	c.End()
	return nil
}

// UpdateFlowExecutionSnapshot overwrites the snapshot under exec's key. It
// does nothing if that snapshot is no longer held.
func (r *Repository) UpdateFlowExecutionSnapshot(ctx context.Context, ext api.ExternalContext, exec *engine.Execution) error {
	key, c, err := r.keyedConversation(ext, exec)
	if err != nil {
		return err
	}
	if !r.group(c).Contains(key.SnapshotID) {
		return nil
	}
	data, err := r.factory.Snapshot(exec)
	if err != nil {
		return err
	}
	return r.store.SaveSnapshot(ctx, key.ConversationID, key.SnapshotID, data)
}

func (r *Repository) RemoveFlowExecutionSnapshot(ctx context.Context, ext api.ExternalContext, exec *engine.Execution) error {
	key, c, err := r.keyedConversation(ext, exec)
	if err != nil {
		return err
	}
	r.group(c).Remove(key.SnapshotID)
	return r.store.DeleteSnapshot(ctx, key.ConversationID, key.SnapshotID)
}

// RemoveAllFlowExecutionSnapshots discards every snapshot of exec's
// conversation so that none of its keys can be resumed again. The stored
// bytes are removed even if the conversation is already gone.
func (r *Repository) RemoveAllFlowExecutionSnapshots(ctx context.Context, ext api.ExternalContext, exec *engine.Execution) error {
	key := exec.Key()
	if key == nil {
		return nil
	}
	if c, err := r.GetConversation(ext, *key); err == nil {
		r.group(c).Clear()
	}
	if err := r.store.DeleteConversation(ctx, key.ConversationID); err != nil {
		return err
	}
	r.logger.DebugContext(ctx, "snapshots_removed",
		slog.String("conversation_id", string(key.ConversationID)),
	)
	return nil
}

func (r *Repository) keyedConversation(ext api.ExternalContext, exec *engine.Execution) (api.ExecutionKey, *conversation.Conversation, error) {
	key := exec.Key()
	if key == nil {
		return api.ExecutionKey{}, nil, fmt.Errorf("%w: %s", api.ErrKeyNotSet, exec)
	}
	c, err := r.GetConversation(ext, *key)
	if err != nil {
		return api.ExecutionKey{}, nil, err
	}
	return *key, c, nil
}

// group returns c's snapshot group, creating it on first use.
func (r *Repository) group(c *conversation.Conversation) *SnapshotGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := c.Attribute(GroupAttribute).(*SnapshotGroup); ok {
		return g
	}
	g := NewSnapshotGroup(r.maxContinuations)
	c.PutAttribute(GroupAttribute, g)
	return g
}

func (r *Repository) conversationEnded(c *conversation.Conversation) {
	if g, ok := c.Attribute(GroupAttribute).(*SnapshotGroup); ok {
		g.Clear()
	}
	if err := r.store.DeleteConversation(context.Background(), c.ID()); err != nil {
		r.logger.Warn("snapshot_cleanup_failed",
			slog.String("conversation_id", string(c.ID())),
			slog.Any("error", err),
		)
	}
}
