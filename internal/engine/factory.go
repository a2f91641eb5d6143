package engine

import (
	"fmt"
	"log/slog"

	"github.com/petrijr/flowstate/pkg/api"
)

// DefaultMaxTransitions bounds the transitions a single request may
// execute when Config.MaxTransitions is zero.
const DefaultMaxTransitions = 1000

// Config describes how a Factory builds executions.
type Config struct {
	// Locator resolves root flows, sub-flows and the flows of restored
	// snapshots. Required.
	Locator api.FlowLocator

	// Listeners are notified in order for every execution.
	Listeners []api.Listener

	// Attributes are copied into every execution's attribute map.
	Attributes map[string]any

	// Kinds declares the is-a relation used to match exception handlers.
	Kinds *api.KindTable

	// MaxTransitions bounds the transitions one request may execute.
	// Zero means DefaultMaxTransitions, -1 means unlimited.
	MaxTransitions int

	// CompressSnapshots gzips snapshot payloads.
	CompressSnapshots bool

	Logger *slog.Logger
}

// Factory creates new executions and restores executions from snapshots.
type Factory struct {
	cfg        Config
	listener   api.Listener
	keyFactory KeyFactory
	logger     *slog.Logger
}

func NewFactory(cfg Config) *Factory {
	if cfg.MaxTransitions == 0 {
		cfg.MaxTransitions = DefaultMaxTransitions
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{
		cfg:      cfg,
		listener: api.NewListeners(cfg.Listeners...),
		logger:   logger,
	}
}

// SetKeyFactory installs the key factory handed to every execution
// created or restored afterwards.
func (f *Factory) SetKeyFactory(kf KeyFactory) {
	f.keyFactory = kf
}

// Locator returns the flow locator executions resolve flows with.
func (f *Factory) Locator() api.FlowLocator {
	return f.cfg.Locator
}

// Create returns a new, not yet started execution of the flow with the
// given id.
func (f *Factory) Create(flowID string) (*Execution, error) {
	flow, err := f.cfg.Locator.FlowDefinition(flowID)
	if err != nil {
		return nil, err
	}
	return f.CreateFor(flow), nil
}

// CreateFor returns a new, not yet started execution of flow.
func (f *Factory) CreateFor(flow *api.Flow) *Execution {
	return &Execution{
		flow:              flow,
		conversationScope: &api.AttributeMap{},
		flashScope:        &api.AttributeMap{},
		attributes:        api.NewAttributeMap(f.cfg.Attributes),
		locator:           f.cfg.Locator,
		listener:          f.listener,
		kinds:             f.cfg.Kinds,
		keyFactory:        f.keyFactory,
		maxTransitions:    f.cfg.MaxTransitions,
		logger:            f.logger,
	}
}

// Snapshot serializes the durable state of e.
func (f *Factory) Snapshot(e *Execution) ([]byte, error) {
	return marshal(e, f.cfg.CompressSnapshots)
}

// Restore rebuilds an execution from a snapshot. Every flow and state the
// snapshot references is resolved again through the locator; if any of
// them no longer exists the restore fails with ErrRestorationFailure.
func (f *Factory) Restore(data []byte, key *api.ExecutionKey) (*Execution, error) {
	snap, err := unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrRestorationFailure, err)
	}

	root, err := f.cfg.Locator.FlowDefinition(snap.FlowID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrRestorationFailure, err)
	}

	e := f.CreateFor(root)
	e.started = true
	e.key = key
	e.conversationScope = api.NewAttributeMap(snap.ConversationScope)
	e.flashScope = api.NewAttributeMap(snap.FlashScope)

	var parent *flowSession
	for i, ss := range snap.Sessions {
		flow := root
		if i > 0 || ss.FlowID != root.ID {
			flow, err = f.cfg.Locator.FlowDefinition(ss.FlowID)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", api.ErrRestorationFailure, err)
			}
		}
		session := newFlowSession(flow, parent)
		session.status = ss.Status
		session.scope = api.NewAttributeMap(ss.Scope)
		if ss.StateID != "" {
			state, err := flow.State(ss.StateID)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", api.ErrRestorationFailure, err)
			}
			session.state = state
		}
		e.sessions = append(e.sessions, session)
		parent = session
	}
	return e, nil
}
