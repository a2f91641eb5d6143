package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/petrijr/flowstate/pkg/api"
)

// KeyFactory assigns keys to pausing executions and manages the snapshots
// addressed by them. The continuation repository implements it.
type KeyFactory interface {
	// GetKey returns the key under which exec's next snapshot is stored.
	// For an execution without a key this begins a new conversation.
	GetKey(ctx context.Context, ext api.ExternalContext, exec *Execution) (api.ExecutionKey, error)

	// RemoveAllFlowExecutionSnapshots discards every snapshot of exec's
	// conversation.
	RemoveAllFlowExecutionSnapshots(ctx context.Context, ext api.ExternalContext, exec *Execution) error

	// RemoveFlowExecutionSnapshot discards the snapshot addressed by exec's
	// key.
	RemoveFlowExecutionSnapshot(ctx context.Context, ext api.ExternalContext, exec *Execution) error

	// UpdateFlowExecutionSnapshot overwrites the snapshot addressed by
	// exec's key with exec's current state.
	UpdateFlowExecutionSnapshot(ctx context.Context, ext api.ExternalContext, exec *Execution) error
}

// Execution is a flow execution: a stack of flow sessions plus the scopes
// shared between them. It is not safe for concurrent use; callers
// serialize requests through the conversation lock.
type Execution struct {
	flow              *api.Flow
	sessions          []*flowSession
	conversationScope *api.AttributeMap
	flashScope        *api.AttributeMap
	attributes        *api.AttributeMap

	key     *api.ExecutionKey
	started bool
	outcome string
	output  *api.AttributeMap

	locator        api.FlowLocator
	listener       api.Listener
	kinds          *api.KindTable
	keyFactory     KeyFactory
	maxTransitions int
	logger         *slog.Logger
}

var _ api.FlowExecution = (*Execution)(nil)

func (e *Execution) active() *flowSession {
	if len(e.sessions) == 0 {
		return nil
	}
	return e.sessions[len(e.sessions)-1]
}

func (e *Execution) Key() *api.ExecutionKey { return e.key }

// SetKey replaces the execution's key. It is used by repositories when
// they assign or restore keys.
func (e *Execution) SetKey(key *api.ExecutionKey) { e.key = key }

func (e *Execution) Definition() *api.Flow                { return e.flow }
func (e *Execution) HasStarted() bool                     { return e.started }
func (e *Execution) IsActive() bool                       { return len(e.sessions) > 0 }
func (e *Execution) ConversationScope() *api.AttributeMap { return e.conversationScope }
func (e *Execution) FlashScope() *api.AttributeMap        { return e.flashScope }
func (e *Execution) Attributes() *api.AttributeMap        { return e.attributes }
func (e *Execution) Outcome() string                      { return e.outcome }
func (e *Execution) Output() *api.AttributeMap            { return e.output }

// HasEnded reports whether the execution started and its root session has
// ended.
func (e *Execution) HasEnded() bool { return e.started && !e.IsActive() }

func (e *Execution) ActiveSession() api.FlowSession {
	if s := e.active(); s != nil {
		return s
	}
	return nil
}

// Sessions returns the session stack, root first.
func (e *Execution) Sessions() []api.FlowSession {
	out := make([]api.FlowSession, len(e.sessions))
	for i, s := range e.sessions {
		out[i] = s
	}
	return out
}

// ReplaceConversationScope swaps the conversation scope for scope. The
// repository uses it to share one conversation scope between every
// snapshot of a conversation.
func (e *Execution) ReplaceConversationScope(scope *api.AttributeMap) {
	if scope != nil {
		e.conversationScope = scope
	}
}

func (e *Execution) String() string {
	key := "<no key>"
	if e.key != nil {
		key = e.key.String()
	}
	return fmt.Sprintf("execution[%s %s sessions=%v]", e.flow.ID, key, e.sessions)
}

// Start creates the root session and runs until the execution pauses or
// ends.
func (e *Execution) Start(ctx context.Context, input *api.AttributeMap, ext api.ExternalContext) error {
	if e.started {
		return api.ErrAlreadyStarted
	}
	e.started = true

	rc := newRequestContext(e, ext)
	e.listener.RequestSubmitted(ctx, rc)
	defer e.listener.RequestProcessed(ctx, rc)

	err := e.process(ctx, rc, func() error {
		return e.startSession(ctx, rc, e.flow, input)
	})
	if err != nil {
		return err
	}
	e.afterRequest(ctx, rc)
	return nil
}

// Resume signals the event named by the request's _eventId parameter
// against the paused view state. Without an event the view is refreshed
// and flash scope is kept.
func (e *Execution) Resume(ctx context.Context, ext api.ExternalContext) error {
	if !e.IsActive() {
		return api.ErrNotActive
	}

	rc := newRequestContext(e, ext)
	e.listener.RequestSubmitted(ctx, rc)
	defer e.listener.RequestProcessed(ctx, rc)

	e.active().status = api.SessionActive
	e.listener.Resumed(ctx, rc)

	params := rc.RequestParameters()
	eventID := params.Get(api.EventIDParameter)

	err := e.process(ctx, rc, func() error {
		if eventID == "" {
			return e.refresh(ctx, rc)
		}
		e.flashScope.Clear()
		attrs := &api.AttributeMap{}
		for name, values := range params {
			if len(values) > 0 {
				attrs.Put(name, values[0])
			}
		}
		return e.handleEvent(ctx, rc, &api.Event{ID: eventID, Attributes: attrs})
	})
	if err != nil {
		return err
	}
	e.afterRequest(ctx, rc)
	return nil
}

// SignalEvent signals ev against the paused view state, as Resume does for
// a request carrying an _eventId parameter.
func (e *Execution) SignalEvent(ctx context.Context, ev *api.Event, ext api.ExternalContext) error {
	if !e.IsActive() {
		return api.ErrNotActive
	}

	rc := newRequestContext(e, ext)
	e.listener.RequestSubmitted(ctx, rc)
	defer e.listener.RequestProcessed(ctx, rc)

	e.active().status = api.SessionActive
	e.listener.Resumed(ctx, rc)

	err := e.process(ctx, rc, func() error {
		e.flashScope.Clear()
		return e.handleEvent(ctx, rc, ev)
	})
	if err != nil {
		return err
	}
	e.afterRequest(ctx, rc)
	return nil
}

// Execute runs t from the current state as one request, without an
// event. Handlers may route a failure exactly as for SignalEvent.
func (e *Execution) Execute(ctx context.Context, t *api.Transition, ext api.ExternalContext) error {
	if !e.IsActive() {
		return api.ErrNotActive
	}

	rc := newRequestContext(e, ext)
	e.listener.RequestSubmitted(ctx, rc)
	defer e.listener.RequestProcessed(ctx, rc)

	e.active().status = api.SessionActive
	e.listener.Resumed(ctx, rc)

	err := e.process(ctx, rc, func() error {
		return e.execute(ctx, rc, t)
	})
	if err != nil {
		return err
	}
	e.afterRequest(ctx, rc)
	return nil
}

func (e *Execution) afterRequest(ctx context.Context, rc *requestContext) {
	if s := e.active(); s != nil {
		s.status = api.SessionPaused
		e.listener.Paused(ctx, rc)
	}
}

// process runs fn and routes any failure through the exception handlers.
// A handled failure becomes a transition, which may fail again.
func (e *Execution) process(ctx context.Context, rc *requestContext, fn func() error) error {
	err := fn()
	for err != nil {
		fe := e.wrapError(rc, err)
		e.listener.ExceptionThrown(ctx, rc, fe)
		if errors.Is(err, api.ErrTransitionLimitExceeded) {
			return fe
		}
		handled, herr := e.handleException(ctx, rc, fe)
		if !handled {
			e.logger.DebugContext(ctx, "unhandled flow exception", slog.Any("error", fe))
			return fe
		}
		err = herr
	}
	return nil
}

func (e *Execution) wrapError(rc *requestContext, err error) *api.FlowExecutionError {
	if fe, ok := err.(*api.FlowExecutionError); ok {
		return fe
	}
	fe := &api.FlowExecutionError{FlowID: e.flow.ID, Err: err}
	if f := rc.ActiveFlow(); f != nil {
		fe.FlowID = f.ID
	}
	if s := rc.CurrentState(); s != nil {
		fe.StateID = s.ID
	}
	return fe
}

// startSession pushes a session for flow and enters its start state.
func (e *Execution) startSession(ctx context.Context, rc *requestContext, flow *api.Flow, input *api.AttributeMap) error {
	if input == nil {
		input = &api.AttributeMap{}
	}
	e.listener.SessionStarting(ctx, rc, flow, input)

	session := newFlowSession(flow, e.active())
	session.status = api.SessionStarting
	e.sessions = append(e.sessions, session)

	if len(flow.Input) == 0 {
		session.scope.PutAll(input)
	} else if err := api.ApplyMappings(flow.Input, input, rc.Scope); err != nil {
		return err
	}
	if err := runActions(ctx, rc, flow.StartActions); err != nil {
		return err
	}

	start, err := flow.StartState()
	if err != nil {
		return err
	}
	session.status = api.SessionActive
	if err := e.enterState(ctx, rc, start); err != nil {
		return err
	}
	e.listener.SessionStarted(ctx, rc, session)
	return nil
}

// endSession pops the active session. The parent, if any, resumes by
// handling an event named after the end state.
func (e *Execution) endSession(ctx context.Context, rc *requestContext, endStateID string, output *api.AttributeMap) error {
	session := e.active()
	e.listener.SessionEnding(ctx, rc, session, output)
	if err := runActions(ctx, rc, session.flow.EndActions); err != nil {
		return err
	}

	session.status = api.SessionEnded
	e.sessions = e.sessions[:len(e.sessions)-1]
	e.listener.SessionEnded(ctx, rc, session, output)

	parent := e.active()
	if parent == nil {
		e.outcome = endStateID
		e.output = output
		if e.key != nil && e.keyFactory != nil {
			return e.keyFactory.RemoveAllFlowExecutionSnapshots(ctx, rc.ext, e)
		}
		return nil
	}

	if err := api.ApplyMappings(parent.state.SubflowOutput, output, rc.Scope); err != nil {
		return err
	}
	return e.handleEvent(ctx, rc, &api.Event{ID: endStateID, Attributes: output})
}

func runActions(ctx context.Context, rc api.RequestContext, actions []api.Action) error {
	for _, a := range actions {
		if _, err := a(ctx, rc); err != nil {
			return err
		}
	}
	return nil
}
