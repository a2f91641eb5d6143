package api

import (
	"context"
	"net/url"
)

// SessionStatus is the lifecycle status of a flow session.
type SessionStatus string

const (
	SessionCreated  SessionStatus = "CREATED"
	SessionStarting SessionStatus = "STARTING"
	SessionActive   SessionStatus = "ACTIVE"
	SessionPaused   SessionStatus = "PAUSED"
	SessionEnded    SessionStatus = "ENDED"
)

// Names under which a handled exception is exposed in flash scope.
const (
	StateExceptionAttribute     = "stateException"
	RootCauseExceptionAttribute = "rootCauseException"
)

// EventIDParameter is the request parameter carrying the event to signal
// when a paused execution is resumed.
const EventIDParameter = "_eventId"

// Execution attribute names understood by the engine.
const (
	// AlwaysRedirectOnPause requests a flow execution redirect every time
	// a view state pauses.
	AlwaysRedirectOnPause = "alwaysRedirectOnPause"
)

// FlowSession is one activation of a flow within an execution.
type FlowSession interface {
	Definition() *Flow
	State() *State
	Status() SessionStatus
	Scope() *AttributeMap
	Parent() FlowSession
	IsRoot() bool
}

// FlowExecutionContext is the read-only view of a flow execution.
type FlowExecutionContext interface {
	// Key is nil until the execution pauses for the first time.
	Key() *ExecutionKey
	Definition() *Flow
	HasStarted() bool
	IsActive() bool
	ActiveSession() FlowSession
	ConversationScope() *AttributeMap
	FlashScope() *AttributeMap
	// Attributes holds technical, execution-wide settings.
	Attributes() *AttributeMap
	// Outcome is the id of the end state that ended the root session, if any.
	Outcome() string
	// Output is the root session's output once the execution has ended.
	Output() *AttributeMap
}

// FlowExecution is a running, serializable flow instance.
type FlowExecution interface {
	FlowExecutionContext

	// Start creates the root session and runs until a pausing state or an
	// end state is reached.
	Start(ctx context.Context, input *AttributeMap, ext ExternalContext) error

	// Resume continues a paused execution by signaling the event named by
	// the EventIDParameter request parameter. Without that parameter the
	// paused view state is refreshed.
	Resume(ctx context.Context, ext ExternalContext) error
}

// RequestContext is the per-request facade handed to actions, criteria and
// listeners.
type RequestContext interface {
	ActiveFlow() *Flow
	CurrentState() *State
	CurrentEvent() *Event
	CurrentTransition() *Transition

	RequestScope() *AttributeMap
	FlashScope() *AttributeMap
	FlowScope() *AttributeMap
	ConversationScope() *AttributeMap
	Scope(t ScopeType) *AttributeMap
	// Model returns the union of all scopes, request taking precedence
	// over flash, flash over flow, and flow over conversation.
	Model() *AttributeMap

	RequestParameters() url.Values
	ExternalContext() ExternalContext
	FlowExecution() FlowExecutionContext
}

// ExternalContext is the engine's view of the calling environment, such as
// an HTTP request. Adapters implement it.
type ExternalContext interface {
	RequestParameters() url.Values
	RequestMap() *AttributeMap
	SessionMap() *SharedAttributeMap
	GlobalSessionMap() *SharedAttributeMap

	RequestFlowExecutionRedirect()
	RequestFlowDefinitionRedirect(flowID string, input *AttributeMap)
	RequestExternalRedirect(location string)
	RecordResponseComplete()
	IsResponseComplete() bool
}

// FlowLocator resolves flow definitions by id.
type FlowLocator interface {
	FlowDefinition(id string) (*Flow, error)
}
