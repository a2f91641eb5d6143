// Package flowtest provides test doubles for code that drives or embeds
// flow executions.
package flowtest

import (
	"net/url"
	"sync"

	"github.com/petrijr/flowstate/pkg/api"
)

// MockExternalContext is an in-memory api.ExternalContext. It records the
// redirects requested by the engine.
type MockExternalContext struct {
	mu sync.Mutex

	params        url.Values
	requestMap    *api.AttributeMap
	sessionMap    *api.SharedAttributeMap
	globalSession *api.SharedAttributeMap

	executionRedirect  bool
	definitionRedirect string
	definitionInput    *api.AttributeMap
	externalRedirect   string
	responseComplete   bool
}

var _ api.ExternalContext = (*MockExternalContext)(nil)

// NewMockExternalContext returns a context with its own, empty session.
func NewMockExternalContext() *MockExternalContext {
	return &MockExternalContext{
		params:        url.Values{},
		requestMap:    &api.AttributeMap{},
		sessionMap:    api.NewSharedAttributeMap(),
		globalSession: api.NewSharedAttributeMap(),
	}
}

// InSession returns a fresh request context bound to the same session and
// global session maps as c, as a second request from the same user would
// be.
func (c *MockExternalContext) InSession() *MockExternalContext {
	return &MockExternalContext{
		params:        url.Values{},
		requestMap:    &api.AttributeMap{},
		sessionMap:    c.sessionMap,
		globalSession: c.globalSession,
	}
}

// WithSession binds the context to session. It returns c.
func (c *MockExternalContext) WithSession(session *api.SharedAttributeMap) *MockExternalContext {
	c.sessionMap = session
	return c
}

// WithEvent sets the _eventId request parameter. It returns c.
func (c *MockExternalContext) WithEvent(eventID string) *MockExternalContext {
	return c.WithParam(api.EventIDParameter, eventID)
}

// WithParam sets a request parameter. It returns c.
func (c *MockExternalContext) WithParam(name, value string) *MockExternalContext {
	c.params.Set(name, value)
	return c
}

func (c *MockExternalContext) RequestParameters() url.Values             { return c.params }
func (c *MockExternalContext) RequestMap() *api.AttributeMap             { return c.requestMap }
func (c *MockExternalContext) SessionMap() *api.SharedAttributeMap       { return c.sessionMap }
func (c *MockExternalContext) GlobalSessionMap() *api.SharedAttributeMap { return c.globalSession }

func (c *MockExternalContext) RequestFlowExecutionRedirect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executionRedirect = true
}

func (c *MockExternalContext) RequestFlowDefinitionRedirect(flowID string, input *api.AttributeMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.definitionRedirect = flowID
	c.definitionInput = input
}

func (c *MockExternalContext) RequestExternalRedirect(location string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.externalRedirect = location
}

func (c *MockExternalContext) RecordResponseComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseComplete = true
}

func (c *MockExternalContext) IsResponseComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responseComplete
}

// FlowExecutionRedirectRequested reports whether the engine asked for a
// redirect to the current flow execution.
func (c *MockExternalContext) FlowExecutionRedirectRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.executionRedirect
}

// FlowDefinitionRedirect returns the flow id and input of a requested
// flow definition redirect.
func (c *MockExternalContext) FlowDefinitionRedirect() (string, *api.AttributeMap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.definitionRedirect, c.definitionInput
}

// ExternalRedirect returns the location of a requested external redirect.
func (c *MockExternalContext) ExternalRedirect() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.externalRedirect
}
