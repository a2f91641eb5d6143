package session

import (
	"net/url"
	"sync"

	"github.com/petrijr/flowstate/pkg/api"
)

// RedirectKind says what kind of redirect a request asked for.
type RedirectKind int

const (
	NoRedirect RedirectKind = iota
	FlowExecutionRedirect
	FlowDefinitionRedirect
	ExternalRedirect
)

// Redirect is the redirect requested while processing a request.
type Redirect struct {
	Kind     RedirectKind
	FlowID   string
	Input    *api.AttributeMap
	Location string
}

// Context is the api.ExternalContext of one request.
type Context struct {
	params  url.Values
	request *api.AttributeMap
	session *api.SharedAttributeMap
	global  *api.SharedAttributeMap

	mu       sync.Mutex
	redirect Redirect
	complete bool
}

var _ api.ExternalContext = (*Context)(nil)

func NewContext(params url.Values, session, global *api.SharedAttributeMap) *Context {
	if params == nil {
		params = url.Values{}
	}
	return &Context{
		params:  params,
		request: &api.AttributeMap{},
		session: session,
		global:  global,
	}
}

func (c *Context) RequestParameters() url.Values             { return c.params }
func (c *Context) RequestMap() *api.AttributeMap             { return c.request }
func (c *Context) SessionMap() *api.SharedAttributeMap       { return c.session }
func (c *Context) GlobalSessionMap() *api.SharedAttributeMap { return c.global }

func (c *Context) RequestFlowExecutionRedirect() {
	c.setRedirect(Redirect{Kind: FlowExecutionRedirect})
}

func (c *Context) RequestFlowDefinitionRedirect(flowID string, input *api.AttributeMap) {
	c.setRedirect(Redirect{Kind: FlowDefinitionRedirect, FlowID: flowID, Input: input})
}

func (c *Context) RequestExternalRedirect(location string) {
	c.setRedirect(Redirect{Kind: ExternalRedirect, Location: location})
}

func (c *Context) RecordResponseComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete = true
}

func (c *Context) IsResponseComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complete
}

// Redirect returns the last redirect requested.
func (c *Context) Redirect() Redirect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.redirect
}

// A redirect completes the response.
func (c *Context) setRedirect(r Redirect) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redirect = r
	c.complete = true
}
