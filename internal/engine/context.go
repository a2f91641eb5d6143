package engine

import (
	"net/url"

	"github.com/petrijr/flowstate/pkg/api"
)

// requestContext is the per-call control context. It lives for exactly one
// Start or Resume call and owns that call's request scope.
type requestContext struct {
	exec         *Execution
	ext          api.ExternalContext
	requestScope *api.AttributeMap
	event        *api.Event
	transition   *api.Transition

	// transitions counts transitions executed during this call.
	transitions int
}

var _ api.RequestContext = (*requestContext)(nil)

func newRequestContext(exec *Execution, ext api.ExternalContext) *requestContext {
	return &requestContext{
		exec:         exec,
		ext:          ext,
		requestScope: &api.AttributeMap{},
	}
}

func (rc *requestContext) active() *flowSession {
	return rc.exec.active()
}

func (rc *requestContext) ActiveFlow() *api.Flow {
	if s := rc.active(); s != nil {
		return s.flow
	}
	return nil
}

func (rc *requestContext) CurrentState() *api.State {
	if s := rc.active(); s != nil {
		return s.state
	}
	return nil
}

func (rc *requestContext) CurrentEvent() *api.Event           { return rc.event }
func (rc *requestContext) CurrentTransition() *api.Transition { return rc.transition }
func (rc *requestContext) RequestScope() *api.AttributeMap    { return rc.requestScope }
func (rc *requestContext) FlashScope() *api.AttributeMap      { return rc.exec.flashScope }
func (rc *requestContext) ConversationScope() *api.AttributeMap {
	return rc.exec.conversationScope
}

// FlowScope returns the active session's scope. Once the root session has
// ended it returns a detached, empty map.
func (rc *requestContext) FlowScope() *api.AttributeMap {
	if s := rc.active(); s != nil {
		return s.scope
	}
	return &api.AttributeMap{}
}

func (rc *requestContext) Scope(t api.ScopeType) *api.AttributeMap {
	switch t {
	case api.ScopeFlash:
		return rc.FlashScope()
	case api.ScopeFlow:
		return rc.FlowScope()
	case api.ScopeConversation:
		return rc.ConversationScope()
	default:
		return rc.RequestScope()
	}
}

func (rc *requestContext) Model() *api.AttributeMap {
	return api.Union(rc.requestScope, rc.exec.flashScope, rc.FlowScope(), rc.exec.conversationScope)
}

func (rc *requestContext) RequestParameters() url.Values {
	if rc.ext == nil {
		return url.Values{}
	}
	return rc.ext.RequestParameters()
}

func (rc *requestContext) ExternalContext() api.ExternalContext    { return rc.ext }
func (rc *requestContext) FlowExecution() api.FlowExecutionContext { return rc.exec }
