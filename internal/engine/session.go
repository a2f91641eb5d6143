package engine

import "github.com/petrijr/flowstate/pkg/api"

// flowSession is one activation of a flow on the execution's session stack.
type flowSession struct {
	flow   *api.Flow
	state  *api.State
	status api.SessionStatus
	scope  *api.AttributeMap
	parent *flowSession
}

var _ api.FlowSession = (*flowSession)(nil)

func newFlowSession(flow *api.Flow, parent *flowSession) *flowSession {
	return &flowSession{
		flow:   flow,
		status: api.SessionCreated,
		scope:  &api.AttributeMap{},
		parent: parent,
	}
}

func (s *flowSession) Definition() *api.Flow     { return s.flow }
func (s *flowSession) State() *api.State         { return s.state }
func (s *flowSession) Status() api.SessionStatus { return s.status }
func (s *flowSession) Scope() *api.AttributeMap  { return s.scope }
func (s *flowSession) IsRoot() bool              { return s.parent == nil }

func (s *flowSession) Parent() api.FlowSession {
	if s.parent == nil {
		return nil
	}
	return s.parent
}

func (s *flowSession) String() string {
	id := ""
	if s.state != nil {
		id = s.state.ID
	}
	return s.flow.ID + "@" + id + "[" + string(s.status) + "]"
}
