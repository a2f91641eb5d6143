package flowstate

import (
	"errors"
	"fmt"

	"github.com/petrijr/flowstate/pkg/api"
)

// FlowBuilder provides a fluent API for defining flows. State methods add
// a state; the methods that follow configure the state added last.
//
//	flow, err := flowstate.New("booking").
//	    View("enterDetails").On("next", "review").
//	    View("review").On("back", "enterDetails").On("confirm", "booked").
//	    End("booked").
//	    Build()
//
// Errors are collected and reported by Build.
type FlowBuilder struct {
	flow    *api.Flow
	current *api.State
	errs    []error
}

// New creates a builder for the flow with the given id. The first state
// added is the start state unless StartAt says otherwise.
func New(id string) *FlowBuilder {
	return &FlowBuilder{flow: &api.Flow{ID: id}}
}

// ID returns the flow id.
func (b *FlowBuilder) ID() string {
	return b.flow.ID
}

// StartAt sets the start state.
func (b *FlowBuilder) StartAt(stateID string) *FlowBuilder {
	b.flow.StartStateID = stateID
	return b
}

// View adds a view state, which pauses the execution until the next
// request.
func (b *FlowBuilder) View(id string) *FlowBuilder {
	return b.add(&api.State{ID: id, Kind: api.ViewState, View: id})
}

// Action adds an action state running actions in order. The first result
// that matches a transition wins.
func (b *FlowBuilder) Action(id string, actions ...Action) *FlowBuilder {
	if len(actions) == 0 {
		b.fail("action state %q has no actions", id)
	}
	return b.add(&api.State{ID: id, Kind: api.ActionState, Actions: actions})
}

// Decision adds a decision state. Configure it with When and Otherwise.
func (b *FlowBuilder) Decision(id string) *FlowBuilder {
	return b.add(&api.State{ID: id, Kind: api.DecisionState})
}

// Subflow adds a state that spawns the flow with id flowID. The state's
// transitions handle the sub-flow's outcome.
func (b *FlowBuilder) Subflow(id, flowID string) *FlowBuilder {
	if flowID == "" {
		b.fail("subflow state %q has no subflow id", id)
	}
	return b.add(&api.State{ID: id, Kind: api.SubflowState, Subflow: flowID})
}

// End adds an end state. Its id is the outcome of the flow session.
func (b *FlowBuilder) End(id string) *FlowBuilder {
	return b.add(&api.State{ID: id, Kind: api.EndState})
}

// On adds a transition to target taken on the event with id eventID.
func (b *FlowBuilder) On(eventID, target string, actions ...Action) *FlowBuilder {
	return b.Transition(&api.Transition{On: api.OnEvent(eventID), Target: api.To(target), Actions: actions})
}

// Stay adds a transition on eventID that runs actions and re-enters the
// current state.
func (b *FlowBuilder) Stay(eventID string, actions ...Action) *FlowBuilder {
	return b.Transition(&api.Transition{On: api.OnEvent(eventID), Actions: actions})
}

// When adds a transition to target taken when test passes.
func (b *FlowBuilder) When(test func(RequestContext) bool, target string) *FlowBuilder {
	return b.Transition(&api.Transition{On: api.CriteriaFunc(test), Target: api.To(target)})
}

// Otherwise adds a transition that matches every event.
func (b *FlowBuilder) Otherwise(target string) *FlowBuilder {
	return b.Transition(&api.Transition{Target: api.To(target)})
}

// Transition adds t to the current state.
func (b *FlowBuilder) Transition(t *Transition) *FlowBuilder {
	if s := b.state("transition"); s != nil {
		s.Transitions = append(s.Transitions, t)
	}
	return b
}

func (b *FlowBuilder) Entry(actions ...Action) *FlowBuilder {
	if s := b.state("entry actions"); s != nil {
		s.EntryActions = append(s.EntryActions, actions...)
	}
	return b
}

func (b *FlowBuilder) Exit(actions ...Action) *FlowBuilder {
	if s := b.state("exit actions"); s != nil {
		s.ExitActions = append(s.ExitActions, actions...)
	}
	return b
}

// Render adds actions run every time the current view state pauses
// without a redirect.
func (b *FlowBuilder) Render(actions ...Action) *FlowBuilder {
	if s := b.stateOfKind("render actions", api.ViewState); s != nil {
		s.RenderActions = append(s.RenderActions, actions...)
	}
	return b
}

// Redirect makes the current view state request a flow execution redirect
// when it pauses.
func (b *FlowBuilder) Redirect() *FlowBuilder {
	if s := b.stateOfKind("redirect", api.ViewState); s != nil {
		s.Redirect = true
	}
	return b
}

// Input maps attributes into the current sub-flow state's spawned flow.
func (b *FlowBuilder) Input(mappings ...Mapping) *FlowBuilder {
	if s := b.stateOfKind("input mappings", api.SubflowState); s != nil {
		s.SubflowInput = append(s.SubflowInput, mappings...)
	}
	return b
}

// Output maps attributes out of the flow for an end state, or back from
// the spawned flow for a sub-flow state.
func (b *FlowBuilder) Output(mappings ...Mapping) *FlowBuilder {
	s := b.state("output mappings")
	switch {
	case s == nil:
	case s.Kind == api.EndState:
		s.Output = append(s.Output, mappings...)
	case s.Kind == api.SubflowState:
		s.SubflowOutput = append(s.SubflowOutput, mappings...)
	default:
		b.fail("output mappings on %s state %q", s.Kind, s.ID)
	}
	return b
}

// Catch routes errors of the given kind raised in the current state to
// target.
func (b *FlowBuilder) Catch(kind ErrorKind, target string) *FlowBuilder {
	return b.Handle(&api.ExceptionHandler{Kind: kind, Target: api.To(target)})
}

// Handle adds an exception handler to the current state, or to the flow
// when no state has been added yet.
func (b *FlowBuilder) Handle(h *ExceptionHandler) *FlowBuilder {
	if b.current == nil {
		b.flow.ExceptionHandlers = append(b.flow.ExceptionHandlers, h)
		return b
	}
	b.current.ExceptionHandlers = append(b.current.ExceptionHandlers, h)
	return b
}

// Global adds a transition checked after the current state's own
// transitions in every state.
func (b *FlowBuilder) Global(eventID, target string) *FlowBuilder {
	b.flow.GlobalTransitions = append(b.flow.GlobalTransitions,
		&api.Transition{On: api.OnEvent(eventID), Target: api.To(target)})
	return b
}

func (b *FlowBuilder) OnStart(actions ...Action) *FlowBuilder {
	b.flow.StartActions = append(b.flow.StartActions, actions...)
	return b
}

func (b *FlowBuilder) OnEnd(actions ...Action) *FlowBuilder {
	b.flow.EndActions = append(b.flow.EndActions, actions...)
	return b
}

// FlowInput maps the start input into the flow's scopes. Without mappings
// the whole input lands in flow scope.
func (b *FlowBuilder) FlowInput(mappings ...Mapping) *FlowBuilder {
	b.flow.Input = append(b.flow.Input, mappings...)
	return b
}

// Attribute sets a flow attribute, such as "caption" or "description".
func (b *FlowBuilder) Attribute(name string, value any) *FlowBuilder {
	if b.flow.Attributes == nil {
		b.flow.Attributes = make(map[string]any)
	}
	b.flow.Attributes[name] = value
	return b
}

// Build validates and returns the flow. Errors wrap ErrInvalidFlow.
func (b *FlowBuilder) Build() (*Flow, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("%w: flow %q: %w", api.ErrInvalidFlow, b.flow.ID, errors.Join(b.errs...))
	}
	if err := b.flow.Validate(); err != nil {
		return nil, err
	}
	return b.flow, nil
}

// Register builds the flow and registers it with x.
func (b *FlowBuilder) Register(x *Executor) error {
	flow, err := b.Build()
	if err != nil {
		return err
	}
	return x.Register(flow)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *FlowBuilder) MustRegister(x *Executor) {
	if err := b.Register(x); err != nil {
		panic(err)
	}
}

func (b *FlowBuilder) add(s *api.State) *FlowBuilder {
	if s.ID == "" {
		b.fail("state id must not be empty")
	}
	b.flow.States = append(b.flow.States, s)
	b.current = s
	return b
}

func (b *FlowBuilder) state(what string) *api.State {
	if b.current == nil {
		b.fail("%s before any state", what)
	}
	return b.current
}

func (b *FlowBuilder) stateOfKind(what string, kind StateKind) *api.State {
	s := b.state(what)
	if s != nil && s.Kind != kind {
		b.fail("%s on %s state %q", what, s.Kind, s.ID)
		return nil
	}
	return s
}

func (b *FlowBuilder) fail(format string, args ...any) {
	b.errs = append(b.errs, fmt.Errorf(format, args...))
}
