package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// StateKind tags the variant of a State.
type StateKind int

const (
	// ViewState pauses the execution and waits for a user event.
	ViewState StateKind = iota + 1
	// ActionState executes actions and transitions on their results.
	ActionState
	// DecisionState evaluates its transition criteria and takes the first
	// that passes.
	DecisionState
	// SubflowState spawns a nested flow session.
	SubflowState
	// EndState terminates the active flow session.
	EndState
)

func (k StateKind) String() string {
	switch k {
	case ViewState:
		return "view"
	case ActionState:
		return "action"
	case DecisionState:
		return "decision"
	case SubflowState:
		return "subflow"
	case EndState:
		return "end"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Action is a unit of behavior invoked by the engine. The returned string is
// the action's result event id; "" means no result.
type Action func(ctx context.Context, rc RequestContext) (string, error)

// Event is a signaled occurrence that drives transitions.
type Event struct {
	ID         string
	Attributes *AttributeMap
}

// Wildcard matches any event id.
const Wildcard = "*"

// TransitionCriteria decides whether a transition applies to a request.
type TransitionCriteria interface {
	Test(rc RequestContext) bool
}

// CriteriaFunc adapts a function to TransitionCriteria.
type CriteriaFunc func(rc RequestContext) bool

func (f CriteriaFunc) Test(rc RequestContext) bool { return f(rc) }

type eventCriteria string

func (c eventCriteria) Test(rc RequestContext) bool {
	if c == Wildcard {
		return true
	}
	ev := rc.CurrentEvent()
	return ev != nil && ev.ID == string(c)
}

func (c eventCriteria) String() string { return "on " + string(c) }

// OnEvent matches events whose id equals id. Matching is case-sensitive.
func OnEvent(id string) TransitionCriteria {
	return eventCriteria(id)
}

// TargetResolver computes the id of a transition's target state.
type TargetResolver interface {
	Resolve(ctx context.Context, rc RequestContext) (string, error)
}

// To is a static target state id.
type To string

func (t To) Resolve(context.Context, RequestContext) (string, error) { return string(t), nil }

// TargetFunc computes a target state id from the request.
type TargetFunc func(ctx context.Context, rc RequestContext) (string, error)

func (f TargetFunc) Resolve(ctx context.Context, rc RequestContext) (string, error) {
	return f(ctx, rc)
}

// Transition moves a flow session from its current state to a target.
// A nil Target keeps the session in its current state.
type Transition struct {
	On      TransitionCriteria
	Guard   TransitionCriteria
	Target  TargetResolver
	Actions []Action
}

// Matches reports whether the transition's matching criteria accept rc.
func (t *Transition) Matches(rc RequestContext) bool {
	return t.On == nil || t.On.Test(rc)
}

// CanExecute reports whether the transition's guard allows execution.
func (t *Transition) CanExecute(rc RequestContext) bool {
	return t.Guard == nil || t.Guard.Test(rc)
}

func (t *Transition) String() string {
	target := "<stay>"
	switch tr := t.Target.(type) {
	case To:
		target = string(tr)
	case nil:
	default:
		target = "<dynamic>"
	}
	return fmt.Sprintf("%v -> %s", t.On, target)
}

// Mapping copies one attribute from a source map into a target scope.
type Mapping struct {
	Source string
	// Target defaults to Source.
	Target string
	// Scope selects the target scope when mapping into a flow execution.
	// The zero value is ScopeRequest; output mappings usually set ScopeFlow.
	Scope    ScopeType
	Required bool
}

// ApplyMappings copies attributes from source into the maps returned by
// target for each mapping's scope.
func ApplyMappings(mappings []Mapping, source *AttributeMap, target func(ScopeType) *AttributeMap) error {
	for _, m := range mappings {
		v, ok := source.Lookup(m.Source)
		if !ok {
			if m.Required {
				return fmt.Errorf("%w: required source %q is absent", ErrMappingFailed, m.Source)
			}
			continue
		}
		name := m.Target
		if name == "" {
			name = m.Source
		}
		target(m.Scope).Put(name, v)
	}
	return nil
}

// ExceptionHandler routes a matching error to a target state. A handler
// matches when Kind is set and an error in the chain has a kind that is-a
// Kind, or when Err is set and errors.Is matches it.
type ExceptionHandler struct {
	Kind    ErrorKind
	Err     error
	Target  TargetResolver
	Actions []Action
}

// Handles reports whether the handler applies to err.
func (h *ExceptionHandler) Handles(err error, kinds *KindTable) bool {
	if h.Err != nil && errors.Is(err, h.Err) {
		return true
	}
	if h.Kind == "" {
		return false
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if k, ok := e.(Kinded); ok && kinds.IsA(k.Kind(), h.Kind) {
			return true
		}
	}
	return false
}

// State is one node of a flow. Kind selects which of the variant fields
// are meaningful.
type State struct {
	ID                string
	Kind              StateKind
	EntryActions      []Action
	ExitActions       []Action
	Transitions       []*Transition
	ExceptionHandlers []*ExceptionHandler
	Attributes        map[string]any

	// ViewState
	View          string
	Redirect      bool
	RenderActions []Action

	// ActionState
	Actions []Action

	// SubflowState
	Subflow       string
	SubflowInput  []Mapping
	SubflowOutput []Mapping

	// EndState
	Output []Mapping
	Commit bool
}

// IsPausing reports whether entering the state returns control to the
// caller.
func (s *State) IsPausing() bool {
	return s.Kind == ViewState
}

func (s *State) String() string {
	return s.Kind.String() + ":" + s.ID
}

// Flow is an immutable state machine definition. It must be validated
// before use and is never modified afterwards.
type Flow struct {
	ID                string
	States            []*State
	StartStateID      string
	GlobalTransitions []*Transition
	ExceptionHandlers []*ExceptionHandler
	StartActions      []Action
	EndActions        []Action
	// Input maps the start input into the flow's scopes.
	Input      []Mapping
	Attributes map[string]any

	index map[string]*State
}

// State returns the state with the given id.
func (f *Flow) State(id string) (*State, error) {
	if f.index != nil {
		if s, ok := f.index[id]; ok {
			return s, nil
		}
	} else {
		for _, s := range f.States {
			if s.ID == id {
				return s, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: flow %q has no state %q", ErrStateNotFound, f.ID, id)
}

// StartState returns the flow's start state.
func (f *Flow) StartState() (*State, error) {
	if f.StartStateID == "" {
		return nil, fmt.Errorf("%w: flow %q has no start state", ErrInvalidFlow, f.ID)
	}
	return f.State(f.StartStateID)
}

// SubflowIDs returns the ids of the flows this flow spawns.
func (f *Flow) SubflowIDs() []string {
	var ids []string
	for _, s := range f.States {
		if s.Kind == SubflowState {
			ids = append(ids, s.Subflow)
		}
	}
	return ids
}

// Validate checks the definition and indexes its states. It is called
// once, when the flow is registered.
func (f *Flow) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: flow id is required", ErrInvalidFlow)
	}
	if len(f.States) == 0 {
		return fmt.Errorf("%w: flow %q has no states", ErrInvalidFlow, f.ID)
	}
	if f.StartStateID == "" {
		f.StartStateID = f.States[0].ID
	}

	index := make(map[string]*State, len(f.States))
	for _, s := range f.States {
		if s.ID == "" {
			return fmt.Errorf("%w: flow %q has a state without id", ErrInvalidFlow, f.ID)
		}
		if _, dup := index[s.ID]; dup {
			return fmt.Errorf("%w: flow %q has duplicate state %q", ErrInvalidFlow, f.ID, s.ID)
		}
		if s.Kind < ViewState || s.Kind > EndState {
			return fmt.Errorf("%w: state %q has unknown kind %v", ErrInvalidFlow, s.ID, s.Kind)
		}
		if s.Kind == SubflowState && s.Subflow == "" {
			return fmt.Errorf("%w: subflow state %q has no subflow id", ErrInvalidFlow, s.ID)
		}
		index[s.ID] = s
	}
	if _, ok := index[f.StartStateID]; !ok {
		return fmt.Errorf("%w: flow %q start state %q does not exist", ErrInvalidFlow, f.ID, f.StartStateID)
	}

	checkTarget := func(where string, r TargetResolver) error {
		if to, ok := r.(To); ok {
			if _, exists := index[string(to)]; !exists {
				return fmt.Errorf("%w: %s targets unknown state %q", ErrInvalidFlow, where, to)
			}
		}
		return nil
	}
	for _, s := range f.States {
		for _, t := range s.Transitions {
			if err := checkTarget("state "+s.ID, t.Target); err != nil {
				return err
			}
		}
		for _, h := range s.ExceptionHandlers {
			if err := checkTarget("state "+s.ID+" exception handler", h.Target); err != nil {
				return err
			}
		}
	}
	for _, t := range f.GlobalTransitions {
		if err := checkTarget("global transition", t.Target); err != nil {
			return err
		}
	}
	for _, h := range f.ExceptionHandlers {
		if err := checkTarget("exception handler", h.Target); err != nil {
			return err
		}
	}

	f.index = index
	return nil
}
