package engine

import (
	"context"
	"fmt"

	"github.com/petrijr/flowstate/pkg/api"
)

// enterState makes state the active session's current state and runs the
// behavior of its kind.
func (e *Execution) enterState(ctx context.Context, rc *requestContext, state *api.State) error {
	if err := e.listener.StateEntering(ctx, rc, state); err != nil {
		return err
	}
	session := e.active()
	previous := session.state
	session.state = state
	e.listener.StateEntered(ctx, rc, previous, state)

	if err := runActions(ctx, rc, state.EntryActions); err != nil {
		return err
	}

	switch state.Kind {
	case api.ViewState:
		return e.pause(ctx, rc, state, true)
	case api.ActionState:
		return e.enterActionState(ctx, rc, state)
	case api.DecisionState:
		return e.enterDecisionState(ctx, rc, state)
	case api.SubflowState:
		return e.enterSubflowState(ctx, rc, state)
	case api.EndState:
		return e.enterEndState(ctx, rc, state)
	default:
		return fmt.Errorf("%w: state %q has unknown kind %v", api.ErrInvalidFlow, state.ID, state.Kind)
	}
}

// exitState runs state's exit actions before a transition leaves it.
func (e *Execution) exitState(ctx context.Context, rc *requestContext, state *api.State) error {
	if state == nil {
		return nil
	}
	return runActions(ctx, rc, state.ExitActions)
}

// reenterState is used when a matched transition's guard refuses or a
// transition has no target. Exit actions do not run. View states pause
// again without re-running entry actions; other states are entered again.
func (e *Execution) reenterState(ctx context.Context, rc *requestContext, state *api.State) error {
	if state.Kind == api.ViewState {
		return e.pause(ctx, rc, state, true)
	}
	return e.enterState(ctx, rc, state)
}

// refresh re-renders the paused view state without signaling an event.
func (e *Execution) refresh(ctx context.Context, rc *requestContext) error {
	state := rc.CurrentState()
	if state == nil || state.Kind != api.ViewState {
		return fmt.Errorf("%w: cannot refresh non-view state %v", api.ErrNoMatchingTransition, state)
	}
	return e.pause(ctx, rc, state, false)
}

// pause returns control to the caller at a view state. With assignKey the
// execution gets the key of its next snapshot. The view is rendered in
// place unless a redirect is requested.
func (e *Execution) pause(ctx context.Context, rc *requestContext, state *api.State, assignKey bool) error {
	if assignKey {
		if err := e.assignKey(ctx, rc); err != nil {
			return err
		}
	}
	if state.Redirect || e.attributes.GetBool(api.AlwaysRedirectOnPause) {
		if rc.ext != nil {
			rc.ext.RequestFlowExecutionRedirect()
		}
		return nil
	}
	return runActions(ctx, rc, state.RenderActions)
}

func (e *Execution) assignKey(ctx context.Context, rc *requestContext) error {
	if e.keyFactory == nil {
		return nil
	}
	key, err := e.keyFactory.GetKey(ctx, rc.ext, e)
	if err != nil {
		return err
	}
	e.key = &key
	return nil
}

// enterActionState runs the state's actions in order. The first action
// result that matches a transition wins; empty results fall through to
// the next action.
func (e *Execution) enterActionState(ctx context.Context, rc *requestContext, state *api.State) error {
	var results []string
	for _, a := range state.Actions {
		result, err := a(ctx, rc)
		if err != nil {
			return err
		}
		if result == "" {
			continue
		}
		results = append(results, result)

		ev := &api.Event{ID: result}
		rc.event = ev
		e.listener.EventSignaled(ctx, rc, ev)
		if t, ok := e.findTransition(rc, state); ok {
			return e.execute(ctx, rc, t)
		}
	}
	return fmt.Errorf("%w: action state %q results %v", api.ErrNoMatchingTransition, state.ID, results)
}

// enterDecisionState takes the first transition whose criteria and guard
// both pass.
func (e *Execution) enterDecisionState(ctx context.Context, rc *requestContext, state *api.State) error {
	for _, t := range state.Transitions {
		if t.Matches(rc) && t.CanExecute(rc) {
			return e.execute(ctx, rc, t)
		}
	}
	return fmt.Errorf("%w: decision state %q", api.ErrNoMatchingTransition, state.ID)
}

func (e *Execution) enterSubflowState(ctx context.Context, rc *requestContext, state *api.State) error {
	child, err := e.locator.FlowDefinition(state.Subflow)
	if err != nil {
		return err
	}
	input := &api.AttributeMap{}
	err = api.ApplyMappings(state.SubflowInput, rc.Model(), func(api.ScopeType) *api.AttributeMap {
		return input
	})
	if err != nil {
		return err
	}
	return e.startSession(ctx, rc, child, input)
}

func (e *Execution) enterEndState(ctx context.Context, rc *requestContext, state *api.State) error {
	output := &api.AttributeMap{}
	err := api.ApplyMappings(state.Output, rc.Model(), func(api.ScopeType) *api.AttributeMap {
		return output
	})
	if err != nil {
		return err
	}
	return e.endSession(ctx, rc, state.ID, output)
}
