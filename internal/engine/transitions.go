package engine

import (
	"context"
	"fmt"

	"github.com/petrijr/flowstate/pkg/api"
)

// handleEvent routes ev through the current state's transitions and then
// the flow's global transitions. The first transition whose criteria and
// guard pass is executed. If transitions matched but every guard refused,
// the first matching one is executed, which re-enters the current state.
func (e *Execution) handleEvent(ctx context.Context, rc *requestContext, ev *api.Event) error {
	rc.event = ev
	e.listener.EventSignaled(ctx, rc, ev)

	state := rc.CurrentState()
	if t, _ := e.findTransition(rc, state); t != nil {
		return e.execute(ctx, rc, t)
	}
	return fmt.Errorf("%w: event %q in state %q of flow %q",
		api.ErrNoMatchingTransition, ev.ID, state.ID, rc.ActiveFlow().ID)
}

// findTransition returns the first executable transition matching rc. When
// none is executable it returns the first matching transition, if any, and
// false.
func (e *Execution) findTransition(rc *requestContext, state *api.State) (*api.Transition, bool) {
	var firstMatch *api.Transition
	candidates := [][]*api.Transition{state.Transitions, rc.ActiveFlow().GlobalTransitions}
	for _, ts := range candidates {
		for _, t := range ts {
			if !t.Matches(rc) {
				continue
			}
			if t.CanExecute(rc) {
				return t, true
			}
			if firstMatch == nil {
				firstMatch = t
			}
		}
	}
	return firstMatch, false
}

// execute runs transition t from the current state. A refused guard or a
// missing target re-enters the current state.
func (e *Execution) execute(ctx context.Context, rc *requestContext, t *api.Transition) error {
	rc.transitions++
	if e.maxTransitions >= 0 && rc.transitions > e.maxTransitions {
		return fmt.Errorf("%w: more than %d transitions in one request", api.ErrTransitionLimitExceeded, e.maxTransitions)
	}

	source := rc.CurrentState()
	if !t.CanExecute(rc) {
		return e.reenterState(ctx, rc, source)
	}
	rc.transition = t

	if err := runActions(ctx, rc, t.Actions); err != nil {
		return err
	}
	if t.Target == nil {
		return e.reenterState(ctx, rc, source)
	}

	targetID, err := t.Target.Resolve(ctx, rc)
	if err != nil {
		return err
	}
	target, err := rc.ActiveFlow().State(targetID)
	if err != nil {
		return err
	}

	if err := e.exitState(ctx, rc, source); err != nil {
		return err
	}
	return e.enterState(ctx, rc, target)
}
