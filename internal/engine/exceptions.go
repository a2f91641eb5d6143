package engine

import (
	"context"

	"github.com/petrijr/flowstate/pkg/api"
)

// handleException looks for a handler of fe on the current state and then
// on the active flow. A matching handler exposes the failure in flash
// scope, runs its actions and transitions to its target. The returned
// error is the outcome of that transition.
func (e *Execution) handleException(ctx context.Context, rc *requestContext, fe *api.FlowExecutionError) (bool, error) {
	h := e.findHandler(rc, fe)
	if h == nil {
		return false, nil
	}

	e.flashScope.Put(api.StateExceptionAttribute, fe)
	e.flashScope.Put(api.RootCauseExceptionAttribute, api.RootCause(fe))

	if err := runActions(ctx, rc, h.Actions); err != nil {
		return true, err
	}
	if h.Target == nil && rc.CurrentState() == nil {
		return true, nil
	}
	return true, e.execute(ctx, rc, &api.Transition{Target: h.Target})
}

func (e *Execution) findHandler(rc *requestContext, fe *api.FlowExecutionError) *api.ExceptionHandler {
	if rc.active() == nil {
		return nil
	}
	if state := rc.CurrentState(); state != nil {
		for _, h := range state.ExceptionHandlers {
			if h.Handles(fe, e.kinds) {
				return h
			}
		}
	}
	for _, h := range rc.ActiveFlow().ExceptionHandlers {
		if h.Handles(fe, e.kinds) {
			return h
		}
	}
	return nil
}
