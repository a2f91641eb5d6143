package flowtest

import (
	"context"
	"sync"

	"github.com/petrijr/flowstate/pkg/api"
)

// RecordingListener records listener callbacks as "callback:detail"
// strings, for example "stateEntered:enterName".
type RecordingListener struct {
	api.NoopListener

	// Veto, if set, is returned from StateEntering for the state with
	// this id.
	Veto      string
	VetoError error

	mu     sync.Mutex
	events []string
}

var _ api.Listener = (*RecordingListener)(nil)

func (l *RecordingListener) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, s)
}

// Events returns a copy of the recorded callbacks.
func (l *RecordingListener) Events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *RecordingListener) RequestSubmitted(context.Context, api.RequestContext) {
	l.add("requestSubmitted")
}

func (l *RecordingListener) RequestProcessed(context.Context, api.RequestContext) {
	l.add("requestProcessed")
}

func (l *RecordingListener) SessionStarting(_ context.Context, _ api.RequestContext, flow *api.Flow, _ *api.AttributeMap) {
	l.add("sessionStarting:" + flow.ID)
}

func (l *RecordingListener) SessionStarted(_ context.Context, _ api.RequestContext, s api.FlowSession) {
	l.add("sessionStarted:" + s.Definition().ID)
}

func (l *RecordingListener) EventSignaled(_ context.Context, _ api.RequestContext, ev *api.Event) {
	l.add("eventSignaled:" + ev.ID)
}

func (l *RecordingListener) StateEntering(_ context.Context, _ api.RequestContext, state *api.State) error {
	l.add("stateEntering:" + state.ID)
	if l.Veto != "" && l.Veto == state.ID {
		return l.VetoError
	}
	return nil
}

func (l *RecordingListener) StateEntered(_ context.Context, _ api.RequestContext, _, state *api.State) {
	l.add("stateEntered:" + state.ID)
}

func (l *RecordingListener) Paused(context.Context, api.RequestContext) {
	l.add("paused")
}

func (l *RecordingListener) Resumed(context.Context, api.RequestContext) {
	l.add("resumed")
}

func (l *RecordingListener) SessionEnding(_ context.Context, _ api.RequestContext, s api.FlowSession, _ *api.AttributeMap) {
	l.add("sessionEnding:" + s.Definition().ID)
}

func (l *RecordingListener) SessionEnded(_ context.Context, _ api.RequestContext, s api.FlowSession, _ *api.AttributeMap) {
	l.add("sessionEnded:" + s.Definition().ID)
}

func (l *RecordingListener) ExceptionThrown(context.Context, api.RequestContext, error) {
	l.add("exceptionThrown")
}
