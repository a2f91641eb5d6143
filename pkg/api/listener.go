package api

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Listener receives callbacks from a flow execution as it processes a
// request.
//
// Implementations should be fast and non-blocking. Only StateEntering may
// influence execution: a non-nil error vetoes entering the state and is
// routed through the exception handlers like an action failure.
type Listener interface {
	// RequestSubmitted is called when Start or Resume begins processing.
	RequestSubmitted(ctx context.Context, rc RequestContext)

	// RequestProcessed is called when Start or Resume returns, on success
	// and on failure.
	RequestProcessed(ctx context.Context, rc RequestContext)

	// SessionStarting is called before a new flow session is pushed.
	SessionStarting(ctx context.Context, rc RequestContext, flow *Flow, input *AttributeMap)

	// SessionStarted is called once the new session has entered its start
	// state.
	SessionStarted(ctx context.Context, rc RequestContext, session FlowSession)

	EventSignaled(ctx context.Context, rc RequestContext, ev *Event)

	// StateEntering is called before state is entered.
	StateEntering(ctx context.Context, rc RequestContext, state *State) error

	// StateEntered is called after state was entered. previous is nil for
	// a session's start state.
	StateEntered(ctx context.Context, rc RequestContext, previous, state *State)

	Paused(ctx context.Context, rc RequestContext)
	Resumed(ctx context.Context, rc RequestContext)

	SessionEnding(ctx context.Context, rc RequestContext, session FlowSession, output *AttributeMap)
	SessionEnded(ctx context.Context, rc RequestContext, session FlowSession, output *AttributeMap)

	// ExceptionThrown is called for every error raised while processing a
	// request, before exception handlers are consulted.
	ExceptionThrown(ctx context.Context, rc RequestContext, err error)
}

// NoopListener is a Listener that does nothing. Embed it to implement only
// the callbacks of interest.
type NoopListener struct{}

func (NoopListener) RequestSubmitted(context.Context, RequestContext)                      {}
func (NoopListener) RequestProcessed(context.Context, RequestContext)                      {}
func (NoopListener) SessionStarting(context.Context, RequestContext, *Flow, *AttributeMap) {}
func (NoopListener) SessionStarted(context.Context, RequestContext, FlowSession)           {}
func (NoopListener) EventSignaled(context.Context, RequestContext, *Event)                 {}
func (NoopListener) StateEntering(context.Context, RequestContext, *State) error           { return nil }
func (NoopListener) StateEntered(context.Context, RequestContext, *State, *State)          {}
func (NoopListener) Paused(context.Context, RequestContext)                                {}
func (NoopListener) Resumed(context.Context, RequestContext)                               {}
func (NoopListener) SessionEnding(context.Context, RequestContext, FlowSession, *AttributeMap) {
}
func (NoopListener) SessionEnded(context.Context, RequestContext, FlowSession, *AttributeMap) {
}
func (NoopListener) ExceptionThrown(context.Context, RequestContext, error) {}

// Listeners is an ordered set of listeners notified in slice order.
type Listeners []Listener

// NewListeners creates a Listener that forwards callbacks to each non-nil
// listener in ls.
func NewListeners(ls ...Listener) Listener {
	filtered := make(Listeners, 0, len(ls))
	for _, l := range ls {
		if l != nil {
			filtered = append(filtered, l)
		}
	}
	if len(filtered) == 0 {
		return NoopListener{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return filtered
}

func (ls Listeners) RequestSubmitted(ctx context.Context, rc RequestContext) {
	for _, l := range ls {
		l.RequestSubmitted(ctx, rc)
	}
}

func (ls Listeners) RequestProcessed(ctx context.Context, rc RequestContext) {
	for _, l := range ls {
		l.RequestProcessed(ctx, rc)
	}
}

func (ls Listeners) SessionStarting(ctx context.Context, rc RequestContext, flow *Flow, input *AttributeMap) {
	for _, l := range ls {
		l.SessionStarting(ctx, rc, flow, input)
	}
}

func (ls Listeners) SessionStarted(ctx context.Context, rc RequestContext, session FlowSession) {
	for _, l := range ls {
		l.SessionStarted(ctx, rc, session)
	}
}

func (ls Listeners) EventSignaled(ctx context.Context, rc RequestContext, ev *Event) {
	for _, l := range ls {
		l.EventSignaled(ctx, rc, ev)
	}
}

// StateEntering stops at the first listener that vetoes.
func (ls Listeners) StateEntering(ctx context.Context, rc RequestContext, state *State) error {
	for _, l := range ls {
		if err := l.StateEntering(ctx, rc, state); err != nil {
			return err
		}
	}
	return nil
}

func (ls Listeners) StateEntered(ctx context.Context, rc RequestContext, previous, state *State) {
	for _, l := range ls {
		l.StateEntered(ctx, rc, previous, state)
	}
}

func (ls Listeners) Paused(ctx context.Context, rc RequestContext) {
	for _, l := range ls {
		l.Paused(ctx, rc)
	}
}

func (ls Listeners) Resumed(ctx context.Context, rc RequestContext) {
	for _, l := range ls {
		l.Resumed(ctx, rc)
	}
}

func (ls Listeners) SessionEnding(ctx context.Context, rc RequestContext, session FlowSession, output *AttributeMap) {
	for _, l := range ls {
		l.SessionEnding(ctx, rc, session, output)
	}
}

func (ls Listeners) SessionEnded(ctx context.Context, rc RequestContext, session FlowSession, output *AttributeMap) {
	for _, l := range ls {
		l.SessionEnded(ctx, rc, session, output)
	}
}

func (ls Listeners) ExceptionThrown(ctx context.Context, rc RequestContext, err error) {
	for _, l := range ls {
		l.ExceptionThrown(ctx, rc, err)
	}
}

// LoggingListener writes structured logs using log/slog.
type LoggingListener struct {
	Logger *slog.Logger
}

// NewLoggingListener creates a Listener that logs execution lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingListener(logger *slog.Logger) Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingListener{Logger: logger}
}

func flowAttrs(rc RequestContext) []any {
	attrs := make([]any, 0, 3)
	if f := rc.ActiveFlow(); f != nil {
		attrs = append(attrs, slog.String("flow_id", f.ID))
	}
	if s := rc.CurrentState(); s != nil {
		attrs = append(attrs, slog.String("state_id", s.ID))
	}
	if fe := rc.FlowExecution(); fe != nil {
		if k := fe.Key(); k != nil {
			attrs = append(attrs, slog.String("key", k.String()))
		}
	}
	return attrs
}

func (o *LoggingListener) RequestSubmitted(ctx context.Context, rc RequestContext) {
	o.Logger.DebugContext(ctx, "request_submitted", flowAttrs(rc)...)
}

func (o *LoggingListener) RequestProcessed(ctx context.Context, rc RequestContext) {
	o.Logger.DebugContext(ctx, "request_processed", flowAttrs(rc)...)
}

func (o *LoggingListener) SessionStarting(ctx context.Context, rc RequestContext, flow *Flow, input *AttributeMap) {
	o.Logger.DebugContext(ctx, "session_starting",
		slog.String("flow_id", flow.ID),
		slog.Int("input_size", input.Len()),
	)
}

func (o *LoggingListener) SessionStarted(ctx context.Context, rc RequestContext, session FlowSession) {
	o.Logger.InfoContext(ctx, "session_started",
		slog.String("flow_id", session.Definition().ID),
		slog.Bool("root", session.IsRoot()),
	)
}

func (o *LoggingListener) EventSignaled(ctx context.Context, rc RequestContext, ev *Event) {
	o.Logger.DebugContext(ctx, "event_signaled",
		append(flowAttrs(rc), slog.String("event", ev.ID))...,
	)
}

func (o *LoggingListener) StateEntering(ctx context.Context, rc RequestContext, state *State) error {
	return nil
}

func (o *LoggingListener) StateEntered(ctx context.Context, rc RequestContext, previous, state *State) {
	from := ""
	if previous != nil {
		from = previous.ID
	}
	o.Logger.DebugContext(ctx, "state_entered",
		slog.String("flow_id", rc.ActiveFlow().ID),
		slog.String("from", from),
		slog.String("state_id", state.ID),
		slog.String("kind", state.Kind.String()),
	)
}

func (o *LoggingListener) Paused(ctx context.Context, rc RequestContext) {
	o.Logger.InfoContext(ctx, "paused", flowAttrs(rc)...)
}

func (o *LoggingListener) Resumed(ctx context.Context, rc RequestContext) {
	o.Logger.InfoContext(ctx, "resumed", flowAttrs(rc)...)
}

func (o *LoggingListener) SessionEnding(ctx context.Context, rc RequestContext, session FlowSession, output *AttributeMap) {
}

func (o *LoggingListener) SessionEnded(ctx context.Context, rc RequestContext, session FlowSession, output *AttributeMap) {
	o.Logger.InfoContext(ctx, "session_ended",
		slog.String("flow_id", session.Definition().ID),
		slog.Bool("root", session.IsRoot()),
		slog.Int("output_size", output.Len()),
	)
}

func (o *LoggingListener) ExceptionThrown(ctx context.Context, rc RequestContext, err error) {
	o.Logger.ErrorContext(ctx, "exception_thrown",
		append(flowAttrs(rc), slog.Any("error", err))...,
	)
}

// BasicMetrics collects simple execution counters. It implements Listener
// and can be combined with LoggingListener via NewListeners.
type BasicMetrics struct {
	NoopListener

	requests         atomic.Int64
	sessionsStarted  atomic.Int64
	sessionsEnded    atomic.Int64
	statesEntered    atomic.Int64
	pauses           atomic.Int64
	exceptionsThrown atomic.Int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	Requests         int64
	SessionsStarted  int64
	SessionsEnded    int64
	ActiveSessions   int64
	StatesEntered    int64
	Pauses           int64
	ExceptionsThrown int64
}

func (m *BasicMetrics) RequestSubmitted(context.Context, RequestContext) {
	m.requests.Add(1)
}

func (m *BasicMetrics) SessionStarted(context.Context, RequestContext, FlowSession) {
	m.sessionsStarted.Add(1)
}

func (m *BasicMetrics) SessionEnded(context.Context, RequestContext, FlowSession, *AttributeMap) {
	m.sessionsEnded.Add(1)
}

func (m *BasicMetrics) StateEntered(context.Context, RequestContext, *State, *State) {
	m.statesEntered.Add(1)
}

func (m *BasicMetrics) Paused(context.Context, RequestContext) {
	m.pauses.Add(1)
}

func (m *BasicMetrics) ExceptionThrown(context.Context, RequestContext, error) {
	m.exceptionsThrown.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.sessionsStarted.Load()
	ended := m.sessionsEnded.Load()
	return BasicMetricsSnapshot{
		Requests:         m.requests.Load(),
		SessionsStarted:  started,
		SessionsEnded:    ended,
		ActiveSessions:   started - ended,
		StatesEntered:    m.statesEntered.Load(),
		Pauses:           m.pauses.Load(),
		ExceptionsThrown: m.exceptionsThrown.Load(),
	}
}
