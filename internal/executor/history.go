package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/flowstate/internal/persistence"
	"github.com/petrijr/flowstate/pkg/api"
)

// HistoryListener records execution events into an EventStore. Events are
// buffered for the duration of a request and written when it has been
// processed, once the execution's conversation is known. Requests of
// executions that never paused have no conversation and are not recorded.
type HistoryListener struct {
	api.NoopListener

	store  persistence.EventStore
	logger *slog.Logger

	mu      sync.Mutex
	pending map[api.RequestContext]*pendingRequest
}

type pendingRequest struct {
	snapshotID int
	events     []api.ExecutionEvent
}

var _ api.Listener = (*HistoryListener)(nil)

func NewHistoryListener(store persistence.EventStore, logger *slog.Logger) *HistoryListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryListener{
		store:   store,
		logger:  logger,
		pending: make(map[api.RequestContext]*pendingRequest),
	}
}

func (h *HistoryListener) RequestSubmitted(_ context.Context, rc api.RequestContext) {
	p := &pendingRequest{}
	if k := rc.FlowExecution().Key(); k != nil {
		p.snapshotID = k.SnapshotID
	}
	h.mu.Lock()
	h.pending[rc] = p
	h.mu.Unlock()
}

func (h *HistoryListener) RequestProcessed(ctx context.Context, rc api.RequestContext) {
	h.mu.Lock()
	p := h.pending[rc]
	delete(h.pending, rc)
	h.mu.Unlock()
	if p == nil {
		return
	}

	key := rc.FlowExecution().Key()
	if key == nil {
		return
	}
	for _, ev := range p.events {
		ev.ConversationID = string(key.ConversationID)
		if err := h.store.AppendEvent(ctx, ev); err != nil {
			h.logger.WarnContext(ctx, "history_append_failed",
				slog.String("conversation_id", ev.ConversationID),
				slog.String("type", string(ev.Type)),
				slog.Any("error", err),
			)
			return
		}
	}
}

func (h *HistoryListener) SessionStarting(_ context.Context, rc api.RequestContext, flow *api.Flow, _ *api.AttributeMap) {
	if rc.FlowExecution().ActiveSession() == nil {
		h.record(rc, api.EventExecutionStarted, flow.ID, "", flow.ID)
	}
}

func (h *HistoryListener) SessionStarted(_ context.Context, rc api.RequestContext, session api.FlowSession) {
	h.record(rc, api.EventSessionStarted, session.Definition().ID, stateID(session.State()), "")
}

func (h *HistoryListener) EventSignaled(_ context.Context, rc api.RequestContext, ev *api.Event) {
	h.record(rc, api.EventSignaled, flowID(rc), stateID(rc.CurrentState()), ev.ID)
}

func (h *HistoryListener) StateEntered(_ context.Context, rc api.RequestContext, _, state *api.State) {
	h.record(rc, api.EventStateEntered, flowID(rc), state.ID, state.Kind.String())
}

func (h *HistoryListener) Paused(_ context.Context, rc api.RequestContext) {
	detail := ""
	if k := rc.FlowExecution().Key(); k != nil {
		detail = k.String()
	}
	h.record(rc, api.EventExecutionPaused, flowID(rc), stateID(rc.CurrentState()), detail)
}

func (h *HistoryListener) Resumed(_ context.Context, rc api.RequestContext) {
	h.record(rc, api.EventExecutionResumed, flowID(rc), stateID(rc.CurrentState()), "")
}

func (h *HistoryListener) SessionEnded(_ context.Context, rc api.RequestContext, session api.FlowSession, _ *api.AttributeMap) {
	end := stateID(session.State())
	h.record(rc, api.EventSessionEnded, session.Definition().ID, end, "")
	if session.IsRoot() {
		h.record(rc, api.EventExecutionEnded, session.Definition().ID, end, end)
	}
}

func (h *HistoryListener) ExceptionThrown(_ context.Context, rc api.RequestContext, err error) {
	h.record(rc, api.EventException, flowID(rc), stateID(rc.CurrentState()), err.Error())
}

func (h *HistoryListener) record(rc api.RequestContext, typ api.EventType, flow, state, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.pending[rc]
	if p == nil {
		return
	}
	p.events = append(p.events, api.ExecutionEvent{
		At:         time.Now(),
		Type:       typ,
		FlowID:     flow,
		StateID:    state,
		SnapshotID: p.snapshotID,
		Detail:     detail,
	})
}

func flowID(rc api.RequestContext) string {
	if f := rc.ActiveFlow(); f != nil {
		return f.ID
	}
	return ""
}

func stateID(s *api.State) string {
	if s == nil {
		return ""
	}
	return s.ID
}
