package api

import "time"

// EventType identifies an execution history event.
type EventType string

const (
	EventExecutionStarted EventType = "execution.started"
	EventExecutionPaused  EventType = "execution.paused"
	EventExecutionResumed EventType = "execution.resumed"
	EventExecutionEnded   EventType = "execution.ended"

	EventSessionStarted EventType = "session.started"
	EventSessionEnded   EventType = "session.ended"

	EventSignaled     EventType = "event.signaled"
	EventStateEntered EventType = "state.entered"
	EventException    EventType = "exception.thrown"
)

// ExecutionEvent is a minimal append-only history record for audit and
// debugging. Records are grouped by conversation id.
type ExecutionEvent struct {
	ConversationID string
	At             time.Time
	Type           EventType

	FlowID  string
	StateID string
	// SnapshotID is the snapshot the request was resumed from, or 0.
	SnapshotID int

	// Small, human-oriented details such as an event id or error string.
	Detail string
}
