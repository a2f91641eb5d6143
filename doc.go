// Package flowstate is an embeddable engine for multi-request flows: web
// wizards, checkouts and other conversations in which a user moves through
// a state machine one request at a time.
//
// # Core Concepts
//
//  1. Flow
//  2. Executor
//  3. Conversation
//  4. Execution key
//  5. FlowBuilder
//
// # Flow
//
// A Flow is an immutable state machine. View states pause the execution
// and return control to the caller; action, decision and sub-flow states
// run within the request; end states finish the active flow session and
// hand an outcome to the parent session, if any. Transitions match events,
// may be guarded and run actions before entering their target.
//
// Actions read and write four scopes:
//
//   - request: one engine call
//   - flash: until the next event is signaled
//   - flow: the lifetime of one flow session
//   - conversation: the lifetime of the whole execution
//
// # Executor
//
// The Executor launches executions, resumes paused ones and stores a
// snapshot of the execution after every request. Snapshots can live in:
//
//   - memory (non-durable, best for tests)
//   - SQLite
//   - Postgres
//   - Redis
//   - MongoDB
//   - a blob bucket (file://, mem://, s3://, gs://)
//
// # Conversation
//
// Every execution that pauses begins a conversation in the user's session.
// The conversation holds the execution's snapshots, at most
// MaxContinuations of them, and is locked while a request is processed, so
// concurrent requests for one conversation are serialized. A session holds
// at most MaxConversations conversations; beginning another ends the
// oldest. When the root flow session ends, the conversation ends and its
// snapshots are discarded.
//
// # Execution key
//
// Each pause yields a key of the form "_c<conversation>_k<snapshot>". A
// request carrying an older key resumes the older snapshot, which is how
// the browser back button works. Keys of ended conversations and of
// evicted snapshots fail with ErrNotFound and ErrRestorationFailure.
//
// # FlowBuilder
//
// FlowBuilder provides a fluent API for defining flows:
//
//	flowstate.New("booking").
//	    View("enterDetails").On("next", "review").
//	    View("review").On("back", "enterDetails").On("confirm", "booked").
//	    End("booked")
//
// Definitions created with FlowBuilder are registered into an Executor
// before use. Sub-flows must be registered before the flows that spawn
// them.
package flowstate
