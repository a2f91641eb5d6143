// Package api contains the core building blocks used by the flowstate flow
// execution engine. It provides the flow definition model, the attribute
// scopes visible to actions, execution keys, error types and the listener
// contract used to observe executions.
//
// Most users interact with the higher-level flowstate package, which
// re-exports selected types from this package and offers a FlowBuilder.
// The api package is intended for custom integrations, such as adapters
// implementing ExternalContext, and for contributors extending the engine.
//
// # Flows
//
// A Flow is an immutable state machine. Each State is tagged with a
// StateKind:
//
//   - ViewState pauses the execution and returns control to the caller.
//   - ActionState runs actions and transitions on their results.
//   - DecisionState takes the first transition whose criteria pass.
//   - SubflowState starts a nested flow session and waits for it to end.
//   - EndState ends the active session, mapping output to the parent.
//
// Transitions are evaluated in declaration order; the first transition
// that matches the current event wins. State transitions are followed by
// the flow's global transitions.
//
// # Scopes
//
// Actions see four AttributeMaps with different lifetimes: request scope
// (one engine call), flash scope (until the next event is signaled), flow
// scope (one flow session) and conversation scope (the whole execution).
//
// # Keys
//
// A paused execution is addressed by an ExecutionKey, rendered as
// "_c<conversation>_k<snapshot>". ParseKey distinguishes malformed keys
// (ErrBadlyFormattedKey) from keys that are well formed but no longer
// resolve (ErrNotFound).
//
// # Errors
//
// Failures raised by actions are matched against ExceptionHandlers. A
// handler can match a sentinel through errors.Is or an ErrorKind through a
// KindTable, which declares an explicit is-a relation between kinds.
// Unhandled failures surface as *FlowExecutionError.
//
// # Observability
//
// The Listener interface is notified at every lifecycle point of a
// request. LoggingListener, BasicMetrics and NewListeners cover the common
// cases.
package api
