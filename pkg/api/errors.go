package api

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidFlow marks a flow definition that cannot be executed.
	ErrInvalidFlow = errors.New("invalid flow definition")

	// ErrFlowNotFound is returned when a flow id cannot be resolved.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrStateNotFound is returned when a state id is unknown to a flow.
	ErrStateNotFound = errors.New("state not found")

	// ErrBadlyFormattedKey is returned when an execution key or
	// conversation id string cannot be parsed.
	ErrBadlyFormattedKey = errors.New("badly formatted key")

	// ErrNotFound is matched by every well-formed-but-absent lookup.
	ErrNotFound = errors.New("not found")

	// ErrConversationNotFound is returned when a conversation id does not
	// resolve in the caller's session.
	ErrConversationNotFound = fmt.Errorf("conversation %w", ErrNotFound)

	// ErrSnapshotNotFound is returned when a snapshot id is absent from its
	// conversation.
	ErrSnapshotNotFound = fmt.Errorf("snapshot %w", ErrNotFound)

	// ErrRestorationFailure is returned when a snapshot cannot be turned
	// back into a flow execution.
	ErrRestorationFailure = errors.New("flow execution restoration failed")

	// ErrKeyNotSet is returned when an execution without a key is put into
	// a repository.
	ErrKeyNotSet = errors.New("flow execution key not set")

	// ErrNoMatchingTransition is returned when an event is not handled by
	// the current state or the flow's global transitions.
	ErrNoMatchingTransition = errors.New("no matching transition")

	// ErrNotActive is returned when a mutating operation is attempted on an
	// execution that has not started or has already ended.
	ErrNotActive = errors.New("flow execution is not active")

	// ErrAlreadyStarted is returned by Start on a started execution.
	ErrAlreadyStarted = errors.New("flow execution already started")

	// ErrTransitionLimitExceeded is returned when a single request executes
	// more transitions than the configured limit.
	ErrTransitionLimitExceeded = errors.New("transition limit exceeded")

	// ErrAttributeNotFound is returned by required attribute lookups.
	ErrAttributeNotFound = errors.New("attribute not found")

	// ErrMappingFailed is returned when a required mapping source is absent.
	ErrMappingFailed = errors.New("attribute mapping failed")
)

// FlowExecutionError reports a failure raised while a flow session was
// active. It identifies the flow and state that were active.
type FlowExecutionError struct {
	FlowID  string
	StateID string
	Err     error
}

func (e *FlowExecutionError) Error() string {
	if e.StateID == "" {
		return fmt.Sprintf("flow %q: %v", e.FlowID, e.Err)
	}
	return fmt.Sprintf("flow %q state %q: %v", e.FlowID, e.StateID, e.Err)
}

func (e *FlowExecutionError) Unwrap() error {
	return e.Err
}

// RootCause walks the Unwrap chain of err to its end.
func RootCause(err error) error {
	for err != nil {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return nil
}

// ErrorKind names a family of domain errors for exception handler matching.
type ErrorKind string

// Kinded is implemented by errors that declare an ErrorKind.
type Kinded interface {
	Kind() ErrorKind
}

// KindError is an error tagged with an ErrorKind and an optional cause.
type KindError struct {
	kind  ErrorKind
	msg   string
	cause error
}

// NewError returns an error of the given kind.
func NewError(kind ErrorKind, msg string) error {
	return &KindError{kind: kind, msg: msg}
}

// WrapError returns an error of the given kind caused by cause.
func WrapError(kind ErrorKind, cause error, msg string) error {
	return &KindError{kind: kind, msg: msg, cause: cause}
}

func (e *KindError) Kind() ErrorKind { return e.kind }

func (e *KindError) Unwrap() error { return e.cause }

func (e *KindError) Error() string {
	switch {
	case e.msg == "" && e.cause == nil:
		return string(e.kind)
	case e.cause == nil:
		return string(e.kind) + ": " + e.msg
	case e.msg == "":
		return string(e.kind) + ": " + e.cause.Error()
	default:
		return string(e.kind) + ": " + e.msg + ": " + e.cause.Error()
	}
}

// CapturedError is the serializable form an error takes when the scope
// holding it is written into a snapshot.
type CapturedError struct {
	ErrKind ErrorKind
	Message string
}

// CaptureError converts err into a CapturedError, keeping its kind.
func CaptureError(err error) CapturedError {
	var k Kinded
	ce := CapturedError{Message: err.Error()}
	if errors.As(err, &k) {
		ce.ErrKind = k.Kind()
	}
	return ce
}

func (e CapturedError) Error() string { return e.Message }

func (e CapturedError) Kind() ErrorKind { return e.ErrKind }

// KindTable is an explicit is-a relation between error kinds. A kind with
// no declared parent is a root. KindTable is safe for concurrent reads
// after configuration.
type KindTable struct {
	mu      sync.RWMutex
	parents map[ErrorKind]ErrorKind
}

// NewKindTable returns an empty table.
func NewKindTable() *KindTable {
	return &KindTable{parents: make(map[ErrorKind]ErrorKind)}
}

// Define declares that kind is a specialization of parent.
func (t *KindTable) Define(kind, parent ErrorKind) *KindTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.parents[kind] = parent
	return t
}

// IsA reports whether kind equals ancestor or descends from it.
func (t *KindTable) IsA(kind, ancestor ErrorKind) bool {
	if t == nil {
		return kind == ancestor
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[ErrorKind]bool)
	for k := kind; k != ""; k = t.parents[k] {
		if k == ancestor {
			return true
		}
		if seen[k] {
			return false
		}
		seen[k] = true
	}
	return false
}
