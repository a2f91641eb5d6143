package api

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	conversationPrefix = "_c"
	snapshotPrefix     = "_k"
)

// ConversationID identifies a conversation. Its content is opaque to
// everything but the conversation manager that minted it.
type ConversationID string

func (id ConversationID) String() string { return string(id) }

// ExecutionKey addresses one immutable snapshot of a flow execution.
type ExecutionKey struct {
	ConversationID ConversationID
	SnapshotID     int
}

// String renders the key as "_c<conversation>_k<snapshot>".
func (k ExecutionKey) String() string {
	return conversationPrefix + string(k.ConversationID) + snapshotPrefix + strconv.Itoa(k.SnapshotID)
}

// ParseKey parses the output of ExecutionKey.String. Conversation ids must
// not be empty and snapshot ids must be positive integers.
func ParseKey(s string) (ExecutionKey, error) {
	if !strings.HasPrefix(s, conversationPrefix) {
		return ExecutionKey{}, fmt.Errorf("%w: %q does not start with %q", ErrBadlyFormattedKey, s, conversationPrefix)
	}
	rest := s[len(conversationPrefix):]
	i := strings.LastIndex(rest, snapshotPrefix)
	if i <= 0 {
		return ExecutionKey{}, fmt.Errorf("%w: %q has no conversation or snapshot part", ErrBadlyFormattedKey, s)
	}
	digits := rest[i+len(snapshotPrefix):]
	if digits == "" || digits[0] < '1' || digits[0] > '9' {
		return ExecutionKey{}, fmt.Errorf("%w: %q has an invalid snapshot id", ErrBadlyFormattedKey, s)
	}
	snap, err := strconv.Atoi(digits)
	if err != nil {
		return ExecutionKey{}, fmt.Errorf("%w: %q has an invalid snapshot id", ErrBadlyFormattedKey, s)
	}
	return ExecutionKey{
		ConversationID: ConversationID(rest[:i]),
		SnapshotID:     snap,
	}, nil
}
