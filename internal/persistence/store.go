package persistence

import (
	"context"

	"github.com/petrijr/flowstate/pkg/api"
)

// SnapshotStore holds serialized flow execution snapshots, addressed by
// conversation id and snapshot id.
//
// SaveSnapshot overwrites an existing snapshot with the same address.
// LoadSnapshot fails with api.ErrSnapshotNotFound if nothing is stored.
// Deleting a snapshot or conversation that does not exist is not an error.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int, data []byte) error
	LoadSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) ([]byte, error)
	DeleteSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) error
	// DeleteConversation removes every snapshot stored for the conversation.
	DeleteConversation(ctx context.Context, conversationID api.ConversationID) error
}

func snapshotNotFound(conversationID api.ConversationID, snapshotID int) error {
	return &notFoundError{key: api.ExecutionKey{ConversationID: conversationID, SnapshotID: snapshotID}}
}

type notFoundError struct {
	key api.ExecutionKey
}

func (e *notFoundError) Error() string {
	return api.ErrSnapshotNotFound.Error() + ": " + e.key.String()
}

func (e *notFoundError) Unwrap() error { return api.ErrSnapshotNotFound }
