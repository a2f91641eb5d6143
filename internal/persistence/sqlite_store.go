package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/petrijr/flowstate/pkg/api"
)

// SQLiteStore is a SnapshotStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteStore struct {
	db *sql.DB
}

var _ SnapshotStore = (*SQLiteStore)(nil)

// NewSQLiteStore initializes the required schema in the given database
// and returns a new SQLiteStore.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_snapshots (
			conversation_id TEXT NOT NULL,
			snapshot_id INTEGER NOT NULL,
			data BLOB NOT NULL,
			saved_at INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, snapshot_id)
		);`,
	)
	return err
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_snapshots (conversation_id, snapshot_id, data, saved_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conversation_id, snapshot_id)
		DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		string(conversationID),
		snapshotID,
		data,
		time.Now().UnixNano(),
	)
	return err
}

func (s *SQLiteStore) LoadSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT data FROM flow_snapshots
		WHERE conversation_id = ? AND snapshot_id = ?`,
		string(conversationID), snapshotID,
	)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, snapshotNotFound(conversationID, snapshotID)
		}
		return nil, err
	}
	return data, nil
}

func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM flow_snapshots WHERE conversation_id = ? AND snapshot_id = ?`,
		string(conversationID), snapshotID,
	)
	return err
}

func (s *SQLiteStore) DeleteConversation(ctx context.Context, conversationID api.ConversationID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM flow_snapshots WHERE conversation_id = ?`,
		string(conversationID),
	)
	return err
}
