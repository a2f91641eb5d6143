package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/petrijr/flowstate/pkg/api"
)

// PostgresStore is a SnapshotStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a Postgres driver, typically pgx:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
//	db, err := sql.Open("pgx", dsn)
type PostgresStore struct {
	db *sql.DB
}

var _ SnapshotStore = (*PostgresStore)(nil)

// NewPostgresStore initializes the required schema in the given database
// and returns a new PostgresStore.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_snapshots (
			conversation_id TEXT NOT NULL,
			snapshot_id     INTEGER NOT NULL,
			data            BYTEA NOT NULL,
			saved_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (conversation_id, snapshot_id)
		);
	`)
	return err
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_snapshots (conversation_id, snapshot_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (conversation_id, snapshot_id)
		DO UPDATE SET data = EXCLUDED.data, saved_at = now()
	`,
		string(conversationID),
		snapshotID,
		data,
	)
	return err
}

func (s *PostgresStore) LoadSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM flow_snapshots
		WHERE conversation_id = $1 AND snapshot_id = $2
	`, string(conversationID), snapshotID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, snapshotNotFound(conversationID, snapshotID)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *PostgresStore) DeleteSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM flow_snapshots WHERE conversation_id = $1 AND snapshot_id = $2
	`, string(conversationID), snapshotID)
	return err
}

func (s *PostgresStore) DeleteConversation(ctx context.Context, conversationID api.ConversationID) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM flow_snapshots WHERE conversation_id = $1
	`, string(conversationID))
	return err
}
