package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/flowstate/pkg/api"
)

// SQLiteEventStore stores flow execution events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flow_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			flow_id TEXT NOT NULL DEFAULT '',
			state_id TEXT NOT NULL DEFAULT '',
			snapshot_id INTEGER NOT NULL DEFAULT 0,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_flow_events_conversation_id ON flow_events(conversation_id, id);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_events (conversation_id, at, type, flow_id, state_id, snapshot_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ConversationID,
		at.UnixNano(),
		string(ev.Type),
		ev.FlowID,
		ev.StateID,
		ev.SnapshotID,
		ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, conversationID string) ([]api.ExecutionEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, at, type, flow_id, state_id, snapshot_id, detail
		FROM flow_events
		WHERE conversation_id = ?
		ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.ExecutionEvent
	for rows.Next() {
		var (
			id       string
			atN      int64
			typ      string
			flowID   string
			stateID  string
			snapshot int
			detail   string
		)
		if err := rows.Scan(&id, &atN, &typ, &flowID, &stateID, &snapshot, &detail); err != nil {
			return nil, err
		}
		out = append(out, api.ExecutionEvent{
			ConversationID: id,
			At:             time.Unix(0, atN),
			Type:           api.EventType(typ),
			FlowID:         flowID,
			StateID:        stateID,
			SnapshotID:     snapshot,
			Detail:         detail,
		})
	}
	return out, rows.Err()
}
