package persistence

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// Every pooled connection would otherwise see its own empty database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestSQLiteStore_Contract(t *testing.T) {
	store, err := NewSQLiteStore(openTestSQLite(t))
	require.NoError(t, err)
	runSnapshotStoreContract(t, store)
}

func TestSQLiteStore_SchemaIsIdempotent(t *testing.T) {
	db := openTestSQLite(t)
	_, err := NewSQLiteStore(db)
	require.NoError(t, err)
	_, err = NewSQLiteStore(db)
	require.NoError(t, err)
}
