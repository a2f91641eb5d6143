package flowstate

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	_ "modernc.org/sqlite"

	"github.com/petrijr/flowstate/internal/conversation"
	"github.com/petrijr/flowstate/internal/executor"
	"github.com/petrijr/flowstate/internal/session"
	"github.com/petrijr/flowstate/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Flow             = api.Flow
	State            = api.State
	StateKind        = api.StateKind
	Transition       = api.Transition
	Action           = api.Action
	Event            = api.Event
	Mapping          = api.Mapping
	ExceptionHandler = api.ExceptionHandler
	ScopeType        = api.ScopeType
	AttributeMap     = api.AttributeMap
	RequestContext   = api.RequestContext
	ExternalContext  = api.ExternalContext
	ExecutionKey     = api.ExecutionKey
	ExecutionEvent   = api.ExecutionEvent
	ErrorKind        = api.ErrorKind
	KindTable        = api.KindTable

	Listener             = api.Listener
	NoopListener         = api.NoopListener
	LoggingListener      = api.LoggingListener
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot

	Executor       = executor.Executor
	ExecutorConfig = executor.Config
	Result         = executor.Result

	UUIDGenerator     = conversation.UUIDGenerator
	SequenceGenerator = conversation.SequenceGenerator

	SessionStore  = session.Store
	SessionConfig = session.Config
)

const (
	ViewState     = api.ViewState
	ActionState   = api.ActionState
	DecisionState = api.DecisionState
	SubflowState  = api.SubflowState
	EndState      = api.EndState

	ScopeRequest      = api.ScopeRequest
	ScopeFlash        = api.ScopeFlash
	ScopeFlow         = api.ScopeFlow
	ScopeConversation = api.ScopeConversation

	EventIDParameter      = api.EventIDParameter
	AlwaysRedirectOnPause = api.AlwaysRedirectOnPause
)

var (
	ErrInvalidFlow          = api.ErrInvalidFlow
	ErrFlowNotFound         = api.ErrFlowNotFound
	ErrBadlyFormattedKey    = api.ErrBadlyFormattedKey
	ErrNotFound             = api.ErrNotFound
	ErrConversationNotFound = api.ErrConversationNotFound
	ErrSnapshotNotFound     = api.ErrSnapshotNotFound
	ErrRestorationFailure   = api.ErrRestorationFailure
	ErrNoMatchingTransition = api.ErrNoMatchingTransition
)

var (
	NewAttributeMap    = api.NewAttributeMap
	NewKindTable       = api.NewKindTable
	NewLoggingListener = api.NewLoggingListener
	NewListeners       = api.NewListeners
	ParseKey           = api.ParseKey
	OnEvent            = api.OnEvent
	NewSessionStore    = session.NewStore
	NewRequestContext  = session.NewContext
)

// Executor constructors.
// These wrap the internal/executor package so external callers
// never need to import internal packages.

// NewInMemoryExecutor returns an Executor whose snapshots and history are
// kept in process memory.
func NewInMemoryExecutor(cfg ExecutorConfig) (*Executor, error) {
	return executor.NewInMemoryExecutor(cfg)
}

// NewSQLiteExecutor returns an Executor that stores snapshots and history
// in a SQLite database.
func NewSQLiteExecutor(db *sql.DB, cfg ExecutorConfig) (*Executor, error) {
	return executor.NewSQLiteExecutor(db, cfg)
}

// NewPostgresExecutor returns an Executor that stores snapshots in
// PostgreSQL.
func NewPostgresExecutor(db *sql.DB, cfg ExecutorConfig) (*Executor, error) {
	return executor.NewPostgresExecutor(db, cfg)
}

// NewRedisExecutor returns an Executor that stores snapshots in Redis under
// keyPrefix ("flowstate:" if empty).
func NewRedisExecutor(client redis.UniversalClient, keyPrefix string, cfg ExecutorConfig) (*Executor, error) {
	return executor.NewRedisExecutor(client, keyPrefix, cfg)
}

// NewMongoExecutor returns an Executor that stores snapshots in MongoDB.
func NewMongoExecutor(ctx context.Context, client *mongo.Client, dbName string, cfg ExecutorConfig) (*Executor, error) {
	return executor.NewMongoExecutor(ctx, client, dbName, cfg)
}

// NewBlobExecutor returns an Executor that stores snapshots in the blob
// bucket at bucketURL. Call the returned function to release the bucket.
func NewBlobExecutor(ctx context.Context, bucketURL string, cfg ExecutorConfig) (*Executor, func() error, error) {
	return executor.NewBlobExecutor(ctx, bucketURL, cfg)
}

// OpenSQLite opens a SQLite database with the pure-Go driver. An in-memory
// database is limited to one connection, since every connection would
// otherwise see its own empty database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenPostgres opens and pings a PostgreSQL database through pgx.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// ExpireConversations ends the conversations of every session that
// sessions expires or invalidates, discarding their snapshots in x.
func ExpireConversations(sessions *SessionStore, x *Executor) {
	sessions.OnExpire(func(_ string, m *api.SharedAttributeMap) {
		x.EndSession(m)
	})
}

// Convenience helpers that just forward to the Executor.

// Launch starts a new execution of flowID.
func Launch(ctx context.Context, x *Executor, flowID string, input map[string]any, ext ExternalContext) (*Result, error) {
	return x.Launch(ctx, flowID, api.NewAttributeMap(input), ext)
}

// Resume resumes the snapshot addressed by key with ext's _eventId
// request parameter.
func Resume(ctx context.Context, x *Executor, key string, ext ExternalContext) (*Result, error) {
	return x.Resume(ctx, key, ext)
}

// Signal resumes the snapshot addressed by key with the given event.
func Signal(ctx context.Context, x *Executor, key, eventID string, ext ExternalContext) (*Result, error) {
	return x.Signal(ctx, key, &api.Event{ID: eventID, Attributes: &api.AttributeMap{}}, ext)
}
