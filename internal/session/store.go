// Package session keeps the server-side state of user sessions: the
// session maps that hold a user's conversations, and the external context
// a request is processed in.
package session

import (
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/petrijr/flowstate/pkg/api"
)

const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = time.Minute
)

// Config describes a Store.
type Config struct {
	// TTL is how long a session survives without being opened.
	TTL time.Duration
	// CleanupInterval is how often expired sessions are purged. A negative
	// value disables the janitor; call DeleteExpired instead.
	CleanupInterval time.Duration
	Logger          *slog.Logger
}

// Store holds session maps by id and expires idle sessions. Expired and
// invalidated sessions are reported to the OnExpire hooks, which typically
// end the session's conversations.
type Store struct {
	cache  *gocache.Cache
	ttl    time.Duration
	global *api.SharedAttributeMap
	logger *slog.Logger

	openMu sync.Mutex

	mu    sync.Mutex
	hooks []func(id string, session *api.SharedAttributeMap)
}

func NewStore(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Store{
		cache:  gocache.New(cfg.TTL, cfg.CleanupInterval),
		ttl:    cfg.TTL,
		global: api.NewSharedAttributeMap(),
		logger: cfg.Logger,
	}
	s.cache.OnEvicted(s.evicted)
	return s
}

// OnExpire registers fn to be called when a session expires or is
// invalidated.
func (s *Store) OnExpire(fn func(id string, session *api.SharedAttributeMap)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Create starts a new session and returns its id.
func (s *Store) Create() (string, *api.SharedAttributeMap) {
	id := uuid.NewString()
	return id, s.Open(id)
}

// Open returns the session with the given id, creating it if it does not
// exist or has expired, and extends its lifetime.
func (s *Store) Open(id string) *api.SharedAttributeMap {
	s.openMu.Lock()
	defer s.openMu.Unlock()

	if v, ok := s.cache.Get(id); ok {
		session := v.(*api.SharedAttributeMap)
		s.cache.Set(id, session, s.ttl)
		return session
	}
	// Report an expired session the janitor has not purged yet.
	s.cache.Delete(id)

	session := api.NewSharedAttributeMap()
	s.cache.Set(id, session, s.ttl)
	s.logger.Debug("session_created", slog.String("session_id", id))
	return session
}

// Lookup returns the session with the given id without extending it.
func (s *Store) Lookup(id string) (*api.SharedAttributeMap, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*api.SharedAttributeMap), true
}

// Invalidate discards a session.
func (s *Store) Invalidate(id string) {
	s.cache.Delete(id)
}

// DeleteExpired purges expired sessions now.
func (s *Store) DeleteExpired() {
	s.cache.DeleteExpired()
}

// Len returns the number of stored sessions, including expired ones not
// yet purged.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Global returns the map shared by all sessions.
func (s *Store) Global() *api.SharedAttributeMap {
	return s.global
}

// NewContext returns the external context of a request made in the
// session with the given id.
func (s *Store) NewContext(id string, params url.Values) *Context {
	return NewContext(params, s.Open(id), s.global)
}

func (s *Store) evicted(id string, v any) {
	session, ok := v.(*api.SharedAttributeMap)
	if !ok {
		return
	}
	s.mu.Lock()
	hooks := append([]func(string, *api.SharedAttributeMap){}, s.hooks...)
	s.mu.Unlock()

	s.logger.Debug("session_expired", slog.String("session_id", id))
	for _, fn := range hooks {
		fn(id, session)
	}
}
