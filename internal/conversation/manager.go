package conversation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/flowstate/pkg/api"
)

const (
	// DefaultMaxConversations bounds the conversations of one user
	// session when Config.MaxConversations is zero.
	DefaultMaxConversations = 5

	// ContainerAttribute is the session attribute holding the session's
	// conversations.
	ContainerAttribute = "flowstate.conversation.container"
)

// Config describes a Manager.
type Config struct {
	// MaxConversations bounds the active conversations per user session.
	// Zero means DefaultMaxConversations, -1 means unlimited.
	MaxConversations int

	// IDs mints conversation ids. Defaults to UUIDGenerator.
	IDs IDGenerator

	// SessionAttribute overrides ContainerAttribute, so that several
	// managers can share one session.
	SessionAttribute string

	Logger *slog.Logger
}

// Manager creates and looks up conversations. Conversations are kept in a
// container bound into the caller's session map; a conversation begun in
// one session cannot be found from another.
type Manager struct {
	maxConversations int
	ids              IDGenerator
	attribute        string
	logger           *slog.Logger

	mu    sync.RWMutex
	hooks []func(*Conversation)
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		maxConversations: cfg.MaxConversations,
		ids:              cfg.IDs,
		attribute:        cfg.SessionAttribute,
		logger:           cfg.Logger,
	}
	if m.maxConversations == 0 {
		m.maxConversations = DefaultMaxConversations
	}
	if m.ids == nil {
		m.ids = UUIDGenerator{}
	}
	if m.attribute == "" {
		m.attribute = ContainerAttribute
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// MaxConversations returns the effective per-session bound, -1 meaning
// unlimited.
func (m *Manager) MaxConversations() int {
	return m.maxConversations
}

// Begin creates a conversation in ext's session. If the session already
// holds the maximum number of conversations the oldest one is ended.
func (m *Manager) Begin(ext api.ExternalContext, params Parameters) (*Conversation, error) {
	ct, err := m.container(ext, true)
	if err != nil {
		return nil, err
	}

	c := &Conversation{
		id:        m.ids.NextID(),
		params:    params,
		createdAt: time.Now(),
	}
	if evicted := ct.add(c); evicted != nil {
		m.logger.Debug("conversation_evicted",
			slog.String("conversation_id", string(evicted.id)),
			slog.Int("max_conversations", m.maxConversations),
		)
	}
	m.logger.Debug("conversation_begun",
		slog.String("conversation_id", string(c.id)),
		slog.String("name", params.Name),
	)
	return c, nil
}

// Get returns the conversation with the given id in ext's session. It
// fails with api.ErrConversationNotFound if the conversation has ended,
// was evicted or belongs to another session.
func (m *Manager) Get(ext api.ExternalContext, id api.ConversationID) (*Conversation, error) {
	ct, err := m.container(ext, false)
	if err != nil {
		return nil, err
	}
	if ct != nil {
		if c := ct.get(id); c != nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", api.ErrConversationNotFound, id)
}

// OnEnd registers fn to be called after any conversation of this manager
// ends, whether explicitly or by eviction.
func (m *Manager) OnEnd(fn func(*Conversation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manager) ended(c *Conversation) {
	m.mu.RLock()
	hooks := append([]func(*Conversation){}, m.hooks...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(c)
	}
}

// ParseID parses the string form of a conversation id.
func (m *Manager) ParseID(s string) (api.ConversationID, error) {
	return m.ids.ParseID(s)
}

// Count returns the number of conversations in ext's session.
func (m *Manager) Count(ext api.ExternalContext) int {
	ct, err := m.container(ext, false)
	if err != nil || ct == nil {
		return 0
	}
	return ct.size()
}

// EndAll ends every conversation held in session, oldest first, and
// returns how many were ended. It is meant for sessions that expire or
// are invalidated.
func (m *Manager) EndAll(session *api.SharedAttributeMap) int {
	if session == nil {
		return 0
	}
	mu := session.Mutex()
	mu.Lock()
	ct, ok := session.Get(m.attribute).(*container)
	mu.Unlock()
	if !ok {
		return 0
	}
	convs := ct.all()
	for _, c := range convs {
		c.End()
	}
	if len(convs) > 0 {
		m.logger.Debug("session_conversations_ended", slog.Int("count", len(convs)))
	}
	return len(convs)
}

// container returns the session's container, creating it when create is
// set. The session map's mutex guards creation.
func (m *Manager) container(ext api.ExternalContext, create bool) (*container, error) {
	if ext == nil || ext.SessionMap() == nil {
		return nil, fmt.Errorf("%w: no session to hold conversations", api.ErrConversationNotFound)
	}
	session := ext.SessionMap()
	mu := session.Mutex()
	mu.Lock()
	defer mu.Unlock()

	if ct, ok := session.Get(m.attribute).(*container); ok {
		return ct, nil
	}
	if !create {
		return nil, nil
	}
	ct := &container{maxConversations: m.maxConversations, onEnd: m.ended}
	session.Put(m.attribute, ct)
	return ct, nil
}
