package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/petrijr/flowstate/pkg/api"
)

// EventStore is an append-only history store for flow execution events.
type EventStore interface {
	AppendEvent(ctx context.Context, ev api.ExecutionEvent) error
	ListEvents(ctx context.Context, conversationID string) ([]api.ExecutionEvent, error)
}

// NoopEventStore discards all events.
type NoopEventStore struct{}

func (NoopEventStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error { return nil }
func (NoopEventStore) ListEvents(ctx context.Context, conversationID string) ([]api.ExecutionEvent, error) {
	return nil, nil
}

// InMemoryEventStore keeps events in process memory.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[string][]api.ExecutionEvent
}

var _ EventStore = (*InMemoryEventStore)(nil)

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[string][]api.ExecutionEvent)}
}

func (s *InMemoryEventStore) AppendEvent(ctx context.Context, ev api.ExecutionEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ConversationID] = append(s.events[ev.ConversationID], ev)
	return nil
}

func (s *InMemoryEventStore) ListEvents(ctx context.Context, conversationID string) ([]api.ExecutionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evs := s.events[conversationID]
	out := make([]api.ExecutionEvent, len(evs))
	copy(out, evs)
	return out, nil
}
