package persistence

import (
	"context"
	"sync"

	"github.com/petrijr/flowstate/pkg/api"
)

// InMemoryStore is a goroutine-safe SnapshotStore backed by maps. Stored
// bytes are copied on the way in and out.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[api.ConversationID]map[int][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		snapshots: make(map[api.ConversationID]map[int][]byte),
	}
}

var _ SnapshotStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveSnapshot(_ context.Context, conversationID api.ConversationID, snapshotID int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, ok := s.snapshots[conversationID]
	if !ok {
		group = make(map[int][]byte)
		s.snapshots[conversationID] = group
	}
	group[snapshotID] = append([]byte(nil), data...)
	return nil
}

func (s *InMemoryStore) LoadSnapshot(_ context.Context, conversationID api.ConversationID, snapshotID int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.snapshots[conversationID][snapshotID]
	if !ok {
		return nil, snapshotNotFound(conversationID, snapshotID)
	}
	return append([]byte(nil), data...), nil
}

func (s *InMemoryStore) DeleteSnapshot(_ context.Context, conversationID api.ConversationID, snapshotID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group := s.snapshots[conversationID]
	delete(group, snapshotID)
	if len(group) == 0 {
		delete(s.snapshots, conversationID)
	}
	return nil
}

func (s *InMemoryStore) DeleteConversation(_ context.Context, conversationID api.ConversationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.snapshots, conversationID)
	return nil
}

// Len returns the number of snapshots held for the conversation.
func (s *InMemoryStore) Len(conversationID api.ConversationID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots[conversationID])
}
