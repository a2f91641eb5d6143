package conversation

import (
	"sync"

	"github.com/petrijr/flowstate/pkg/api"
)

// container holds the conversations of one user session in creation
// order.
type container struct {
	mu               sync.Mutex
	maxConversations int
	conversations    []*Conversation
	onEnd            func(*Conversation)
}

// add admits c, first ending the oldest conversation if the container is
// full. It returns the evicted conversation, if any.
func (ct *container) add(c *Conversation) *Conversation {
	ct.mu.Lock()
	var evicted *Conversation
	if ct.maxConversations > 0 && len(ct.conversations) >= ct.maxConversations {
		evicted = ct.conversations[0]
		ct.conversations = ct.conversations[1:]
	}
	c.container = ct
	ct.conversations = append(ct.conversations, c)
	ct.mu.Unlock()

	if evicted != nil {
		evicted.End()
	}
	return evicted
}

func (ct *container) get(id api.ConversationID) *Conversation {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for _, c := range ct.conversations {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (ct *container) remove(id api.ConversationID) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	for i, c := range ct.conversations {
		if c.id == id {
			ct.conversations = append(ct.conversations[:i], ct.conversations[i+1:]...)
			return
		}
	}
}

// all returns the conversations in creation order.
func (ct *container) all() []*Conversation {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return append([]*Conversation(nil), ct.conversations...)
}

func (ct *container) size() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.conversations)
}
