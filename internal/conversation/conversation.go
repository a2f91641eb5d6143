package conversation

import (
	"sync"
	"time"

	"github.com/petrijr/flowstate/pkg/api"
)

// Parameters describe a conversation for administrative displays.
type Parameters struct {
	Name        string
	Caption     string
	Description string
}

// Conversation is the long-lived container of one flow execution's
// continuations. Callers must hold the conversation lock while they read
// or write the execution bound to it.
type Conversation struct {
	id        api.ConversationID
	params    Parameters
	createdAt time.Time
	container *container

	lock sync.Mutex

	mu         sync.Mutex
	attributes map[string]any
	ended      bool
}

func (c *Conversation) ID() api.ConversationID { return c.id }
func (c *Conversation) Parameters() Parameters { return c.params }
func (c *Conversation) CreatedAt() time.Time   { return c.createdAt }

// Lock blocks until the caller holds exclusive access to the
// conversation.
func (c *Conversation) Lock() { c.lock.Lock() }

// Unlock releases the lock acquired with Lock.
func (c *Conversation) Unlock() { c.lock.Unlock() }

// Attribute returns the conversation attribute stored under name.
func (c *Conversation) Attribute(name string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attributes[name]
}

func (c *Conversation) PutAttribute(name string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attributes == nil {
		c.attributes = make(map[string]any)
	}
	c.attributes[name] = value
}

func (c *Conversation) RemoveAttribute(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attributes, name)
}

// End removes the conversation from its container. Afterwards it can no
// longer be found. Ending twice is a no-op.
func (c *Conversation) End() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	c.mu.Unlock()

	if c.container != nil {
		c.container.remove(c.id)
		if c.container.onEnd != nil {
			c.container.onEnd(c)
		}
	}
}

// Ended reports whether End was called.
func (c *Conversation) Ended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

func (c *Conversation) String() string {
	return "conversation[" + string(c.id) + "]"
}
