package conversation

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/petrijr/flowstate/pkg/api"
)

// IDGenerator mints conversation ids and parses their string form.
type IDGenerator interface {
	NextID() api.ConversationID
	// ParseID fails with api.ErrBadlyFormattedKey for strings the
	// generator could not have produced.
	ParseID(s string) (api.ConversationID, error)
}

// UUIDGenerator mints random version 4 UUIDs. It is the default.
type UUIDGenerator struct{}

var _ IDGenerator = UUIDGenerator{}

func (UUIDGenerator) NextID() api.ConversationID {
	return api.ConversationID(uuid.NewString())
}

func (UUIDGenerator) ParseID(s string) (api.ConversationID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: conversation id %q: %v", api.ErrBadlyFormattedKey, s, err)
	}
	return api.ConversationID(u.String()), nil
}

// SequenceGenerator mints increasing integers starting at 1. Ids are only
// unique within one process.
type SequenceGenerator struct {
	last atomic.Int64
}

var _ IDGenerator = (*SequenceGenerator)(nil)

func (g *SequenceGenerator) NextID() api.ConversationID {
	return api.ConversationID(strconv.FormatInt(g.last.Add(1), 10))
}

func (g *SequenceGenerator) ParseID(s string) (api.ConversationID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 || strconv.FormatInt(n, 10) != s {
		return "", fmt.Errorf("%w: conversation id %q is not a positive integer", api.ErrBadlyFormattedKey, s)
	}
	return api.ConversationID(s), nil
}
