package persistence

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/flowstate/pkg/api"
)

// RedisStore is a SnapshotStore backed by Redis.
//
// Data model (keys are prefixed by the configured prefix):
//
//	<prefix>snap:<conversation>:<snapshot>  => STRING holding snapshot bytes
//	<prefix>conv:<conversation>             => SET of snapshot ids
//
// When a TTL is configured every write refreshes the expiry of both the
// snapshot and the conversation's index, so abandoned conversations age
// out on their own.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ SnapshotStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore. prefix is optional but recommended
// (e.g. "flowstate:"). A zero ttl keeps snapshots until deleted.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "flowstate:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) keySnapshot(conversationID api.ConversationID, snapshotID int) string {
	return s.prefix + "snap:" + string(conversationID) + ":" + strconv.Itoa(snapshotID)
}

func (s *RedisStore) keyConversation(conversationID api.ConversationID) string {
	return s.prefix + "conv:" + string(conversationID)
}

func (s *RedisStore) SaveSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int, data []byte) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keySnapshot(conversationID, snapshotID), data, s.ttl)
		pipe.SAdd(ctx, s.keyConversation(conversationID), snapshotID)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.keyConversation(conversationID), s.ttl)
		}
		return nil
	})
	return err
}

func (s *RedisStore) LoadSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) ([]byte, error) {
	data, err := s.client.Get(ctx, s.keySnapshot(conversationID, snapshotID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, snapshotNotFound(conversationID, snapshotID)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) DeleteSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.keySnapshot(conversationID, snapshotID))
		pipe.SRem(ctx, s.keyConversation(conversationID), snapshotID)
		return nil
	})
	return err
}

func (s *RedisStore) DeleteConversation(ctx context.Context, conversationID api.ConversationID) error {
	ids, err := s.client.SMembers(ctx, s.keyConversation(conversationID)).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, s.keyConversation(conversationID))
	for _, raw := range ids {
		id, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		keys = append(keys, s.keySnapshot(conversationID, id))
	}
	return s.client.Del(ctx, keys...).Err()
}
