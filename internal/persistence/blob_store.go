package persistence

import (
	"context"
	"errors"
	"io"
	"strconv"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/petrijr/flowstate/pkg/api"
)

// BlobStore is a SnapshotStore backed by a gocloud.dev blob bucket. Each
// snapshot is one object under <prefix><conversation>/<snapshot>.
type BlobStore struct {
	bucket *blob.Bucket
	prefix string
}

var _ SnapshotStore = (*BlobStore)(nil)

// NewBlobStore opens the bucket at bucketURL, such as "mem://" or
// "file:///var/lib/flowstate".
func NewBlobStore(ctx context.Context, bucketURL, prefix string) (*BlobStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	return &BlobStore{bucket: bucket, prefix: prefix}, nil
}

func (s *BlobStore) SaveSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int, data []byte) error {
	return s.bucket.WriteAll(ctx, s.keyFor(conversationID, snapshotID), data, nil)
}

func (s *BlobStore) LoadSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, s.keyFor(conversationID, snapshotID))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, snapshotNotFound(conversationID, snapshotID)
		}
		return nil, err
	}
	return data, nil
}

func (s *BlobStore) DeleteSnapshot(ctx context.Context, conversationID api.ConversationID, snapshotID int) error {
	err := s.bucket.Delete(ctx, s.keyFor(conversationID, snapshotID))
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

func (s *BlobStore) DeleteConversation(ctx context.Context, conversationID api.ConversationID) error {
	iter := s.bucket.List(&blob.ListOptions{Prefix: s.conversationPrefix(conversationID)})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.bucket.Delete(ctx, obj.Key); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
			return err
		}
	}
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

func (s *BlobStore) conversationPrefix(conversationID api.ConversationID) string {
	return s.prefix + string(conversationID) + "/"
}

func (s *BlobStore) keyFor(conversationID api.ConversationID, snapshotID int) string {
	return s.conversationPrefix(conversationID) + strconv.Itoa(snapshotID)
}
