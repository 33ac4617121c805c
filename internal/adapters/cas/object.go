package cas

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"go.trai.ch/grid/internal/adapters/objectstore"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// ObjectStore implements ports.CacheStore on an S3-compatible bucket.
type ObjectStore struct {
	client      *minio.Client
	bucket      string
	prefix      string
	compression domain.Compression
}

// NewObjectStore creates a store in the bucket of remote.
func NewObjectStore(client *minio.Client, remote domain.RemoteConfig, compression domain.Compression) *ObjectStore {
	return &ObjectStore{
		client:      client,
		bucket:      remote.Bucket,
		prefix:      remote.Prefix,
		compression: compression,
	}
}

// Get retrieves the entry stored under key.
func (s *ObjectStore) Get(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, error) {
	name := objectstore.ObjectName(s.prefix, objectName(key))
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, zerr.With(domain.Classify(domain.ErrStoreReadFailed, err), "object", name)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(io.LimitReader(obj, maxRecordSize+1))
	if err != nil {
		if objectstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, zerr.With(domain.Classify(domain.ErrStoreReadFailed, err), "object", name)
	}
	if len(data) > maxRecordSize {
		return nil, zerr.With(zerr.Wrap(domain.ErrStoreCorrupt, "object exceeds the entry size limit"), "object", name)
	}

	entry, err := decodeEntry(data, key)
	if err != nil {
		return nil, zerr.With(err, "object", name)
	}
	return entry, nil
}

// Put stores entry unless an object for its key already exists.
func (s *ObjectStore) Put(ctx context.Context, entry domain.CacheEntry) error {
	name := objectstore.ObjectName(s.prefix, objectName(entry.Key))

	_, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return nil
	}
	if !objectstore.IsNotFound(err) {
		return zerr.With(domain.Classify(domain.ErrStoreReadFailed, err), "object", name)
	}

	data, err := encodeEntry(entry, s.compression)
	if err != nil {
		return domain.Classify(domain.ErrStoreWriteFailed, err)
	}
	_, err = s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/cbor",
		UserMetadata: map[string]string{
			"grid-key": entry.Key.String(),
		},
	})
	if err != nil {
		return zerr.With(domain.Classify(domain.ErrStoreWriteFailed, err), "object", name)
	}
	return nil
}
