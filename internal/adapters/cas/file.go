package cas

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// FileStore implements ports.CacheStore with one file per entry under a directory.
// Entries are written to a temporary file and linked into place, so concurrent writers of
// the same key never expose a partial entry and the first writer wins.
type FileStore struct {
	dir         string
	compression domain.Compression
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, compression domain.Compression) *FileStore {
	return &FileStore{dir: filepath.Clean(dir), compression: compression}
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Get retrieves the entry stored under key. A corrupt entry is removed and reported with
// domain.ErrStoreCorrupt, so the next Put can replace it.
func (s *FileStore) Get(_ context.Context, key domain.CacheKey) (*domain.CacheEntry, error) {
	path := s.path(key)
	//nolint:gosec // path is derived from the key digest
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(domain.Classify(domain.ErrStoreReadFailed, err), "path", path)
	}

	entry, err := decodeEntry(data, key)
	if err != nil {
		if errors.Is(err, domain.ErrStoreCorrupt) {
			_ = os.Remove(path)
		}
		return nil, zerr.With(err, "path", path)
	}
	return entry, nil
}

// Put stores entry unless an entry for its key already exists.
func (s *FileStore) Put(_ context.Context, entry domain.CacheEntry) error {
	data, err := encodeEntry(entry, s.compression)
	if err != nil {
		return domain.Classify(domain.ErrStoreWriteFailed, err)
	}

	path := s.path(entry.Key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(domain.Classify(domain.ErrStoreCreateFailed, err), "path", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return zerr.With(domain.Classify(domain.ErrStoreWriteFailed, err), "path", dir)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return zerr.With(domain.Classify(domain.ErrStoreWriteFailed, err), "path", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return zerr.With(domain.Classify(domain.ErrStoreWriteFailed, err), "path", tmpName)
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return zerr.With(domain.Classify(domain.ErrStoreWriteFailed, err), "path", path)
	}
	return nil
}

// path shards entries by the first two hex digits of their name.
func (s *FileStore) path(key domain.CacheKey) string {
	name := objectName(key)
	return filepath.Join(s.dir, name[:2], name)
}
