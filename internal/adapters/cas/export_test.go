package cas

import "go.trai.ch/grid/internal/core/domain"

// PathFor exposes the entry path for tests.
func (s *FileStore) PathFor(key domain.CacheKey) string {
	return s.path(key)
}

// EncodeEntry exposes the record encoder for tests.
var EncodeEntry = encodeEntry

// ObjectNameFor exposes the stored name of a key for tests.
var ObjectNameFor = objectName

// EncodeRecord encodes a raw record for tests.
func EncodeRecord(compression domain.Compression, size int, payload []byte) ([]byte, error) {
	return encMode.Marshal(record{
		Version:     recordVersion,
		Compression: string(compression),
		Size:        size,
		Payload:     payload,
	})
}
