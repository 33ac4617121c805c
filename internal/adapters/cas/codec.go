// Package cas implements the environment snapshot cache stores.
package cas

import (
	"bytes"
	"encoding/hex"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// recordVersion is bumped when the on-disk record layout changes.
const recordVersion = 1

// maxEntrySize bounds the decoded size of an entry. Snapshots describe an environment,
// they never hold its files.
const maxEntrySize = 16 << 20

// maxRecordSize bounds a stored record: an uncompressed entry plus framing.
const maxRecordSize = maxEntrySize + 1<<16

// maxLZ4Ratio bounds the claimed expansion of an LZ4 block.
const maxLZ4Ratio = 255

// record is the stored form of a cache entry. Digest is the BLAKE3 sum of the
// uncompressed entry encoding.
type record struct {
	Version     int    `cbor:"1,keyasint"`
	Compression string `cbor:"2,keyasint"`
	Size        int    `cbor:"3,keyasint"`
	Digest      []byte `cbor:"4,keyasint"`
	Payload     []byte `cbor:"5,keyasint"`
}

var (
	encMode     cbor.EncMode
	decMode     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encOpts := cbor.CoreDetEncOptions()
	encOpts.Time = cbor.TimeRFC3339Nano
	if encMode, err = encOpts.EncMode(); err != nil {
		panic("cas: cbor encoder initialization failed: " + err.Error())
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic("cas: cbor decoder initialization failed: " + err.Error())
	}
	if zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic("cas: zstd encoder initialization failed: " + err.Error())
	}
	if zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxEntrySize)); err != nil {
		panic("cas: zstd decoder initialization failed: " + err.Error())
	}
}

// objectName returns the stable file or object name of key.
func objectName(key domain.CacheKey) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + ".entry"
}

// encodeEntry serializes entry with the given compression. Incompressible entries are
// stored uncompressed.
func encodeEntry(entry domain.CacheEntry, compression domain.Compression) ([]byte, error) {
	raw, err := encMode.Marshal(entry)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode cache entry")
	}
	digest := blake3.Sum256(raw)

	rec := record{
		Version:     recordVersion,
		Compression: string(domain.CompressionNone),
		Size:        len(raw),
		Digest:      digest[:],
		Payload:     raw,
	}
	if payload, ok := compress(raw, compression); ok {
		rec.Compression = string(compression)
		rec.Payload = payload
	}

	data, err := encMode.Marshal(rec)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to encode cache record")
	}
	return data, nil
}

// decodeEntry parses a stored record and verifies its digest and key.
func decodeEntry(data []byte, key domain.CacheKey) (*domain.CacheEntry, error) {
	var rec record
	if err := decMode.Unmarshal(data, &rec); err != nil {
		return nil, domain.Classify(domain.ErrStoreCorrupt, err)
	}
	if rec.Version != recordVersion {
		return nil, zerr.With(zerr.Wrap(domain.ErrStoreCorrupt, "unsupported record version"), "version", rec.Version)
	}

	raw, err := decompress(rec)
	if err != nil {
		return nil, domain.Classify(domain.ErrStoreCorrupt, err)
	}
	digest := blake3.Sum256(raw)
	if !bytes.Equal(digest[:], rec.Digest) {
		return nil, zerr.Wrap(domain.ErrStoreCorrupt, "digest mismatch")
	}

	var entry domain.CacheEntry
	if err := decMode.Unmarshal(raw, &entry); err != nil {
		return nil, domain.Classify(domain.ErrStoreCorrupt, err)
	}
	if entry.Key != key {
		return nil, zerr.With(zerr.Wrap(domain.ErrStoreKeyMismatch, "entry belongs to another key"), "stored", entry.Key.String())
	}
	return &entry, nil
}

func compress(raw []byte, compression domain.Compression) ([]byte, bool) {
	switch compression {
	case domain.CompressionZstd:
		out := zstdEncoder.EncodeAll(raw, nil)
		return out, len(out) < len(raw)
	case domain.CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil || n == 0 || n >= len(raw) {
			return nil, false
		}
		return dst[:n], true
	default:
		return nil, false
	}
}

// decompress restores the entry encoding of rec. The recorded size is checked before it
// sizes any buffer and must match the decoded length.
func decompress(rec record) ([]byte, error) {
	if rec.Size < 0 || rec.Size > maxEntrySize {
		return nil, zerr.With(zerr.New("implausible entry size"), "size", rec.Size)
	}

	var (
		out []byte
		err error
	)
	switch domain.Compression(rec.Compression) {
	case domain.CompressionNone:
		out = rec.Payload
	case domain.CompressionZstd:
		out, err = zstdDecoder.DecodeAll(rec.Payload, make([]byte, 0, rec.Size))
	case domain.CompressionLZ4:
		if rec.Size > maxLZ4Ratio*len(rec.Payload)+64 {
			return nil, zerr.With(zerr.New("implausible entry size"), "size", rec.Size)
		}
		dst := make([]byte, rec.Size)
		var n int
		if n, err = lz4.UncompressBlock(rec.Payload, dst); err == nil {
			out = dst[:n]
		}
	default:
		return nil, zerr.With(zerr.New("unknown compression"), "compression", rec.Compression)
	}
	if err != nil {
		return nil, err
	}
	if len(out) != rec.Size {
		return nil, zerr.With(zerr.New("entry size mismatch"), "size", rec.Size)
	}
	return out, nil
}
