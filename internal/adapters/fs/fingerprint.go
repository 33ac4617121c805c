package fs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// Fingerprinter implements ports.Fingerprinter with xxhash.
//
// The fingerprint covers the relative path and content of every matched file, so it is
// stable across checkouts in different directories. Patterns are paths or globs relative
// to root. A directory contributes every file below it. A literal path that does not
// exist is an error; a glob without matches contributes nothing.
type Fingerprinter struct {
	walker *Walker
}

// NewFingerprinter creates a Fingerprinter.
func NewFingerprinter(walker *Walker) *Fingerprinter {
	return &Fingerprinter{walker: walker}
}

// Fingerprint implements ports.Fingerprinter.
func (f *Fingerprinter) Fingerprint(root string, patterns []string) (string, error) {
	files, err := f.resolve(root, patterns)
	if err != nil {
		return "", err
	}

	digest := xxhash.New()
	for _, rel := range files {
		_, _ = digest.WriteString(filepath.ToSlash(rel))
		_, _ = digest.Write([]byte{0})

		sum, err := hashFile(filepath.Join(root, rel))
		if err != nil {
			return "", err
		}
		if err := binary.Write(digest, binary.LittleEndian, sum); err != nil {
			return "", zerr.Wrap(err, "failed to write hash to digest")
		}
	}
	return fmt.Sprintf("%016x", digest.Sum64()), nil
}

// resolve expands patterns into sorted, unique file paths relative to root.
func (f *Fingerprinter) resolve(root string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	add := func(path string) error {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return zerr.With(zerr.Wrap(err, "path is outside the project root"), "path", path)
		}
		seen[rel] = struct{}{}
		return nil
	}

	for _, pattern := range patterns {
		abs := pattern
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, pattern)
		}
		matches, err := filepath.Glob(abs)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrFingerprintFailed, "malformed pattern"), "pattern", pattern)
		}
		if len(matches) == 0 && !hasMeta(pattern) {
			return nil, zerr.With(zerr.Wrap(domain.ErrFingerprintFailed, "environment specification file not found"),
				"path", abs)
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, zerr.With(zerr.Wrap(err, "failed to stat path"), "path", match)
			}
			if !info.IsDir() {
				if err := add(match); err != nil {
					return nil, err
				}
				continue
			}
			for file := range f.walker.WalkFiles(match) {
				if err := add(file); err != nil {
					return nil, err
				}
			}
		}
	}

	files := make([]string, 0, len(seen))
	for rel := range seen {
		files = append(files, rel)
	}
	slices.Sort(files)
	return files, nil
}

func hasMeta(pattern string) bool {
	return slices.ContainsFunc([]rune(pattern), func(r rune) bool {
		return r == '*' || r == '?' || r == '['
	})
}

func hashFile(path string) (uint64, error) {
	file, err := os.Open(path) //nolint:gosec // path is resolved from configured patterns
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return 0, zerr.With(zerr.Wrap(domain.ErrFingerprintFailed, "file disappeared while fingerprinting"), "path", path)
		}
		return 0, zerr.With(zerr.Wrap(err, "failed to open file"), "path", path)
	}
	defer func() { _ = file.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, file); err != nil {
		return 0, zerr.With(zerr.Wrap(err, "failed to hash file content"), "path", path)
	}
	return h.Sum64(), nil
}
