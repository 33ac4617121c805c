// Package nix builds job environments from pinned nixpkgs revisions resolved through
// NixHub.
package nix

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

const (
	nixHubAPIBase     = "https://search.devbox.sh/v2/resolve"
	httpClientTimeout = 30 * time.Second
)

// Resolver implements ports.DependencyResolver using the NixHub API with a local cache.
type Resolver struct {
	cacheDir   string
	baseURL    string
	httpClient *http.Client
	requests   singleflight.Group
}

// NewResolver creates a Resolver caching results below cacheDir.
func NewResolver(cacheDir string) *Resolver {
	return newResolver(cacheDir, nixHubAPIBase, &http.Client{Timeout: httpClientTimeout})
}

func newResolver(cacheDir, baseURL string, client *http.Client) *Resolver {
	return &Resolver{
		cacheDir:   filepath.Clean(cacheDir),
		baseURL:    baseURL,
		httpClient: client,
	}
}

type resolution struct {
	commit   string
	attrPath string
}

// Resolve implements ports.DependencyResolver. Concurrent calls for the same package
// share one lookup.
func (r *Resolver) Resolve(ctx context.Context, name, version string) (commitHash, attrPath string, err error) {
	system := currentSystem()
	path := r.cachePath(name, version)

	v, err, _ := r.requests.Do(name+"@"+version, func() (any, error) {
		if res, ok := r.loadFromCache(path, system); ok {
			return res, nil
		}

		resp, err := r.query(ctx, name, version)
		if err != nil {
			return nil, err
		}
		sys, ok := resp.Systems[system]
		if !ok || sys.FlakeInstallable.Ref.Rev == "" {
			return nil, zerr.With(zerr.With(zerr.With(
				zerr.Wrap(domain.ErrNixResolveFailed, "package is not available for this system"),
				"package", name), "version", version), "system", system)
		}

		// A failed cache write only costs a lookup next time.
		_ = r.saveToCache(path, name, version, resp)
		return resolution{commit: sys.FlakeInstallable.Ref.Rev, attrPath: sys.FlakeInstallable.AttrPath}, nil
	})
	if err != nil {
		return "", "", err
	}
	res := v.(resolution) //nolint:forcetypeassert // only resolution values are returned above
	return res.commit, res.attrPath, nil
}

func (r *Resolver) cachePath(name, version string) string {
	sum := sha256.Sum256([]byte(name + "@" + version))
	return filepath.Join(r.cacheDir, hex.EncodeToString(sum[:])+".json")
}

func (r *Resolver) loadFromCache(path, system string) (resolution, bool) {
	//nolint:gosec // path is a hashed name inside the cache directory
	data, err := os.ReadFile(path)
	if err != nil {
		return resolution{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return resolution{}, false
	}
	sys, ok := entry.Systems[system]
	if !ok || sys.Ref.Rev == "" {
		return resolution{}, false
	}
	return resolution{commit: sys.Ref.Rev, attrPath: sys.AttrPath}, true
}

func (r *Resolver) saveToCache(path, name, version string, resp *NixHubResponse) error {
	entry := cacheEntry{
		Name:      name,
		Version:   version,
		Systems:   make(map[string]FlakeInstallable, len(resp.Systems)),
		Timestamp: time.Now(),
	}
	for sys, data := range resp.Systems {
		entry.Systems[sys] = data.FlakeInstallable
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to encode resolver cache entry")
	}
	return atomicWriteFile(path, data)
}

func (r *Resolver) query(ctx context.Context, name, version string) (*NixHubResponse, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("version", version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, domain.Classify(domain.ErrNixResolveFailed, err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, zerr.With(domain.Classify(domain.ErrNixResolveFailed, err), "package", name)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, zerr.With(zerr.With(zerr.With(
			zerr.Wrap(domain.ErrNixResolveFailed, "unexpected NixHub response"),
			"package", name), "version", version), "status_code", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.Classify(domain.ErrNixResolveFailed, err)
	}
	var out NixHubResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, zerr.With(domain.Classify(domain.ErrNixResolveFailed, err), "package", name)
	}
	if len(out.Systems) == 0 {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrNixResolveFailed, "NixHub knows no such version"),
			"package", name), "version", version)
	}
	return &out, nil
}

// atomicWriteFile writes data to a temp file next to path and renames it into place.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create cache directory")
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return zerr.Wrap(err, "failed to create temp file")
	}
	name := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(name); !errors.Is(statErr, fs.ErrNotExist) {
			_ = os.Remove(name)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return zerr.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, "failed to close temp file")
	}
	if err := os.Chmod(name, domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to set file mode")
	}
	return os.Rename(name, path)
}

// currentSystem returns the NixHub system string of the running platform.
func currentSystem() string {
	arch := "x86_64"
	if runtime.GOARCH == "arm64" {
		arch = "aarch64"
	}
	goos := "linux"
	if runtime.GOOS == "darwin" {
		goos = "darwin"
	}
	return arch + "-" + goos
}
