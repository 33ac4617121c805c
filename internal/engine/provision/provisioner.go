// Package provision materializes job environments through the snapshot cache.
package provision

import (
	"context"
	"io"
	"os"
	"time"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

// Options configures key derivation and cache use for one run.
type Options struct {
	Keys        domain.KeyConfig
	Fingerprint string
	Generation  int
	NoCache     bool
}

// Result describes a provisioned environment.
type Result struct {
	Snapshot domain.Snapshot
	Key      domain.CacheKey
	Rebuilt  bool
}

// Provisioner looks up environment snapshots by cache key and builds them on a miss.
type Provisioner struct {
	builder ports.EnvironmentBuilder
	store   ports.CacheStore
	clock   ports.Clock
	logger  ports.Logger
	opts    Options

	// day is the freshness date used for every key of the run.
	day   time.Time
	group singleflight.Group
}

// New creates a Provisioner. The freshness date is read from clock once, so all jobs of
// a run derive their keys from the same day.
func New(
	builder ports.EnvironmentBuilder,
	store ports.CacheStore,
	clock ports.Clock,
	logger ports.Logger,
	opts Options,
) *Provisioner {
	return &Provisioner{
		builder: builder,
		store:   store,
		clock:   clock,
		logger:  logger,
		opts:    opts,
		day:     clock.Now(),
	}
}

// KeyInput collects the cache key inputs for job.
func (p *Provisioner) KeyInput(job domain.JobSpec) (domain.CacheKeyInput, error) {
	platform, ok := job.Lookup(p.opts.Keys.Platform)
	if !ok {
		return domain.CacheKeyInput{}, zerr.With(zerr.With(
			zerr.Wrap(domain.ErrMissingPlatformField, "cannot derive cache key"),
			"job", job.ID()), "key", p.opts.Keys.Platform)
	}
	if p.opts.Keys.Label != "" {
		if label, ok := job.Field(p.opts.Keys.Label); ok {
			platform = label
		}
	}

	runtime, ok := job.Lookup(p.opts.Keys.Runtime)
	if !ok {
		return domain.CacheKeyInput{}, zerr.With(zerr.With(
			zerr.Wrap(domain.ErrMissingRuntimeField, "cannot derive cache key"),
			"job", job.ID()), "key", p.opts.Keys.Runtime)
	}

	return domain.CacheKeyInput{
		PlatformLabel:   platform,
		RuntimeVersion:  runtime,
		SpecFingerprint: p.opts.Fingerprint,
		FreshnessDate:   p.day,
		Generation:      p.opts.Generation,
	}, nil
}

// Key derives the cache key for job.
func (p *Provisioner) Key(job domain.JobSpec) (domain.CacheKey, error) {
	in, err := p.KeyInput(job)
	if err != nil {
		return "", err
	}
	return domain.ResolveCacheKey(in), nil
}

// Lookup reports whether the store holds a usable entry for key. Store errors count as a
// miss, and so does an entry whose environment directory is absent on this machine.
func (p *Provisioner) Lookup(ctx context.Context, key domain.CacheKey) (*domain.CacheEntry, bool) {
	if p.opts.NoCache {
		return nil, false
	}
	entry, err := p.store.Get(ctx, key)
	if err != nil {
		p.logger.Warn("cache lookup failed, rebuilding: " + err.Error())
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if root := entry.Snapshot.Root; root != "" {
		if info, err := os.Stat(root); err != nil || !info.IsDir() {
			p.logger.Warn("cached environment directory " + root + " is missing, rebuilding " + key.String())
			return nil, false
		}
	}
	return entry, true
}

// Provision returns the environment for job. A cache hit returns the stored snapshot
// without building. On a miss the builder runs and the snapshot is stored for later runs;
// a failed store write is logged and does not fail provisioning.
func (p *Provisioner) Provision(ctx context.Context, job domain.JobSpec, out io.Writer) (Result, error) {
	in, err := p.KeyInput(job)
	if err != nil {
		return Result{}, err
	}
	key := domain.ResolveCacheKey(in)

	if entry, ok := p.Lookup(ctx, key); ok {
		return Result{Snapshot: entry.Snapshot, Key: key}, nil
	}

	// Jobs resolving to the same key share one build. Only the caller whose closure runs
	// reports a rebuild.
	var built bool
	v, err, _ := p.group.Do(string(key), func() (any, error) {
		snapshot, buildErr := p.builder.Build(ctx, job, key, out)
		if buildErr != nil {
			return nil, zerr.With(zerr.With(
				domain.Classify(domain.ErrBuildFailed, buildErr), "job", job.ID()), "key", key.String())
		}
		built = true
		p.persist(ctx, in, key, snapshot)
		return snapshot, nil
	})
	if err != nil {
		return Result{Key: key}, err
	}

	return Result{Snapshot: v.(domain.Snapshot), Key: key, Rebuilt: built}, nil
}

func (p *Provisioner) persist(ctx context.Context, in domain.CacheKeyInput, key domain.CacheKey, snapshot domain.Snapshot) {
	if p.opts.NoCache {
		return
	}
	entry := domain.CacheEntry{
		Key:           key,
		Snapshot:      snapshot,
		FreshnessDate: in.FreshnessDay(),
		Generation:    in.Generation,
		StoredAt:      p.clock.Now(),
	}
	if err := p.store.Put(ctx, entry); err != nil {
		p.logger.Warn("cache store write failed, environment not cached: " + err.Error())
	}
}
