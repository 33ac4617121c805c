package app

import (
	"context"
	"errors"
	"io"
	"path/filepath"

	"go.trai.ch/grid/internal/adapters/cas"
	"go.trai.ch/grid/internal/adapters/nix"
	"go.trai.ch/grid/internal/adapters/objectstore"
	"go.trai.ch/grid/internal/adapters/shell"
	"go.trai.ch/grid/internal/adapters/sink"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/zerr"
)

// Backends are the configuration-selected collaborators of one run.
type Backends struct {
	Store     ports.CacheStore
	Sink      ports.ReportSink
	Builder   ports.EnvironmentBuilder
	Installer ports.Installer
	Tests     ports.TestRunner

	closers []io.Closer
}

// Close releases connections held by the backends.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenStore returns the cache store configured by cfg.
func OpenStore(ctx context.Context, cfg domain.StoreConfig) (ports.CacheStore, error) {
	switch cfg.Kind {
	case domain.StoreFS:
		return cas.NewFileStore(cfg.Path, cfg.Compression), nil
	case domain.StoreS3:
		client, err := objectstore.NewClient(cfg.Remote)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to open remote cache store")
		}
		if err := objectstore.EnsureBucket(ctx, client, cfg.Remote.Bucket, cfg.Remote.Region); err != nil {
			return nil, domain.Classify(domain.ErrStoreCreateFailed, err)
		}
		return cas.NewObjectStore(client, cfg.Remote, cfg.Compression), nil
	case domain.StoreNone:
		return cas.NopStore{}, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownBackend, "unknown cache store"), "kind", string(cfg.Kind))
	}
}

// OpenSink returns the report sink configured by cfg. The returned closer is nil when
// the sink holds no resources.
func OpenSink(ctx context.Context, cfg domain.SinkConfig) (ports.ReportSink, io.Closer, error) {
	switch cfg.Kind {
	case domain.SinkFile:
		return sink.NewFileSink(cfg.Path), nil, nil
	case domain.SinkS3:
		client, err := objectstore.NewClient(cfg.Remote)
		if err != nil {
			return nil, nil, zerr.Wrap(err, "failed to open remote report sink")
		}
		if err := objectstore.EnsureBucket(ctx, client, cfg.Remote.Bucket, cfg.Remote.Region); err != nil {
			return nil, nil, domain.Classify(domain.ErrPublishFailed, err)
		}
		return sink.NewObjectSink(client, cfg.Remote), nil, nil
	case domain.SinkPostgres:
		s, err := sink.OpenPostgresSink(cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case domain.SinkNone:
		return sink.NopSink{}, nil, nil
	default:
		return nil, nil, zerr.With(zerr.Wrap(domain.ErrUnknownBackend, "unknown report sink"), "kind", string(cfg.Kind))
	}
}

// NewBuilder returns the environment builder configured by cfg.
func NewBuilder(
	cfg *domain.PipelineConfig,
	exec ports.Executor,
	clock ports.Clock,
	resolver ports.DependencyResolver,
) (ports.EnvironmentBuilder, error) {
	envRoot := filepath.Join(cfg.Root, domain.DefaultEnvPath())
	switch cfg.Environment.Builder {
	case domain.BuilderShell:
		return shell.NewBuilder(exec, clock, cfg.Environment.Command, envRoot), nil
	case domain.BuilderNix:
		return nix.NewBuilder(resolver, exec, clock, cfg.Environment.Packages, envRoot), nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownBackend, "unknown environment builder"),
			"kind", string(cfg.Environment.Builder))
	}
}

// OpenBackends builds every configuration-selected collaborator of a run. With withSink
// unset the report sink is a no-op.
func OpenBackends(
	ctx context.Context,
	cfg *domain.PipelineConfig,
	exec ports.Executor,
	clock ports.Clock,
	parser ports.CoverageParser,
	withSink bool,
) (*Backends, error) {
	b := &Backends{
		Installer: shell.NewInstaller(exec, cfg.Install),
		Tests:     shell.NewTestRunner(exec, parser, cfg.Test, filepath.Join(cfg.Root, domain.DefaultCoveragePath())),
		Sink:      sink.NopSink{},
	}

	store, err := OpenStore(ctx, cfg.Cache.Store)
	if err != nil {
		return nil, err
	}
	b.Store = store

	resolver := nix.NewResolver(filepath.Join(cfg.Root, domain.DefaultNixHubCachePath()))
	if b.Builder, err = NewBuilder(cfg, exec, clock, resolver); err != nil {
		return nil, err
	}

	if withSink {
		s, closer, err := OpenSink(ctx, cfg.Report.Sink)
		if err != nil {
			return nil, err
		}
		b.Sink = s
		if closer != nil {
			b.closers = append(b.closers, closer)
		}
	}
	return b, nil
}
