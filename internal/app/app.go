// Package app implements the application layer for grid.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/grid/internal/adapters/coverage"
	"go.trai.ch/grid/internal/adapters/detector"
	"go.trai.ch/grid/internal/adapters/linear"
	"go.trai.ch/grid/internal/adapters/shell"
	"go.trai.ch/grid/internal/adapters/telemetry"
	"go.trai.ch/grid/internal/adapters/tui"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/grid/internal/engine/pipeline"
	"go.trai.ch/grid/internal/ui/output"
	"go.trai.ch/grid/internal/ui/summary"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// App represents the main application logic.
type App struct {
	configLoader  ports.ConfigLoader
	logger        ports.Logger
	fingerprinter ports.Fingerprinter
	clock         ports.Clock
	tracer        *telemetry.OTelTracer

	stdout     io.Writer
	stderr     io.Writer
	teaOptions []tea.ProgramOption

	// executor replaces the shell executor when set.
	executor ports.Executor
	// backends replaces OpenBackends when set.
	backends func(ctx context.Context, cfg *domain.PipelineConfig, exec ports.Executor, withSink bool) (*Backends, error)
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	fingerprinter ports.Fingerprinter,
	clock ports.Clock,
	tracer *telemetry.OTelTracer,
) *App {
	return &App{
		configLoader:  loader,
		logger:        log,
		fingerprinter: fingerprinter,
		clock:         clock,
		tracer:        tracer,
		stdout:        os.Stdout,
		stderr:        os.Stderr,
	}
}

// WithOutput redirects progress and summary output.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	return a
}

// WithTeaOptions adds options to the interactive renderer's Bubble Tea program.
func (a *App) WithTeaOptions(opts ...tea.ProgramOption) *App {
	a.teaOptions = append(a.teaOptions, opts...)
	return a
}

// WithExecutor runs every collaborator command through exec.
func (a *App) WithExecutor(exec ports.Executor) *App {
	a.executor = exec
	return a
}

// WithBackends replaces the configuration-driven construction of collaborators.
func (a *App) WithBackends(
	fn func(ctx context.Context, cfg *domain.PipelineConfig, exec ports.Executor, withSink bool) (*Backends, error),
) *App {
	a.backends = fn
	return a
}

// RunOptions configures the Run method.
type RunOptions struct {
	ConfigPath string
	Classes    []string
	Jobs       int
	// Generation overrides the configured cache generation when set.
	Generation *int
	NoCache    bool
	OutputMode string
}

func (o RunOptions) pipelineOptions() (pipeline.Options, error) {
	opts := pipeline.Options{
		Concurrency: o.Jobs,
		Generation:  o.Generation,
		NoCache:     o.NoCache,
	}
	for _, name := range o.Classes {
		class, err := domain.ParseJobClass(name)
		if err != nil {
			return pipeline.Options{}, err
		}
		opts.Classes = append(opts.Classes, class)
	}
	return opts, nil
}

// Run loads the configuration, executes every selected job and prints the run summary.
// The error is nil only when the pipeline status is success.
func (a *App) Run(ctx context.Context, opts RunOptions) error {
	cfg, err := a.load(opts.ConfigPath)
	if err != nil {
		return err
	}
	pOpts, err := opts.pipelineOptions()
	if err != nil {
		return err
	}

	mode := detector.ResolveMode(detector.DetectEnvironment(), opts.OutputMode)
	profile := output.ColorProfileANSI
	exec := a.executor
	if mode == detector.ModeInteractive {
		profile = output.ColorProfile
		if exec == nil {
			exec = shell.NewExecutor(shell.WithPTY())
		}
	}
	if exec == nil {
		exec = shell.NewExecutor()
	}

	backends, err := a.openBackends(ctx, cfg, exec, true)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := backends.Close(); cerr != nil {
			a.logger.Warn("failed to close report sink: " + cerr.Error())
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var renderer ports.Renderer = linear.NewRendererWithProfile(a.stdout, a.stderr, profile)
	if mode == detector.ModeInteractive {
		model := tui.NewModel()
		model.Interrupt = cancel
		opts := append([]tea.ProgramOption{
			tea.WithOutput(a.stderr),
			tea.WithAltScreen(),
			tea.WithoutSignalHandler(),
		}, a.teaOptions...)
		renderer = tui.NewRenderer(&model, opts...)
	}
	tp := setupOTel(telemetry.NewBridge(renderer))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := a.tracer.WithProvider(tp).WithRenderer(renderer)

	ctl := pipeline.NewController(pipeline.Collaborators{
		Builder:       backends.Builder,
		Store:         backends.Store,
		Installer:     backends.Installer,
		Tests:         backends.Tests,
		Sink:          backends.Sink,
		Fingerprinter: a.fingerprinter,
		Tracer:        tracer,
		Clock:         a.clock,
		Logger:        a.logger,
	})

	var (
		result *domain.PipelineResult
		runErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := renderer.Start(gctx); err != nil {
			return err
		}
		return renderer.Wait()
	})
	g.Go(func() error {
		defer func() { _ = renderer.Stop() }()
		result, runErr = ctl.Run(ctx, cfg, pOpts)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if result != nil {
		if err := summary.Write(a.stdout, result, profile()); err != nil {
			return zerr.Wrap(err, "failed to write run summary")
		}
	}
	return runErr
}

// Plan expands the matrix and prints every job with its cache key and store state.
// Nothing is built or run.
func (a *App) Plan(ctx context.Context, opts RunOptions) error {
	cfg, err := a.load(opts.ConfigPath)
	if err != nil {
		return err
	}
	pOpts, err := opts.pipelineOptions()
	if err != nil {
		return err
	}

	exec := a.executor
	if exec == nil {
		exec = shell.NewExecutor()
	}
	backends, err := a.openBackends(ctx, cfg, exec, false)
	if err != nil {
		return err
	}

	ctl := pipeline.NewController(pipeline.Collaborators{
		Builder:       backends.Builder,
		Store:         backends.Store,
		Installer:     backends.Installer,
		Tests:         backends.Tests,
		Sink:          backends.Sink,
		Fingerprinter: a.fingerprinter,
		Tracer:        a.tracer,
		Clock:         a.clock,
		Logger:        a.logger,
	})
	plan, err := ctl.Plan(cfg, pOpts)
	if err != nil {
		return err
	}

	rows := make([]summary.PlanRow, len(plan.Jobs))
	for i, j := range plan.Jobs {
		rows[i] = summary.PlanRow{
			ID:     j.Job.Spec.ID(),
			Class:  j.Job.Class,
			Modes:  j.Job.Modes,
			Key:    j.Key,
			Cached: !opts.NoCache && plan.Cached(ctx, j),
		}
	}
	return summary.WritePlan(a.stdout, rows, plan.Concurrency, termenv.Ascii)
}

// CleanOptions selects what Clean removes.
type CleanOptions struct {
	ConfigPath string
	// Cache removes the local cache store and built environments.
	Cache bool
	// Reports removes the local report directory.
	Reports bool
	// Tools removes the NixHub resolution cache.
	Tools bool
}

// Clean removes local grid state of the configured project.
func (a *App) Clean(_ context.Context, opts CleanOptions) error {
	cfg, err := a.load(opts.ConfigPath)
	if err != nil {
		return err
	}

	var errs []error
	remove := func(path, name string) {
		a.logger.Info(fmt.Sprintf("removing %s...", name))
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, zerr.With(zerr.Wrap(domain.ErrCleanFailed, "failed to remove "+name), "path", path))
			return
		}
		a.logger.Info(fmt.Sprintf("removed %s", name))
	}

	if opts.Cache {
		if cfg.Cache.Store.Kind == domain.StoreFS {
			remove(cfg.Cache.Store.Path, "cache store")
		}
		remove(filepath.Join(cfg.Root, domain.DefaultEnvPath()), "built environments")
		remove(filepath.Join(cfg.Root, domain.DefaultCoveragePath()), "coverage scratch directory")
	}
	if opts.Reports && cfg.Report.Sink.Kind == domain.SinkFile {
		remove(cfg.Report.Sink.Path, "report directory")
	}
	if opts.Tools {
		remove(filepath.Join(cfg.Root, domain.DefaultNixHubCachePath()), "nix resolution cache")
	}
	return errors.Join(errs...)
}

func (a *App) load(path string) (*domain.PipelineConfig, error) {
	if path == "" {
		path = "."
	}
	cfg, err := a.configLoader.Load(path)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return cfg, nil
}

func (a *App) openBackends(
	ctx context.Context,
	cfg *domain.PipelineConfig,
	exec ports.Executor,
	withSink bool,
) (*Backends, error) {
	if a.backends != nil {
		return a.backends(ctx, cfg, exec, withSink)
	}
	return OpenBackends(ctx, cfg, exec, a.clock, coverage.NewParser(), withSink)
}

// setupOTel configures the OpenTelemetry SDK with the renderer bridge.
func setupOTel(bridge *telemetry.Bridge) *sdktrace.TracerProvider {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(bridge),
	)
	otel.SetTracerProvider(tp)
	return tp
}
