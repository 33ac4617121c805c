// Package pipeline expands job classes and runs their jobs under a concurrency limit.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/grid/internal/engine/coverage"
	"go.trai.ch/grid/internal/engine/matrix"
	"go.trai.ch/grid/internal/engine/provision"
	"go.trai.ch/grid/internal/engine/reporter"
	"go.trai.ch/grid/internal/engine/runner"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Collaborators are the ports a pipeline run drives.
type Collaborators struct {
	Builder       ports.EnvironmentBuilder
	Store         ports.CacheStore
	Installer     ports.Installer
	Tests         ports.TestRunner
	Sink          ports.ReportSink
	Fingerprinter ports.Fingerprinter
	Tracer        ports.Tracer
	Clock         ports.Clock
	Logger        ports.Logger
}

// Options selects what a run executes.
type Options struct {
	// Classes restricts the run to these classes. Empty selects every configured class.
	Classes []domain.JobClass
	// Concurrency overrides the configured job limit when positive.
	Concurrency int
	// Generation overrides the configured cache generation when set.
	Generation *int
	NoCache    bool
}

// PlannedJob is a job with its resolved cache key.
type PlannedJob struct {
	Job domain.Job
	Key domain.CacheKey
}

// Plan is the fully expanded set of jobs of a run.
type Plan struct {
	Jobs        []PlannedJob
	Concurrency int
	provisioner *provision.Provisioner
}

// IDs returns the class-qualified job identifiers in dispatch order.
func (p *Plan) IDs() []string {
	ids := make([]string, len(p.Jobs))
	for i, j := range p.Jobs {
		ids[i] = j.Job.ID()
	}
	return ids
}

// Cached reports whether the cache store currently holds the environment of job.
func (p *Plan) Cached(ctx context.Context, job PlannedJob) bool {
	_, ok := p.provisioner.Lookup(ctx, job.Key)
	return ok
}

// Controller runs pipelines.
type Controller struct {
	c Collaborators

	mu     sync.RWMutex
	states map[string]domain.JobState
}

// NewController creates a Controller.
func NewController(c Collaborators) *Controller {
	return &Controller{
		c:      c,
		states: make(map[string]domain.JobState),
	}
}

// States returns a snapshot of the current state of every job of the active run, keyed
// by domain.Job.ID.
func (ctl *Controller) States() map[string]domain.JobState {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	out := make(map[string]domain.JobState, len(ctl.states))
	for k, v := range ctl.states {
		out[k] = v
	}
	return out
}

func (ctl *Controller) setState(job domain.Job, state domain.JobState) {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	ctl.states[job.ID()] = state
}

// Plan expands every selected class and derives the cache key of every job.
// Nothing is built or run.
func (ctl *Controller) Plan(cfg *domain.PipelineConfig, opts Options) (*Plan, error) {
	classes, err := selectClasses(cfg, opts.Classes)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.Concurrency
	if opts.Concurrency != 0 {
		concurrency = opts.Concurrency
	}
	if concurrency < 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidConcurrency, "concurrency must not be negative"),
			"concurrency", concurrency)
	}
	if concurrency == 0 {
		concurrency = runtime.NumCPU()
	}

	generation := cfg.Cache.Generation
	if opts.Generation != nil {
		generation = *opts.Generation
	}
	if generation < 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidGeneration, "cache generation must not be negative"),
			"generation", generation)
	}

	fingerprint, err := ctl.c.Fingerprinter.Fingerprint(cfg.Root, cfg.Environment.Spec)
	if err != nil {
		return nil, domain.Classify(domain.ErrFingerprintFailed, err)
	}

	prov := provision.New(ctl.c.Builder, ctl.c.Store, ctl.c.Clock, ctl.c.Logger, provision.Options{
		Keys:        cfg.Keys,
		Fingerprint: fingerprint,
		Generation:  generation,
		NoCache:     opts.NoCache,
	})

	plan := &Plan{Concurrency: concurrency, provisioner: prov}
	for _, class := range classes {
		cc := cfg.Classes[class]
		specs, err := matrix.Expand(cc.Matrix)
		if err != nil {
			return nil, zerr.With(err, "class", string(class))
		}
		for _, spec := range specs {
			key, err := prov.Key(spec)
			if err != nil {
				return nil, zerr.With(err, "class", string(class))
			}
			plan.Jobs = append(plan.Jobs, PlannedJob{
				Job: domain.Job{Spec: spec, Class: class, Modes: cc.TestModes()},
				Key: key,
			})
		}
	}
	return plan, nil
}

// Run executes every job of the selected classes and returns the pipeline result.
//
// Configuration errors abort the run before any job starts. Job failures never stop other
// jobs. The returned error is non-nil when a mandatory job did not succeed and names each
// such job with its failing step. Best-effort failures are logged as warnings.
func (ctl *Controller) Run(ctx context.Context, cfg *domain.PipelineConfig, opts Options) (*domain.PipelineResult, error) {
	plan, err := ctl.Plan(cfg, opts)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	rep := reporter.New(ctl.c.Sink, ctl.c.Clock, ctl.c.Logger, runID)
	jobRunner := runner.New(plan.provisioner, ctl.c.Installer, ctl.c.Tests, rep, ctl.c.Tracer, ctl.c.Clock,
		runner.WithObserver(ctl.setState),
	)

	ctl.mu.Lock()
	ctl.states = make(map[string]domain.JobState, len(plan.Jobs))
	for _, j := range plan.Jobs {
		ctl.states[j.Job.ID()] = domain.StatePending
	}
	ctl.mu.Unlock()

	ctl.c.Tracer.EmitPlan(ctx, plan.IDs())

	agg := coverage.NewAggregator()
	outcomes := make([]domain.JobOutcome, len(plan.Jobs))

	// A plain group: one failing job must not cancel the others.
	var g errgroup.Group
	g.SetLimit(plan.Concurrency)
	for i, j := range plan.Jobs {
		g.Go(func() error {
			o := jobRunner.Run(ctx, j.Job)
			if o.Status != domain.JobSkipped {
				agg.Add(o.Coverage)
			}
			outcomes[i] = o
			return nil
		})
	}
	_ = g.Wait()

	result := &domain.PipelineResult{
		RunID:    runID,
		Outcomes: make(map[domain.JobClass][]domain.JobOutcome),
		Coverage: agg.Result(),
	}
	for _, o := range outcomes {
		result.Outcomes[o.Class] = append(result.Outcomes[o.Class], o)
	}
	result.Status = domain.ComputeStatus(result.Outcomes)

	if ctx.Err() == nil {
		rep.ReportPipeline(ctx, result)
	}

	for _, o := range result.Failures(domain.ClassBestEffort) {
		ctl.c.Logger.Warn("best-effort job did not succeed: " + o.Err().Error())
	}

	return result, pipelineError(result)
}

// pipelineError joins the errors of every mandatory job that did not succeed.
func pipelineError(result *domain.PipelineResult) error {
	if result.Status == domain.PipelineSuccess {
		return nil
	}
	failed := result.Failures(domain.ClassMandatory)
	errs := make([]error, 0, len(failed)+1)
	errs = append(errs, zerr.With(zerr.Wrap(domain.ErrPipelineFailed,
		fmt.Sprintf("%d of %d mandatory jobs did not succeed", len(failed), len(result.Outcomes[domain.ClassMandatory]))),
		"run", result.RunID))
	for _, o := range failed {
		errs = append(errs, o.Err())
	}
	return errors.Join(errs...)
}

// selectClasses returns the requested classes in dispatch order.
func selectClasses(cfg *domain.PipelineConfig, requested []domain.JobClass) ([]domain.JobClass, error) {
	if len(cfg.Classes) == 0 {
		return nil, zerr.Wrap(domain.ErrNoJobClasses, "configuration defines no job classes")
	}

	var classes []domain.JobClass
	for _, class := range domain.JobClasses() {
		if _, ok := cfg.Classes[class]; !ok {
			if slices.Contains(requested, class) {
				return nil, zerr.With(zerr.Wrap(domain.ErrUnknownJobClass, "job class is not configured"),
					"class", string(class))
			}
			continue
		}
		if len(requested) == 0 || slices.Contains(requested, class) {
			classes = append(classes, class)
		}
	}
	for _, class := range requested {
		if !slices.Contains(domain.JobClasses(), class) {
			return nil, zerr.With(zerr.Wrap(domain.ErrUnknownJobClass, "cannot select job class"),
				"class", string(class))
		}
	}
	return classes, nil
}
