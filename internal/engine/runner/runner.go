// Package runner executes the step sequence of a single job.
package runner

import (
	"context"
	"io"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/grid/internal/engine/provision"
	"go.trai.ch/zerr"
)

// Provisioner materializes the environment of a job.
type Provisioner interface {
	Provision(ctx context.Context, job domain.JobSpec, out io.Writer) (provision.Result, error)
}

// Reporter publishes the coverage of a finished job.
type Reporter interface {
	Report(ctx context.Context, outcome domain.JobOutcome) bool
}

// Observer is notified of every state a job enters.
type Observer func(job domain.Job, state domain.JobState)

// Runner drives one job through provision, install, test and report.
// Steps run strictly in sequence.
type Runner struct {
	provisioner Provisioner
	installer   ports.Installer
	tests       ports.TestRunner
	reporter    Reporter
	tracer      ports.Tracer
	clock       ports.Clock
	observer    Observer
}

// Option configures a Runner.
type Option func(*Runner)

// WithObserver registers a callback for state transitions.
func WithObserver(o Observer) Option {
	return func(r *Runner) {
		r.observer = o
	}
}

// New creates a Runner.
func New(
	provisioner Provisioner,
	installer ports.Installer,
	tests ports.TestRunner,
	reporter Reporter,
	tracer ports.Tracer,
	clock ports.Clock,
	opts ...Option,
) *Runner {
	r := &Runner{
		provisioner: provisioner,
		installer:   installer,
		tests:       tests,
		reporter:    reporter,
		tracer:      tracer,
		clock:       clock,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// jobRun is the mutable state of one Run call.
type jobRun struct {
	r        *Runner
	job      domain.Job
	span     ports.Span
	outcome  domain.JobOutcome
	coverage *domain.CoverageReport
	failed   bool
}

// Run executes job and returns its outcome.
//
// A failed provision or install skips testing. Every configured test mode runs even when
// an earlier one fails, and coverage from all of them accumulates. The report step runs
// for any job that is not cancelled and has tested or captured coverage. Cancellation
// resolves the job to skipped without reporting.
func (r *Runner) Run(ctx context.Context, job domain.Job) domain.JobOutcome {
	ctx, span := r.tracer.Start(ctx, job.ID(),
		ports.WithAttribute("grid.class", string(job.Class)),
	)
	defer span.End()

	run := &jobRun{
		r:    r,
		job:  job,
		span: span,
		outcome: domain.JobOutcome{
			Spec:  job.Spec,
			Class: job.Class,
		},
		coverage: domain.NewCoverageReport(),
	}
	r.notify(job, domain.StatePending)

	if ctx.Err() != nil {
		return run.skip(domain.StepProvision, "")
	}

	snapshot, ok := run.provision(ctx)
	if !ok {
		if ctx.Err() != nil {
			return run.skip(domain.StepProvision, "")
		}
		run.skipAfter(domain.StepProvision)
		return run.finish(ctx, false)
	}

	if !run.install(ctx, snapshot) {
		if ctx.Err() != nil {
			return run.skip(domain.StepInstall, "")
		}
		run.skipAfter(domain.StepInstall)
		return run.finish(ctx, false)
	}

	run.transition(domain.StateTesting)
	for _, mode := range job.Modes {
		if ctx.Err() != nil {
			return run.skip(domain.StepTest, mode)
		}
		run.test(ctx, snapshot, mode)
		if ctx.Err() != nil {
			return run.skip(domain.StepTest, mode)
		}
	}

	return run.finish(ctx, true)
}

func (r *Runner) notify(job domain.Job, state domain.JobState) {
	if r.observer != nil {
		r.observer(job, state)
	}
}

func (run *jobRun) transition(state domain.JobState) {
	run.span.SetAttribute("grid.state", string(state))
	run.r.notify(run.job, state)
}

func (run *jobRun) record(step domain.StepName, mode domain.TestMode, started domain.StepOutcome, err error) {
	started.Step = step
	started.Mode = mode
	started.Finished = run.r.clock.Now()
	if err != nil {
		started.Status = domain.StepFailed
		started.Err = err
		run.failed = true
		run.span.RecordError(err)
	} else {
		started.Status = domain.StepPassed
	}
	run.outcome.Steps = append(run.outcome.Steps, started)
}

func (run *jobRun) begin() domain.StepOutcome {
	return domain.StepOutcome{Started: run.r.clock.Now()}
}

func (run *jobRun) provision(ctx context.Context) (domain.Snapshot, bool) {
	run.transition(domain.StateProvisioning)
	step := run.begin()

	res, err := run.r.provisioner.Provision(ctx, run.job.Spec, run.span)
	run.outcome.CacheKey = res.Key
	run.outcome.Rebuilt = res.Rebuilt
	if err != nil {
		if ctx.Err() == nil {
			run.record(domain.StepProvision, "", step, err)
		}
		return domain.Snapshot{}, false
	}

	run.span.SetAttribute("grid.cache_key", res.Key.String())
	run.span.SetAttribute("grid.rebuilt", res.Rebuilt)
	run.record(domain.StepProvision, "", step, nil)
	return res.Snapshot, true
}

func (run *jobRun) install(ctx context.Context, snapshot domain.Snapshot) bool {
	run.transition(domain.StateInstalling)
	step := run.begin()

	err := run.r.installer.Install(ctx, run.job.Spec, snapshot, run.span)
	if err != nil {
		if ctx.Err() == nil {
			run.record(domain.StepInstall, "", step, domain.Classify(domain.ErrInstallFailed, err))
		}
		return false
	}
	run.record(domain.StepInstall, "", step, nil)
	return true
}

func (run *jobRun) test(ctx context.Context, snapshot domain.Snapshot, mode domain.TestMode) {
	step := run.begin()

	res, err := run.r.tests.Run(ctx, run.job.Spec, snapshot, mode, run.span)
	if res.Coverage != nil {
		// The accumulator is never sealed while the job runs.
		_ = run.coverage.Append(res.Coverage)
	}
	if ctx.Err() != nil {
		return
	}

	switch {
	case err != nil:
		err = zerr.With(domain.Classify(domain.ErrTestRunnerFailed, err), "mode", string(mode))
	case !res.Passed:
		err = zerr.With(zerr.Wrap(domain.ErrTestFailed, "test suite reported failures"), "mode", string(mode))
	}
	run.record(domain.StepTest, mode, step, err)
}

// skipAfter records the steps that never ran because failed did not succeed.
func (run *jobRun) skipAfter(failed domain.StepName) {
	var rest []domain.StepName
	switch failed {
	case domain.StepProvision:
		rest = []domain.StepName{domain.StepInstall, domain.StepTest}
	case domain.StepInstall:
		rest = []domain.StepName{domain.StepTest}
	}

	now := run.r.clock.Now()
	for _, s := range rest {
		run.outcome.Steps = append(run.outcome.Steps, domain.StepOutcome{
			Step:     s,
			Status:   domain.StepSkipped,
			Started:  now,
			Finished: now,
		})
	}
}

// finish runs the report step when there is something to report and resolves the job.
func (run *jobRun) finish(ctx context.Context, tested bool) domain.JobOutcome {
	terminal := domain.StateSucceeded
	if run.failed {
		terminal = domain.StateFailed
	}

	run.outcome.Coverage = run.coverage
	run.outcome.Status = terminal.Status()

	if tested || !run.coverage.IsEmpty() {
		if ctx.Err() != nil {
			return run.skip(domain.StepReport, "")
		}
		run.transition(domain.StateReporting)
		step := run.begin()
		run.outcome.Reported = run.r.reporter.Report(ctx, run.outcome)

		step.Step = domain.StepReport
		step.Finished = run.r.clock.Now()
		step.Status = domain.StepPassed
		if !run.outcome.Reported {
			step.Status = domain.StepFailed
			step.Err = zerr.Wrap(domain.ErrPublishFailed, "coverage report not published")
		}
		run.outcome.Steps = append(run.outcome.Steps, step)
	}

	run.transition(terminal)
	run.span.SetAttribute("grid.status", string(run.outcome.Status))
	return run.outcome
}

// skip resolves the job as cancelled. The interrupted step is recorded as skipped and
// nothing is reported.
func (run *jobRun) skip(step domain.StepName, mode domain.TestMode) domain.JobOutcome {
	now := run.r.clock.Now()
	run.outcome.Steps = append(run.outcome.Steps, domain.StepOutcome{
		Step:     step,
		Mode:     mode,
		Status:   domain.StepSkipped,
		Err:      zerr.Wrap(domain.ErrJobCancelled, "pipeline cancelled"),
		Started:  now,
		Finished: now,
	})
	run.outcome.Coverage = run.coverage
	run.outcome.Status = domain.JobSkipped
	run.outcome.Reported = false
	run.transition(domain.StateSkipped)
	run.span.SetAttribute("grid.status", string(domain.JobSkipped))
	return run.outcome
}
