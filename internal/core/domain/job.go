package domain

import (
	"time"

	"go.trai.ch/zerr"
)

// JobClass groups jobs that share a failure policy.
type JobClass string

const (
	// ClassMandatory jobs must all succeed for the pipeline to succeed.
	ClassMandatory JobClass = "mandatory"
	// ClassBestEffort job failures are recorded as warnings only.
	ClassBestEffort JobClass = "best-effort"
)

// JobClasses returns every job class in dispatch order.
func JobClasses() []JobClass {
	return []JobClass{ClassMandatory, ClassBestEffort}
}

// ParseJobClass validates a job class name.
func ParseJobClass(s string) (JobClass, error) {
	switch c := JobClass(s); c {
	case ClassMandatory, ClassBestEffort:
		return c, nil
	default:
		return "", zerr.With(zerr.Wrap(ErrUnknownJobClass, "cannot select job class"), "class", s)
	}
}

// JobState is a state of the per-job state machine.
type JobState string

const (
	StatePending      JobState = "pending"
	StateProvisioning JobState = "provisioning"
	StateInstalling   JobState = "installing"
	StateTesting      JobState = "testing"
	StateReporting    JobState = "reporting"
	StateSucceeded    JobState = "succeeded"
	StateFailed       JobState = "failed"
	StateSkipped      JobState = "skipped"
)

// Terminal reports whether the state ends the job.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateSkipped
}

// JobStatus is the final status of a job.
type JobStatus string

const (
	JobSuccess JobStatus = "success"
	JobFailure JobStatus = "failure"
	JobSkipped JobStatus = "skipped"
)

// Status maps a terminal state to its job status.
func (s JobState) Status() JobStatus {
	switch s {
	case StateSucceeded:
		return JobSuccess
	case StateSkipped:
		return JobSkipped
	default:
		return JobFailure
	}
}

// StepName names one step of a job.
type StepName string

const (
	StepProvision StepName = "provision"
	StepInstall   StepName = "install"
	StepTest      StepName = "test"
	StepReport    StepName = "report"
)

// StepStatus is the result of one step.
type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// TestMode names one test invocation within a job, such as "default" or "network".
type TestMode string

// DefaultTestMode is used when a job class configures no modes.
const DefaultTestMode TestMode = "default"

// StepOutcome records how one step ended.
type StepOutcome struct {
	Step     StepName
	Mode     TestMode
	Status   StepStatus
	Err      error
	Started  time.Time
	Finished time.Time
}

// Label returns the step name, qualified with the test mode for test steps.
func (s StepOutcome) Label() string {
	if s.Mode != "" {
		return string(s.Step) + "[" + string(s.Mode) + "]"
	}
	return string(s.Step)
}

// Duration returns how long the step ran.
func (s StepOutcome) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Job is one unit of work dispatched by the pipeline.
type Job struct {
	Spec  JobSpec
	Class JobClass
	Modes []TestMode
}

// ID identifies the job within a run. The same JobSpec may be dispatched once per class.
func (j Job) ID() string {
	return string(j.Class) + "/" + j.Spec.ID()
}

// TestRun is what the test collaborator reports for one invocation.
type TestRun struct {
	Passed   bool
	Coverage *CoverageReport
}

// JobOutcome is the result of running one job.
type JobOutcome struct {
	Spec     JobSpec
	Class    JobClass
	Status   JobStatus
	Steps    []StepOutcome
	Coverage *CoverageReport
	CacheKey CacheKey
	Rebuilt  bool
	Reported bool
}

// FailedStep returns the first step that failed.
func (o JobOutcome) FailedStep() (StepOutcome, bool) {
	for _, s := range o.Steps {
		if s.Status == StepFailed {
			return s, true
		}
	}
	return StepOutcome{}, false
}

// Err returns an error describing why the job did not succeed, or nil.
func (o JobOutcome) Err() error {
	switch o.Status {
	case JobSuccess:
		return nil
	case JobSkipped:
		return zerr.With(zerr.Wrap(ErrJobCancelled, "job did not finish"), "job", o.Spec.ID())
	}
	step, ok := o.FailedStep()
	if !ok || step.Err == nil {
		return zerr.With(zerr.Wrap(ErrPipelineFailed, "job failed"), "job", o.Spec.ID())
	}
	return zerr.With(zerr.With(step.Err, "job", o.Spec.ID()), "step", step.Label())
}
