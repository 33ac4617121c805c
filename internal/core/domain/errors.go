package domain

import (
	"errors"

	"go.trai.ch/zerr"
)

var (
	// ErrConfig is returned for configuration problems without a more specific error.
	ErrConfig = zerr.New("invalid configuration")

	// ErrConfigNotFound is returned when no configuration file exists at the requested location.
	ErrConfigNotFound = zerr.New("configuration file not found")

	// ErrConfigReadFailed is returned when the configuration file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read configuration file")

	// ErrConfigParseFailed is returned when the configuration document is not valid YAML or JSON.
	ErrConfigParseFailed = zerr.New("failed to parse configuration")

	// ErrSchemaViolation is returned when the configuration document does not satisfy the schema.
	ErrSchemaViolation = zerr.New("configuration does not match schema")

	// ErrEmptyMatrix is returned when a job class declares no axes.
	ErrEmptyMatrix = zerr.New("matrix declares no axes")

	// ErrEmptyAxis is returned when an axis has no name or no values.
	ErrEmptyAxis = zerr.New("axis must have a name and at least one value")

	// ErrDuplicateAxis is returned when two axes in a matrix share a name.
	ErrDuplicateAxis = zerr.New("duplicate axis name")

	// ErrDuplicateAxisValue is returned when an axis lists the same value twice.
	ErrDuplicateAxisValue = zerr.New("duplicate axis value")

	// ErrUnknownOverrideAxis is returned when an override row matches on an axis the matrix does not declare.
	ErrUnknownOverrideAxis = zerr.New("override matches unknown axis")

	// ErrDeadOverride is returned when an override row matches no cell of the matrix.
	ErrDeadOverride = zerr.New("override matches no matrix cell")

	// ErrShadowedAxis is returned when an override row sets a field named like an axis.
	ErrShadowedAxis = zerr.New("override field shadows an axis")

	// ErrUnknownJobClass is returned when a job class name is not recognized.
	ErrUnknownJobClass = zerr.New("unknown job class, expected 'mandatory' or 'best-effort'")

	// ErrNoJobClasses is returned when the selected job classes are not configured.
	ErrNoJobClasses = zerr.New("no configured job class selected")

	// ErrInvalidGeneration is returned when the cache generation is negative.
	ErrInvalidGeneration = zerr.New("cache generation must not be negative")

	// ErrInvalidConcurrency is returned when the concurrency limit is not positive.
	ErrInvalidConcurrency = zerr.New("concurrency must be at least 1")

	// ErrMissingCommand is returned when a step that requires a command has none.
	ErrMissingCommand = zerr.New("step command is empty")

	// ErrUnknownBackend is returned when a store, sink or builder kind is not recognized.
	ErrUnknownBackend = zerr.New("unknown backend kind")

	// ErrMissingCredentials is returned when a remote backend's credential variables are unset.
	ErrMissingCredentials = zerr.New("missing credentials for remote backend")

	// ErrMissingPlatformField is returned when a job has no value for the configured platform key.
	ErrMissingPlatformField = zerr.New("job has no value for the platform key")

	// ErrMissingRuntimeField is returned when a job has no value for the configured runtime key.
	ErrMissingRuntimeField = zerr.New("job has no value for the runtime key")

	// ErrFingerprintFailed is returned when the environment specification cannot be fingerprinted.
	ErrFingerprintFailed = zerr.New("failed to fingerprint environment specification")

	// ErrBuildFailed is returned when the environment build collaborator fails.
	ErrBuildFailed = zerr.New("environment build failed")

	// ErrInstallFailed is returned when the install collaborator fails.
	ErrInstallFailed = zerr.New("install failed")

	// ErrTestFailed is returned when a test invocation reports a failing run.
	ErrTestFailed = zerr.New("test run failed")

	// ErrTestRunnerFailed is returned when the test collaborator could not run at all.
	ErrTestRunnerFailed = zerr.New("test runner failed to execute")

	// ErrJobCancelled is returned when a job is interrupted by pipeline cancellation.
	ErrJobCancelled = zerr.New("job cancelled")

	// ErrStoreCreateFailed is returned when the cache store directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create cache store")

	// ErrStoreReadFailed is returned when a cache entry cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read cache entry")

	// ErrStoreWriteFailed is returned when a cache entry cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write cache entry")

	// ErrStoreCorrupt is returned when a cache entry fails its integrity check.
	ErrStoreCorrupt = zerr.New("cache entry failed integrity check")

	// ErrStoreKeyMismatch is returned when a stored entry carries a different key than requested.
	ErrStoreKeyMismatch = zerr.New("cache entry key mismatch")

	// ErrPublishFailed is returned when a report sink cannot publish a report.
	ErrPublishFailed = zerr.New("failed to publish report")

	// ErrCoverageSealed is returned when appending to a coverage report that has been merged.
	ErrCoverageSealed = zerr.New("coverage report is sealed")

	// ErrCoverageParseFailed is returned when a coverage file cannot be parsed.
	ErrCoverageParseFailed = zerr.New("failed to parse coverage file")

	// ErrUnknownCoverageFormat is returned when the configured coverage format is not recognized.
	ErrUnknownCoverageFormat = zerr.New("unknown coverage format")

	// ErrPipelineFailed is returned when at least one mandatory job did not succeed.
	ErrPipelineFailed = zerr.New("pipeline failed")

	// ErrCommandFailed is returned when an external command exits unsuccessfully.
	ErrCommandFailed = zerr.New("command failed")

	// ErrCommandNotFound is returned when an external command cannot be located.
	ErrCommandNotFound = zerr.New("command not found")

	// ErrNixNotInstalled is returned when the nix binary is not available.
	ErrNixNotInstalled = zerr.New("nix is not installed")

	// ErrNixResolveFailed is returned when a package version cannot be resolved through NixHub.
	ErrNixResolveFailed = zerr.New("failed to resolve nix package")

	// ErrNixPrintDevEnvFailed is returned when nix print-dev-env fails.
	ErrNixPrintDevEnvFailed = zerr.New("nix print-dev-env failed")

	// ErrInvalidPackageSpec is returned when a package is not written as name@version.
	ErrInvalidPackageSpec = zerr.New("invalid package spec, expected name@version")

	// ErrCleanFailed is returned when grid state cannot be removed.
	ErrCleanFailed = zerr.New("failed to clean grid state")
)

var configErrors = []error{
	ErrConfig,
	ErrConfigNotFound,
	ErrConfigReadFailed,
	ErrConfigParseFailed,
	ErrSchemaViolation,
	ErrEmptyMatrix,
	ErrEmptyAxis,
	ErrDuplicateAxis,
	ErrDuplicateAxisValue,
	ErrUnknownOverrideAxis,
	ErrDeadOverride,
	ErrShadowedAxis,
	ErrUnknownJobClass,
	ErrNoJobClasses,
	ErrInvalidGeneration,
	ErrInvalidConcurrency,
	ErrMissingCommand,
	ErrUnknownBackend,
	ErrUnknownCoverageFormat,
	ErrMissingCredentials,
	ErrMissingPlatformField,
	ErrMissingRuntimeField,
}

// IsConfigError reports whether err belongs to the configuration error family.
func IsConfigError(err error) bool {
	for _, target := range configErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Classify returns an error that matches both kind and err with errors.Is.
// It returns nil when err is nil and err unchanged when it already matches kind.
func Classify(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return errors.Join(kind, err)
}
