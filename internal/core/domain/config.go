package domain

import (
	"strings"
	"time"
)

// StoreKind selects the cache store backend.
type StoreKind string

const (
	StoreFS   StoreKind = "fs"
	StoreS3   StoreKind = "s3"
	StoreNone StoreKind = "none"
)

// SinkKind selects the report sink backend.
type SinkKind string

const (
	SinkFile     SinkKind = "file"
	SinkS3       SinkKind = "s3"
	SinkPostgres SinkKind = "postgres"
	SinkNone     SinkKind = "none"
)

// BuilderKind selects the environment builder backend.
type BuilderKind string

const (
	BuilderShell BuilderKind = "shell"
	BuilderNix   BuilderKind = "nix"
)

// Compression selects how the filesystem store compresses entries.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
	CompressionNone Compression = "none"
)

// CoverageFormat selects the coverage file parser.
type CoverageFormat string

const (
	CoverageLCOV    CoverageFormat = "lcov"
	CoverageGoCover CoverageFormat = "gocover"
)

// Command is an external command run by a collaborator.
type Command struct {
	Args    []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
}

// IsZero reports whether the command has no arguments.
func (c Command) IsZero() bool {
	return len(c.Args) == 0
}

// KeyConfig names the job values the cache key is derived from.
type KeyConfig struct {
	// Platform is the axis holding the platform.
	Platform string
	// Label is an optional override field that replaces the platform value in the key.
	Label string
	// Runtime is the axis holding the runtime version.
	Runtime string
}

// RemoteConfig locates an S3-compatible bucket.
type RemoteConfig struct {
	Endpoint     string
	Bucket       string
	Prefix       string
	Region       string
	Secure       bool
	AccessKeyEnv string
	SecretKeyEnv string
}

// StoreConfig configures the cache store.
type StoreConfig struct {
	Kind        StoreKind
	Path        string
	Compression Compression
	Remote      RemoteConfig
}

// CacheConfig configures environment caching.
type CacheConfig struct {
	Generation int
	Store      StoreConfig
}

// EnvironmentConfig configures the environment build collaborator.
type EnvironmentConfig struct {
	Builder BuilderKind
	// Spec lists the files whose content defines the environment. Their fingerprint is
	// part of the cache key.
	Spec []string
	// Command builds the environment for the shell builder.
	Command Command
	// Packages lists name@version packages for the nix builder. Entries may reference job
	// values as ${name}.
	Packages []string
}

// CoverageConfig describes the coverage file a test invocation writes.
type CoverageConfig struct {
	// Path is the file name inside the directory assigned to each test invocation.
	Path   string
	Format CoverageFormat
}

// TestConfig configures the test collaborator.
type TestConfig struct {
	Command  Command
	Coverage CoverageConfig
}

// SinkConfig configures the report sink.
type SinkConfig struct {
	Kind   SinkKind
	Path   string
	Remote RemoteConfig
	DSNEnv string
	Table  string
}

// ClassConfig configures one job class. Classes are configured independently, so a
// best-effort class may cover a smaller matrix than the mandatory one.
type ClassConfig struct {
	Matrix Matrix
	Modes  []TestMode
}

// TestModes returns the configured modes, or the default mode when none are set.
func (c ClassConfig) TestModes() []TestMode {
	if len(c.Modes) == 0 {
		return []TestMode{DefaultTestMode}
	}
	return c.Modes
}

// PipelineConfig is the loaded configuration of a pipeline. It is passed explicitly to
// every component that needs it.
type PipelineConfig struct {
	// Root is the directory relative paths are resolved against.
	Root string
	// Source is the configuration file the pipeline was loaded from.
	Source string
	// Digest identifies the configuration content.
	Digest      string
	Concurrency int
	Keys        KeyConfig
	Cache       CacheConfig
	Environment EnvironmentConfig
	Install     Command
	Test        TestConfig
	Report      ReportConfig
	Classes     map[JobClass]ClassConfig
}

// ReportConfig configures publication of coverage reports.
type ReportConfig struct {
	Sink SinkConfig
}

// ExpandTemplate replaces ${name} references with job values.
func ExpandTemplate(s string, job JobSpec) string {
	return ExpandTemplateFunc(s, job.Lookup)
}

// ExpandTemplateFunc replaces every ${name} reference that lookup resolves. Unresolved
// references, bare $name and unterminated ${ are left as written so shell variables in
// command arguments reach the shell intact.
func ExpandTemplateFunc(s string, lookup func(name string) (string, bool)) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			break
		}
		end := strings.IndexByte(s[start+2:], '}')
		if end < 0 {
			break
		}
		end += start + 2
		b.WriteString(s[:start])
		if v, ok := lookup(s[start+2 : end]); ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
	b.WriteString(s)
	return b.String()
}
