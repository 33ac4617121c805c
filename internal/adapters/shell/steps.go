package shell

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/zerr"
)

// Variables exported to every command in addition to the job's GRID_<AXIS> values.
const (
	EnvDirVar       = "GRID_ENV_DIR"
	EnvFileVar      = "GRID_ENV_FILE"
	CacheKeyVar     = "GRID_CACHE_KEY"
	TestModeVar     = "GRID_TEST_MODE"
	CoverageDirVar  = "GRID_COVERAGE_DIR"
	CoverageFileVar = "GRID_COVERAGE_FILE"
)

// Builder implements ports.EnvironmentBuilder by running the configured environment
// command. The command receives GRID_ENV_DIR, a directory owned by the cache key, and may
// write KEY=VALUE lines to GRID_ENV_FILE to describe how the environment is activated.
// When GRID_ENV_DIR/bin exists it is prepended to PATH.
type Builder struct {
	exec    ports.Executor
	clock   ports.Clock
	command domain.Command
	envRoot string
}

// NewBuilder creates a Builder that places environments below envRoot.
func NewBuilder(exec ports.Executor, clock ports.Clock, command domain.Command, envRoot string) *Builder {
	return &Builder{exec: exec, clock: clock, command: command, envRoot: envRoot}
}

// Build implements ports.EnvironmentBuilder.
func (b *Builder) Build(ctx context.Context, job domain.JobSpec, key domain.CacheKey, out io.Writer) (domain.Snapshot, error) {
	id := snapshotID(key)
	dir := filepath.Join(b.envRoot, id)
	if err := os.RemoveAll(dir); err != nil {
		return domain.Snapshot{}, zerr.With(zerr.Wrap(err, "failed to reset environment directory"), "path", dir)
	}
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return domain.Snapshot{}, zerr.With(zerr.Wrap(err, "failed to create environment directory"), "path", dir)
	}
	envFile := filepath.Join(dir, ".grid-env")

	env := append(job.Env(),
		EnvDirVar+"="+dir,
		EnvFileVar+"="+envFile,
		CacheKeyVar+"="+key.String(),
	)
	if err := b.exec.Execute(ctx, expand(b.command, job), env, out, out); err != nil {
		return domain.Snapshot{}, err
	}

	activation, err := readEnvFile(envFile)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if info, err := os.Stat(filepath.Join(dir, "bin")); err == nil && info.IsDir() {
		activation = append([]string{"PATH=" + filepath.Join(dir, "bin")}, activation...)
	}

	return domain.Snapshot{
		ID:        id,
		Builder:   string(domain.BuilderShell),
		Root:      dir,
		Env:       activation,
		CreatedAt: b.clock.Now(),
	}, nil
}

// Installer implements ports.Installer with the configured install command. An empty
// command installs nothing.
type Installer struct {
	exec    ports.Executor
	command domain.Command
}

// NewInstaller creates an Installer.
func NewInstaller(exec ports.Executor, command domain.Command) *Installer {
	return &Installer{exec: exec, command: command}
}

// Install implements ports.Installer.
func (i *Installer) Install(ctx context.Context, job domain.JobSpec, snapshot domain.Snapshot, out io.Writer) error {
	if i.command.IsZero() {
		return nil
	}
	return i.exec.Execute(ctx, expand(i.command, job), jobEnv(job, snapshot), out, out)
}

// TestRunner implements ports.TestRunner with the configured test command. A non-zero
// exit marks the run failed.
//
// Every invocation gets a fresh directory below coverageRoot, exported as
// GRID_COVERAGE_DIR, and writes its coverage to GRID_COVERAGE_FILE inside it. The file is
// read after every run, whatever the outcome, and the directory is removed afterwards.
// Both variables and GRID_TEST_MODE may also be referenced as ${name} in the command.
type TestRunner struct {
	exec         ports.Executor
	parser       ports.CoverageParser
	command      domain.Command
	coverage     domain.CoverageConfig
	coverageRoot string
}

// NewTestRunner creates a TestRunner that places coverage directories below coverageRoot.
func NewTestRunner(exec ports.Executor, parser ports.CoverageParser, cfg domain.TestConfig, coverageRoot string) *TestRunner {
	return &TestRunner{
		exec:         exec,
		parser:       parser,
		command:      cfg.Command,
		coverage:     cfg.Coverage,
		coverageRoot: coverageRoot,
	}
}

// Run implements ports.TestRunner.
func (r *TestRunner) Run(
	ctx context.Context,
	job domain.JobSpec,
	snapshot domain.Snapshot,
	mode domain.TestMode,
	out io.Writer,
) (domain.TestRun, error) {
	dir, err := r.invocationDir(job, mode)
	if err != nil {
		return domain.TestRun{}, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	covPath := filepath.Join(dir, r.coverage.Path)
	if err := os.MkdirAll(filepath.Dir(covPath), domain.DirPerm); err != nil {
		return domain.TestRun{}, zerr.With(zerr.Wrap(err, "failed to create coverage directory"), "path", covPath)
	}

	vars := map[string]string{
		TestModeVar:     string(mode),
		CoverageDirVar:  dir,
		CoverageFileVar: covPath,
	}
	env := jobEnv(job, snapshot)
	for _, name := range []string{TestModeVar, CoverageDirVar, CoverageFileVar} {
		env = append(env, name+"="+vars[name])
	}
	cmd := expandWith(r.command, func(name string) (string, bool) {
		if v, ok := vars[name]; ok {
			return v, true
		}
		return job.Lookup(name)
	})
	execErr := r.exec.Execute(ctx, cmd, env, out, out)

	report, parseErr := r.parser.Parse(covPath, r.coverage.Format)
	run := domain.TestRun{Passed: execErr == nil, Coverage: report}

	switch {
	case execErr != nil && !errors.Is(execErr, domain.ErrCommandFailed):
		return run, execErr
	case parseErr != nil:
		return run, parseErr
	}
	return run, nil
}

// invocationDir creates a directory owned by one test invocation.
func (r *TestRunner) invocationDir(job domain.JobSpec, mode domain.TestMode) (string, error) {
	if err := os.MkdirAll(r.coverageRoot, domain.DirPerm); err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to create coverage directory"), "path", r.coverageRoot)
	}
	dir, err := os.MkdirTemp(r.coverageRoot, dirName(job.ID()+"-"+string(mode))+"-")
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, "failed to create coverage directory"), "path", r.coverageRoot)
	}
	return dir, nil
}

// dirName replaces every character that is unsafe in a file name.
func dirName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// jobEnv returns the job values followed by the snapshot activation environment.
func jobEnv(job domain.JobSpec, snapshot domain.Snapshot) []string {
	env := job.Env()
	if snapshot.Root != "" {
		env = append(env, EnvDirVar+"="+snapshot.Root)
	}
	return append(env, snapshot.Environ()...)
}

// expand substitutes ${name} references to job values in the arguments and environment
// of cmd.
func expand(cmd domain.Command, job domain.JobSpec) domain.Command {
	return expandWith(cmd, job.Lookup)
}

func expandWith(cmd domain.Command, lookup func(string) (string, bool)) domain.Command {
	out := cmd
	out.Args = make([]string, len(cmd.Args))
	for i, a := range cmd.Args {
		out.Args[i] = domain.ExpandTemplateFunc(a, lookup)
	}
	if len(cmd.Env) > 0 {
		out.Env = make(map[string]string, len(cmd.Env))
		for k, v := range cmd.Env {
			out.Env[k] = domain.ExpandTemplateFunc(v, lookup)
		}
	}
	return out
}

// snapshotID derives a directory name from the cache key.
func snapshotID(key domain.CacheKey) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// readEnvFile reads KEY=VALUE lines. A missing file yields no variables.
func readEnvFile(path string) ([]string, error) {
	//nolint:gosec // path is inside the environment directory
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to read environment file"), "path", path)
	}
	defer func() { _ = f.Close() }()

	var env []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.Contains(line, "=") {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfig, "environment file line is not KEY=VALUE"), "line", line)
		}
		env = append(env, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read environment file"), "path", path)
	}
	return env, nil
}
