// Package shell runs the environment, install and test commands of a job as external
// processes.
package shell

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/creack/pty"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/zerr"
)

// Executor implements ports.Executor using os/exec.
type Executor struct {
	usePTY bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithPTY runs commands attached to a pseudo-terminal so tools keep their colored output.
// Standard error is merged into standard output. Platforms without PTY support fall back
// to pipes.
func WithPTY() Option {
	return func(e *Executor) {
		e.usePTY = true
	}
}

// NewExecutor creates a new Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs cmd and waits for it to complete.
func (e *Executor) Execute(ctx context.Context, cmd domain.Command, env []string, stdout, stderr io.Writer) error {
	if cmd.IsZero() {
		return zerr.Wrap(domain.ErrMissingCommand, "command has no arguments")
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	name := cmd.Args[0]
	cmdEnv := resolveEnvironment(os.Environ(), env, cmd.Env)

	executable := name
	if !filepath.IsAbs(name) && !strings.ContainsRune(name, filepath.Separator) {
		lp, err := lookPath(name, cmdEnv)
		if err != nil {
			return zerr.With(zerr.Wrap(domain.ErrCommandNotFound, "executable not found in PATH"), "command", name)
		}
		executable = lp
	}

	c := exec.CommandContext(ctx, executable, cmd.Args[1:]...) //nolint:gosec // user provided command
	c.Args[0] = name
	c.Dir = cmd.Dir
	c.Env = cmdEnv

	err := e.run(c, stdout, stderr)
	if err == nil {
		return nil
	}

	if ctx.Err() != nil && cmd.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return zerr.With(zerr.Wrap(domain.ErrCommandFailed, "command timed out"), "timeout", cmd.Timeout.String())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrCommandFailed, "command exited unsuccessfully"), "command", name), "exit_code", exitErr.ExitCode())
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return zerr.With(zerr.Wrap(domain.ErrCommandNotFound, "executable not found"), "command", name)
	}
	return zerr.With(domain.Classify(domain.ErrCommandFailed, err), "command", name)
}

func (e *Executor) run(c *exec.Cmd, stdout, stderr io.Writer) error {
	if e.usePTY {
		ptmx, err := pty.Start(c)
		if err == nil {
			done := make(chan struct{})
			go func() {
				defer close(done)
				_, _ = io.Copy(stdout, ptmx)
			}()
			waitErr := c.Wait()
			// Reads fail with EIO once the child side is closed, which ends the copy.
			<-done
			_ = ptmx.Close()
			return waitErr
		}
		if !errors.Is(err, pty.ErrUnsupported) {
			return zerr.Wrap(err, "failed to start pty")
		}
	}

	c.Stdout = stdout
	c.Stderr = stderr
	return c.Run()
}

// allowListedEnvVars are the system environment variables a command inherits.
var allowListedEnvVars = map[string]struct{}{
	"HOME":   {},
	"TERM":   {},
	"USER":   {},
	"PATH":   {},
	"TMPDIR": {},
	"LANG":   {},
}

// resolveEnvironment merges the allow-listed system environment, env and cmdEnv in
// that order. PATH entries in env are prepended to the inherited PATH.
func resolveEnvironment(sysEnv, env []string, cmdEnv map[string]string) []string {
	envMap := filterSystemEnv(sysEnv)
	sysPath := envMap["PATH"]

	for _, entry := range env {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if k == "PATH" && sysPath != "" {
			v = v + string(os.PathListSeparator) + sysPath
		}
		envMap[k] = v
	}
	for k, v := range cmdEnv {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

func filterSystemEnv(sysEnv []string) map[string]string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if _, allowed := allowListedEnvVars[k]; allowed {
			envMap[k] = v
		}
	}
	return envMap
}

// lookPath searches for an executable in the PATH of env.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
		}
	}
	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
