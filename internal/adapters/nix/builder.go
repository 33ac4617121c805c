package nix

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Builder implements ports.EnvironmentBuilder with nix print-dev-env. Each configured
// name@version package is pinned to the nixpkgs revision NixHub reports for it.
type Builder struct {
	resolver ports.DependencyResolver
	exec     ports.Executor
	clock    ports.Clock
	packages []string
	envRoot  string
}

// NewBuilder creates a Builder writing expressions below envRoot.
func NewBuilder(
	resolver ports.DependencyResolver,
	exec ports.Executor,
	clock ports.Clock,
	packages []string,
	envRoot string,
) *Builder {
	return &Builder{
		resolver: resolver,
		exec:     exec,
		clock:    clock,
		packages: packages,
		envRoot:  envRoot,
	}
}

// Build implements ports.EnvironmentBuilder.
func (b *Builder) Build(ctx context.Context, job domain.JobSpec, key domain.CacheKey, out io.Writer) (domain.Snapshot, error) {
	pinned, err := b.resolve(ctx, job)
	if err != nil {
		return domain.Snapshot{}, err
	}

	expr := generateExpression(currentSystem(), pinned)
	sum := sha256.Sum256([]byte(key.String() + "\x00" + expr))
	id := hex.EncodeToString(sum[:8])
	dir := filepath.Join(b.envRoot, id)
	exprPath := filepath.Join(dir, "shell.nix")
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return domain.Snapshot{}, zerr.With(zerr.Wrap(err, "failed to create environment directory"), "path", dir)
	}
	if err := os.WriteFile(exprPath, []byte(expr), domain.FilePerm); err != nil { //nolint:gosec // expression is not secret
		return domain.Snapshot{}, zerr.With(zerr.Wrap(err, "failed to write nix expression"), "path", exprPath)
	}

	var stdout bytes.Buffer
	cmd := domain.Command{
		Args: []string{
			"nix", "print-dev-env",
			"--extra-experimental-features", "nix-command flakes",
			"--json", "--file", exprPath,
		},
		Dir: dir,
	}
	if err := b.exec.Execute(ctx, cmd, nil, &stdout, out); err != nil {
		if errors.Is(err, domain.ErrCommandNotFound) {
			return domain.Snapshot{}, domain.Classify(domain.ErrNixNotInstalled, err)
		}
		return domain.Snapshot{}, domain.Classify(domain.ErrNixPrintDevEnvFailed, err)
	}

	env, err := parseDevEnv(stdout.Bytes())
	if err != nil {
		return domain.Snapshot{}, err
	}

	return domain.Snapshot{
		ID:        id,
		Builder:   string(domain.BuilderNix),
		Root:      dir,
		Env:       env,
		CreatedAt: b.clock.Now(),
	}, nil
}

// resolve pins every package of job, in configuration order.
func (b *Builder) resolve(ctx context.Context, job domain.JobSpec) ([]pinnedPackage, error) {
	type request struct{ name, version string }
	requests := make([]request, len(b.packages))
	for i, raw := range b.packages {
		spec := domain.ExpandTemplate(raw, job)
		name, version, ok := strings.Cut(spec, "@")
		if !ok || name == "" || version == "" || strings.Contains(spec, "${") {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidPackageSpec, "cannot parse package"), "package", spec)
		}
		requests[i] = request{name: name, version: version}
	}

	pinned := make([]pinnedPackage, len(requests))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, req := range requests {
		g.Go(func() error {
			commit, attr, err := b.resolver.Resolve(ctx, req.name, req.version)
			if err != nil {
				return zerr.With(domain.Classify(domain.ErrNixResolveFailed, err), "package", req.name+"@"+req.version)
			}
			pinned[i] = pinnedPackage{commit: commit, attrPath: attr}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pinned, nil
}

// interactiveVars are shell variables that never become part of an environment.
var interactiveVars = map[string]struct{}{
	"HOME":          {},
	"USER":          {},
	"LOGNAME":       {},
	"SHELL":         {},
	"TERM":          {},
	"PS1":           {},
	"PS2":           {},
	"TMP":           {},
	"TMPDIR":        {},
	"TEMP":          {},
	"TEMPDIR":       {},
	"NIX_BUILD_TOP": {},
}

// parseDevEnv extracts exported string variables, sorted by name.
func parseDevEnv(data []byte) ([]string, error) {
	var out devEnv
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, zerr.Wrap(domain.Classify(domain.ErrNixPrintDevEnvFailed, err), "failed to parse nix output")
	}

	env := make([]string, 0, len(out.Variables))
	for name, v := range out.Variables {
		if v.Type != "exported" {
			continue
		}
		if _, skip := interactiveVars[name]; skip {
			continue
		}
		value, ok := v.Value.(string)
		if !ok {
			continue
		}
		env = append(env, name+"="+value)
	}
	slices.Sort(env)
	return env, nil
}
