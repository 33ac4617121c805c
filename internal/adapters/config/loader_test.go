package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/grid/internal/adapters/config"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

const fullYAML = `
version: "1"
concurrency: 3
keys:
  platform: os
  label: label
  runtime: python
cache:
  generation: 2
  store:
    compression: lz4
environment:
  spec: ["requirements.txt"]
  command:
    args: ["python", "-m", "venv", ".venv"]
    timeout: 10m
install:
  args: ["pip", "install", "-e", "."]
test:
  command:
    args: ["pytest", "--cov"]
    dir: src
  coverage:
    path: coverage.lcov
report:
  sink:
    kind: postgres
    dsnEnv: PG_URL
classes:
  mandatory:
    matrix:
      axes:
        - name: os
          values: [ubuntu-latest, macos-latest]
        - name: python
          values: ["3.11", "3.12"]
      overrides:
        - match: {os: ubuntu-latest}
          set: {label: linux-64}
  best-effort:
    matrix:
      axes:
        - name: os
          values: [ubuntu-latest]
        - name: python
          values: ["3.12"]
    modes: [network]
`

func newLoader(t *testing.T) (*config.Loader, *mocks.MockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	return config.NewLoader(log), log
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), domain.DirPerm))
	require.NoError(t, os.WriteFile(path, []byte(content), domain.FilePerm))
	return path
}

func TestLoader_LoadYAML(t *testing.T) {
	loader, _ := newLoader(t)
	dir := t.TempDir()
	path := writeFile(t, dir, domain.ConfigFileName, fullYAML)

	cfg, err := loader.Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, path, cfg.Source)
	assert.Len(t, cfg.Digest, 16)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, domain.KeyConfig{Platform: "os", Label: "label", Runtime: "python"}, cfg.Keys)

	assert.Equal(t, 2, cfg.Cache.Generation)
	assert.Equal(t, domain.StoreFS, cfg.Cache.Store.Kind)
	assert.Equal(t, domain.CompressionLZ4, cfg.Cache.Store.Compression)
	assert.Equal(t, filepath.Join(dir, ".grid", "cache"), cfg.Cache.Store.Path)

	assert.Equal(t, domain.BuilderShell, cfg.Environment.Builder)
	assert.Equal(t, []string{"requirements.txt"}, cfg.Environment.Spec)
	assert.Equal(t, 10*time.Minute, cfg.Environment.Command.Timeout)
	assert.Equal(t, dir, cfg.Environment.Command.Dir)

	assert.Equal(t, []string{"pip", "install", "-e", "."}, cfg.Install.Args)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.Test.Command.Dir)
	assert.Equal(t, "coverage.lcov", cfg.Test.Coverage.Path)
	assert.Equal(t, domain.CoverageLCOV, cfg.Test.Coverage.Format)

	assert.Equal(t, domain.SinkPostgres, cfg.Report.Sink.Kind)
	assert.Equal(t, "PG_URL", cfg.Report.Sink.DSNEnv)
	assert.Equal(t, "grid_reports", cfg.Report.Sink.Table)

	require.Len(t, cfg.Classes, 2)
	mandatory := cfg.Classes[domain.ClassMandatory]
	require.Len(t, mandatory.Matrix.Axes, 2)
	assert.Equal(t, domain.Axis{Name: "os", Values: []string{"ubuntu-latest", "macos-latest"}}, mandatory.Matrix.Axes[0])
	assert.Equal(t, []domain.OverrideRow{{
		Match: map[string]string{"os": "ubuntu-latest"},
		Set:   map[string]string{"label": "linux-64"},
	}}, mandatory.Matrix.Overrides)
	assert.Equal(t, []domain.TestMode{domain.DefaultTestMode}, mandatory.TestModes())
	assert.Equal(t, []domain.TestMode{"network"}, cfg.Classes[domain.ClassBestEffort].TestModes())
}

func TestLoader_LoadJSONC(t *testing.T) {
	loader, _ := newLoader(t)
	dir := t.TempDir()
	writeFile(t, dir, domain.ConfigFileNameJSONC, `{
  // keys are required
  "version": "1",
  "keys": {"platform": "os", "runtime": "go"},
  "environment": {"spec": ["go.mod"], "command": {"args": ["true"]}},
  "test": {
    "command": {"args": ["go", "test", "-coverprofile=${GRID_COVERAGE_FILE}", "./..."]},
    "coverage": {"format": "gocover"}, /* trailing comma */
  },
  "classes": {
    "mandatory": {"matrix": {"axes": [{"name": "os", "values": ["linux"]}, {"name": "go", "values": ["1.25"]}]}}
  }
}`)

	cfg, err := loader.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, domain.CoverageGoCover, cfg.Test.Coverage.Format)
	assert.Equal(t, "coverage.out", cfg.Test.Coverage.Path)
	assert.Equal(t, domain.SinkFile, cfg.Report.Sink.Kind)
	assert.Equal(t, filepath.Join(dir, ".grid", "reports"), cfg.Report.Sink.Path)
	assert.True(t, cfg.Cache.Store.Remote.Secure)
	assert.Equal(t, "AWS_ACCESS_KEY_ID", cfg.Cache.Store.Remote.AccessKeyEnv)
}

func TestLoader_DiscoveryWalksUp(t *testing.T) {
	loader, _ := newLoader(t)
	dir := t.TempDir()
	writeFile(t, dir, domain.ConfigFileName, fullYAML)
	nested := filepath.Join(dir, "pkg", "sub")
	require.NoError(t, os.MkdirAll(nested, domain.DirPerm))

	cfg, err := loader.Load(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, domain.ConfigFileName), cfg.Source)
}

func TestLoader_DiscoveryPrefersYAML(t *testing.T) {
	loader, _ := newLoader(t)
	dir := t.TempDir()
	writeFile(t, dir, domain.ConfigFileName, fullYAML)
	writeFile(t, dir, domain.ConfigFileNameJSON, `{}`)

	cfg, err := loader.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, domain.ConfigFileName), cfg.Source)
}

func TestLoader_RootOverride(t *testing.T) {
	loader, _ := newLoader(t)
	dir := t.TempDir()
	path := writeFile(t, dir, filepath.Join("ci", domain.ConfigFileName), "root: ..\n"+fullYAML)

	cfg, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Root)
}

func TestLoader_DigestTracksContent(t *testing.T) {
	loader, _ := newLoader(t)
	dir := t.TempDir()
	path := writeFile(t, dir, domain.ConfigFileName, fullYAML)

	first, err := loader.Load(path)
	require.NoError(t, err)
	again, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, first.Digest, again.Digest)

	writeFile(t, dir, domain.ConfigFileName, fullYAML+"\n# changed\n")
	changed, err := loader.Load(path)
	require.NoError(t, err)
	assert.NotEqual(t, first.Digest, changed.Digest)
}

func TestLoader_WarnsWithoutSpec(t *testing.T) {
	loader, log := newLoader(t)
	dir := t.TempDir()
	path := writeFile(t, dir, domain.ConfigFileName, `
version: "1"
keys: {platform: os, runtime: python}
environment:
  command: {args: ["true"]}
test:
  command: {args: ["pytest"]}
classes:
  mandatory:
    matrix:
      axes: [{name: os, values: [linux]}, {name: python, values: ["3.12"]}]
`)
	log.EXPECT().Warn(gomock.Any()).Times(1)

	_, err := loader.Load(path)
	require.NoError(t, err)
}

func TestLoader_Errors(t *testing.T) {
	const base = `
version: "1"
keys: {platform: os, runtime: python}
environment:
  spec: [x]
  command: {args: ["true"]}
classes:
  mandatory:
    matrix:
      axes: [{name: os, values: [linux]}]
`
	tests := []struct {
		name    string
		file    string
		content string
		want    error
	}{
		{"invalid yaml", domain.ConfigFileName, "version: [", domain.ErrConfigParseFailed},
		{"invalid json", domain.ConfigFileNameJSON, "{", domain.ErrConfigParseFailed},
		{"missing test", domain.ConfigFileName, base, domain.ErrSchemaViolation},
		{"unknown key", domain.ConfigFileName, base + "test: {command: {args: [pytest]}}\nextra: 1\n", domain.ErrSchemaViolation},
		{"unknown class", domain.ConfigFileName, `
version: "1"
keys: {platform: os, runtime: python}
test: {command: {args: [pytest]}}
classes:
  nightly:
    matrix: {axes: []}
`, domain.ErrSchemaViolation},
		{"bad store kind", domain.ConfigFileName, base + "test: {command: {args: [pytest]}}\ncache: {store: {kind: redis}}\n", domain.ErrSchemaViolation},
		{"empty test command", domain.ConfigFileName, base + "test: {command: {args: []}}\n", domain.ErrMissingCommand},
		{"shell builder without command", domain.ConfigFileName, `
version: "1"
keys: {platform: os, runtime: python}
environment: {spec: [x]}
test: {command: {args: [pytest]}}
classes:
  mandatory:
    matrix:
      axes: [{name: os, values: [linux]}]
`, domain.ErrMissingCommand},
		{"nix without packages", domain.ConfigFileName, `
version: "1"
keys: {platform: os, runtime: python}
environment: {builder: nix, spec: [x]}
test: {command: {args: [pytest]}}
classes:
  mandatory:
    matrix:
      axes: [{name: os, values: [linux]}]
`, domain.ErrConfig},
		{"coverage path outside its directory", domain.ConfigFileName,
			base + "test: {command: {args: [pytest]}, coverage: {path: ../coverage.lcov}}\n", domain.ErrConfig},
		{"absolute coverage path", domain.ConfigFileName,
			base + "test: {command: {args: [pytest]}, coverage: {path: /tmp/coverage.lcov}}\n", domain.ErrConfig},
		{"s3 store without bucket", domain.ConfigFileName, base + "test: {command: {args: [pytest]}}\ncache: {store: {kind: s3}}\n", domain.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader, _ := newLoader(t)
			path := writeFile(t, t.TempDir(), tt.file, tt.content)

			_, err := loader.Load(path)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsConfigError(err))
		})
	}
}

func TestLoader_NotFound(t *testing.T) {
	loader, _ := newLoader(t)

	_, err := loader.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}
