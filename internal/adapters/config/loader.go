// Package config provides the configuration loader for grid.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/jsonc"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const (
	defaultAccessKeyEnv = "AWS_ACCESS_KEY_ID"
	defaultSecretKeyEnv = "AWS_SECRET_ACCESS_KEY"
	defaultDSNEnv       = "GRID_DATABASE_URL"
	defaultTable        = "grid_reports"
	defaultLCOVFile     = "coverage.lcov"
	defaultGoCoverFile  = "coverage.out"
)

// Loader implements ports.ConfigLoader for grid.yaml, grid.jsonc and grid.json files.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load reads and validates the configuration at path. A directory is searched upwards
// for the first directory holding a configuration file.
func (l *Loader) Load(path string) (*domain.PipelineConfig, error) {
	configPath, err := findConfiguration(path)
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- configPath is chosen by the user
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, zerr.With(domain.Classify(domain.ErrConfigReadFailed, err), "path", configPath)
	}

	doc, err := normalize(configPath, data)
	if err != nil {
		return nil, zerr.With(err, "path", configPath)
	}
	if err := validate(doc); err != nil {
		return nil, zerr.With(err, "path", configPath)
	}

	var file Gridfile
	if err := json.Unmarshal(doc, &file); err != nil {
		return nil, zerr.With(domain.Classify(domain.ErrConfigParseFailed, err), "path", configPath)
	}

	cfg, err := l.build(configPath, &file)
	if err != nil {
		return nil, zerr.With(err, "path", configPath)
	}
	cfg.Digest = fmt.Sprintf("%016x", xxhash.Sum64(data))
	return cfg, nil
}

func findConfiguration(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "no configuration at path"), "path", path)
	}
	if !info.IsDir() {
		return path, nil
	}

	dir, err := filepath.Abs(path)
	if err != nil {
		return "", zerr.With(domain.Classify(domain.ErrConfigReadFailed, err), "path", path)
	}
	for {
		for _, name := range domain.ConfigFileNames() {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", zerr.With(zerr.Wrap(domain.ErrConfigNotFound, "no grid.yaml, grid.jsonc or grid.json found"), "cwd", path)
		}
		dir = parent
	}
}

// normalize converts the document to plain JSON.
func normalize(configPath string, data []byte) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".json", ".jsonc":
		doc := jsonc.ToJSON(data)
		if !json.Valid(doc) {
			return nil, zerr.Wrap(domain.ErrConfigParseFailed, "document is not valid JSON")
		}
		return doc, nil
	default:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, domain.Classify(domain.ErrConfigParseFailed, err)
		}
		doc, err := json.Marshal(v)
		if err != nil {
			return nil, domain.Classify(domain.ErrConfigParseFailed, err)
		}
		return doc, nil
	}
}

func validate(doc []byte) error {
	schema, err := compileSchema()
	if err != nil {
		return zerr.Wrap(err, "failed to compile configuration schema")
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return domain.Classify(domain.ErrConfigParseFailed, err)
	}
	if err := schema.Validate(v); err != nil {
		return domain.Classify(domain.ErrSchemaViolation, err)
	}
	return nil
}

func (l *Loader) build(configPath string, file *Gridfile) (*domain.PipelineConfig, error) {
	root := resolveRoot(configPath, file.Root)

	cfg := &domain.PipelineConfig{
		Root:        root,
		Source:      configPath,
		Concurrency: file.Concurrency,
		Keys: domain.KeyConfig{
			Platform: file.Keys.Platform,
			Label:    file.Keys.Label,
			Runtime:  file.Keys.Runtime,
		},
		Cache: domain.CacheConfig{
			Generation: file.Cache.Generation,
			Store: domain.StoreConfig{
				Kind:        domain.StoreKind(orDefault(file.Cache.Store.Kind, string(domain.StoreFS))),
				Path:        resolvePath(root, orDefault(file.Cache.Store.Path, domain.DefaultCachePath())),
				Compression: domain.Compression(orDefault(file.Cache.Store.Compression, string(domain.CompressionZstd))),
				Remote:      buildRemote(file.Cache.Store.Remote),
			},
		},
		Report: domain.ReportConfig{
			Sink: domain.SinkConfig{
				Kind:   domain.SinkKind(orDefault(file.Report.Sink.Kind, string(domain.SinkFile))),
				Path:   resolvePath(root, orDefault(file.Report.Sink.Path, domain.DefaultReportsPath())),
				Remote: buildRemote(file.Report.Sink.Remote),
				DSNEnv: orDefault(file.Report.Sink.DSNEnv, defaultDSNEnv),
				Table:  orDefault(file.Report.Sink.Table, defaultTable),
			},
		},
		Classes: make(map[domain.JobClass]domain.ClassConfig, len(file.Classes)),
	}

	var err error
	if cfg.Environment, err = buildEnvironment(root, file.Environment); err != nil {
		return nil, err
	}
	if cfg.Install, err = buildCommand(root, file.Install); err != nil {
		return nil, zerr.With(err, "step", "install")
	}
	if cfg.Test, err = buildTest(root, file.Test); err != nil {
		return nil, err
	}

	for name, dto := range file.Classes {
		class, err := domain.ParseJobClass(name)
		if err != nil {
			return nil, err
		}
		cfg.Classes[class] = buildClass(dto)
	}

	if err := checkBackends(cfg); err != nil {
		return nil, err
	}

	if len(cfg.Environment.Spec) == 0 {
		l.Logger.Warn("environment.spec is empty: cached environments only expire with the date and generation")
	}
	return cfg, nil
}

func buildEnvironment(root string, dto EnvironmentDTO) (domain.EnvironmentConfig, error) {
	env := domain.EnvironmentConfig{
		Builder:  domain.BuilderKind(orDefault(dto.Builder, string(domain.BuilderShell))),
		Spec:     dto.Spec,
		Packages: dto.Packages,
	}
	cmd, err := buildCommand(root, dto.Command)
	if err != nil {
		return env, zerr.With(err, "step", "environment")
	}
	env.Command = cmd

	switch env.Builder {
	case domain.BuilderShell:
		if cmd.IsZero() {
			return env, zerr.With(zerr.Wrap(domain.ErrMissingCommand, "the shell builder needs environment.command"),
				"builder", string(env.Builder))
		}
	case domain.BuilderNix:
		if len(env.Packages) == 0 {
			return env, zerr.With(zerr.Wrap(domain.ErrConfig, "the nix builder needs environment.packages"),
				"builder", string(env.Builder))
		}
	}
	return env, nil
}

func buildTest(root string, dto TestDTO) (domain.TestConfig, error) {
	cmd, err := buildCommand(root, dto.Command)
	if err != nil {
		return domain.TestConfig{}, zerr.With(err, "step", "test")
	}
	if cmd.IsZero() {
		return domain.TestConfig{}, zerr.With(zerr.Wrap(domain.ErrMissingCommand, "test.command needs args"), "step", "test")
	}

	format := domain.CoverageFormat(orDefault(dto.Coverage.Format, string(domain.CoverageLCOV)))
	file := defaultLCOVFile
	if format == domain.CoverageGoCover {
		file = defaultGoCoverFile
	}
	file = orDefault(dto.Coverage.Path, file)
	if !filepath.IsLocal(file) {
		return domain.TestConfig{}, zerr.With(
			zerr.Wrap(domain.ErrConfig, "test.coverage.path must be relative to the coverage directory"),
			"path", file)
	}

	return domain.TestConfig{
		Command:  cmd,
		Coverage: domain.CoverageConfig{Path: filepath.Clean(file), Format: format},
	}, nil
}

func buildCommand(root string, dto CommandDTO) (domain.Command, error) {
	cmd := domain.Command{
		Args: dto.Args,
		Dir:  resolvePath(root, dto.Dir),
		Env:  dto.Env,
	}
	if dto.Timeout != "" {
		d, err := time.ParseDuration(dto.Timeout)
		if err != nil {
			return cmd, zerr.With(domain.Classify(domain.ErrConfig, err), "timeout", dto.Timeout)
		}
		cmd.Timeout = d
	}
	return cmd, nil
}

func buildClass(dto ClassDTO) domain.ClassConfig {
	cc := domain.ClassConfig{}
	for _, a := range dto.Matrix.Axes {
		cc.Matrix.Axes = append(cc.Matrix.Axes, domain.Axis{Name: a.Name, Values: a.Values})
	}
	for _, o := range dto.Matrix.Overrides {
		cc.Matrix.Overrides = append(cc.Matrix.Overrides, domain.OverrideRow{Match: o.Match, Set: o.Set})
	}
	for _, m := range dto.Modes {
		cc.Modes = append(cc.Modes, domain.TestMode(m))
	}
	return cc
}

func buildRemote(dto RemoteDTO) domain.RemoteConfig {
	return domain.RemoteConfig{
		Endpoint:     dto.Endpoint,
		Bucket:       dto.Bucket,
		Prefix:       dto.Prefix,
		Region:       dto.Region,
		Secure:       !dto.Insecure,
		AccessKeyEnv: orDefault(dto.AccessKeyEnv, defaultAccessKeyEnv),
		SecretKeyEnv: orDefault(dto.SecretKeyEnv, defaultSecretKeyEnv),
	}
}

// checkBackends verifies that remote backends name their bucket.
func checkBackends(cfg *domain.PipelineConfig) error {
	if cfg.Cache.Store.Kind == domain.StoreS3 && !remoteComplete(cfg.Cache.Store.Remote) {
		return zerr.With(zerr.Wrap(domain.ErrConfig, "s3 store needs remote.endpoint and remote.bucket"),
			"store", string(cfg.Cache.Store.Kind))
	}
	if cfg.Report.Sink.Kind == domain.SinkS3 && !remoteComplete(cfg.Report.Sink.Remote) {
		return zerr.With(zerr.Wrap(domain.ErrConfig, "s3 sink needs remote.endpoint and remote.bucket"),
			"sink", string(cfg.Report.Sink.Kind))
	}
	return nil
}

func remoteComplete(r domain.RemoteConfig) bool {
	return r.Endpoint != "" && r.Bucket != ""
}

// resolveRoot resolves the project root relative to the configuration file.
func resolveRoot(configPath, configuredRoot string) string {
	configDir, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		configDir = filepath.Dir(configPath)
	}
	return resolvePath(configDir, configuredRoot)
}

// resolvePath joins relative paths onto base. An empty path resolves to base.
func resolvePath(base, path string) string {
	if path == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
