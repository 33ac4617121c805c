package app_test

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/grid/internal/adapters/telemetry"
	"go.trai.ch/grid/internal/app"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/grid/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

var runDay = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type appMocks struct {
	loader        *mocks.MockConfigLoader
	logger        *mocks.MockLogger
	fingerprinter *mocks.MockFingerprinter
	clock         *mocks.MockClock
	builder       *mocks.MockEnvironmentBuilder
	store         *mocks.MockCacheStore
	installer     *mocks.MockInstaller
	tests         *mocks.MockTestRunner
	sink          *mocks.MockReportSink
}

func setupApp(t *testing.T) (*app.App, appMocks, *bytes.Buffer) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := appMocks{
		loader:        mocks.NewMockConfigLoader(ctrl),
		logger:        mocks.NewMockLogger(ctrl),
		fingerprinter: mocks.NewMockFingerprinter(ctrl),
		clock:         mocks.NewMockClock(ctrl),
		builder:       mocks.NewMockEnvironmentBuilder(ctrl),
		store:         mocks.NewMockCacheStore(ctrl),
		installer:     mocks.NewMockInstaller(ctrl),
		tests:         mocks.NewMockTestRunner(ctrl),
		sink:          mocks.NewMockReportSink(ctrl),
	}
	m.clock.EXPECT().Now().Return(runDay).AnyTimes()
	m.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	m.logger.EXPECT().Warn(gomock.Any()).AnyTimes()

	stdout := new(bytes.Buffer)
	a := app.New(m.loader, m.logger, m.fingerprinter, m.clock, telemetry.NewOTelTracer("grid-test")).
		WithOutput(stdout, io.Discard).
		WithBackends(func(_ context.Context, _ *domain.PipelineConfig, _ ports.Executor, _ bool) (*app.Backends, error) {
			return &app.Backends{
				Store:     m.store,
				Sink:      m.sink,
				Builder:   m.builder,
				Installer: m.installer,
				Tests:     m.tests,
			}, nil
		})
	return a, m, stdout
}

func testConfig(root string) *domain.PipelineConfig {
	return &domain.PipelineConfig{
		Root:        root,
		Concurrency: 2,
		Keys:        domain.KeyConfig{Platform: "os", Runtime: "python"},
		Cache: domain.CacheConfig{
			Store: domain.StoreConfig{Kind: domain.StoreFS, Path: filepath.Join(root, ".grid", "cache")},
		},
		Environment: domain.EnvironmentConfig{Builder: domain.BuilderShell, Spec: []string{"requirements.txt"}},
		Report: domain.ReportConfig{
			Sink: domain.SinkConfig{Kind: domain.SinkFile, Path: filepath.Join(root, ".grid", "reports")},
		},
		Classes: map[domain.JobClass]domain.ClassConfig{
			domain.ClassMandatory: {
				Matrix: domain.Matrix{Axes: []domain.Axis{
					{Name: "os", Values: []string{"linux"}},
					{Name: "python", Values: []string{"3.12"}},
				}},
			},
		},
	}
}

func coverageOf(t *testing.T, file string, line int, hits uint64) *domain.CoverageReport {
	t.Helper()
	r := domain.NewCoverageReport()
	require.NoError(t, r.Record(file, line, hits))
	return r
}

func TestApp_Run(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		a, m, stdout := setupApp(t)
		cfg := testConfig(t.TempDir())

		m.loader.EXPECT().Load("grid.yaml").Return(cfg, nil)
		m.fingerprinter.EXPECT().Fingerprint(cfg.Root, cfg.Environment.Spec).Return("fp", nil)
		m.store.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
		m.builder.EXPECT().Build(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Snapshot{ID: "snap", Builder: "shell"}, nil)
		m.store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil)
		m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		m.tests.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), domain.DefaultTestMode, gomock.Any()).
			Return(domain.TestRun{Passed: true, Coverage: coverageOf(t, "app.py", 1, 2)}, nil)

		var scopes []domain.ReportScope
		m.sink.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ *domain.CoverageReport, meta domain.ReportMetadata) error {
				scopes = append(scopes, meta.Scope)
				return nil
			},
		).Times(2)

		err := a.Run(context.Background(), app.RunOptions{ConfigPath: "grid.yaml", OutputMode: "linear"})
		require.NoError(t, err)
		assert.Equal(t, []domain.ReportScope{domain.ScopeJob, domain.ScopePipeline}, scopes)
		assert.Contains(t, stdout.String(), "os=linux,python=3.12")
	})

	t.Run("failing mandatory job fails the run", func(t *testing.T) {
		a, m, stdout := setupApp(t)
		cfg := testConfig(t.TempDir())

		m.loader.EXPECT().Load(gomock.Any()).Return(cfg, nil)
		m.fingerprinter.EXPECT().Fingerprint(gomock.Any(), gomock.Any()).Return("fp", nil)
		m.store.EXPECT().Get(gomock.Any(), gomock.Any()).
			Return(&domain.CacheEntry{Snapshot: domain.Snapshot{ID: "cached"}}, nil)
		m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		m.tests.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.TestRun{Passed: false}, nil)
		m.sink.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

		err := a.Run(context.Background(), app.RunOptions{OutputMode: "linear"})
		require.ErrorIs(t, err, domain.ErrPipelineFailed)
		require.ErrorIs(t, err, domain.ErrTestFailed)
		assert.Contains(t, stdout.String(), "os=linux,python=3.12")
	})

	t.Run("unknown class aborts before any job", func(t *testing.T) {
		a, m, _ := setupApp(t)
		m.loader.EXPECT().Load(gomock.Any()).Return(testConfig(t.TempDir()), nil)

		err := a.Run(context.Background(), app.RunOptions{Classes: []string{"nightly"}, OutputMode: "linear"})
		require.ErrorIs(t, err, domain.ErrUnknownJobClass)
	})

	t.Run("load failure", func(t *testing.T) {
		a, m, _ := setupApp(t)
		m.loader.EXPECT().Load(".").Return(nil, domain.ErrConfigNotFound)

		err := a.Run(context.Background(), app.RunOptions{OutputMode: "linear"})
		require.ErrorIs(t, err, domain.ErrConfigNotFound)
	})
}

func TestApp_Plan(t *testing.T) {
	a, m, stdout := setupApp(t)
	cfg := testConfig(t.TempDir())

	m.loader.EXPECT().Load(gomock.Any()).Return(cfg, nil)
	m.fingerprinter.EXPECT().Fingerprint(gomock.Any(), gomock.Any()).Return("fp", nil)
	m.store.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
	m.builder.EXPECT().Build(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.tests.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	require.NoError(t, a.Plan(context.Background(), app.RunOptions{}))

	out := stdout.String()
	assert.Contains(t, out, "os=linux,python=3.12")
	assert.Contains(t, out, "grid-v1|linux|3.12|fp|2026-05-04|g0")
	assert.Contains(t, out, "miss")
	assert.Contains(t, out, "1 job(s), concurrency 2")
}

func TestApp_Clean(t *testing.T) {
	setup := func(t *testing.T) (string, *domain.PipelineConfig) {
		t.Helper()
		root := t.TempDir()
		cfg := testConfig(root)
		for _, dir := range []string{
			cfg.Cache.Store.Path,
			cfg.Report.Sink.Path,
			filepath.Join(root, domain.DefaultEnvPath()),
			filepath.Join(root, domain.DefaultCoveragePath()),
			filepath.Join(root, domain.DefaultNixHubCachePath()),
		} {
			require.NoError(t, os.MkdirAll(dir, domain.DirPerm))
		}
		return root, cfg
	}

	t.Run("cache only", func(t *testing.T) {
		a, m, _ := setupApp(t)
		root, cfg := setup(t)
		m.loader.EXPECT().Load(gomock.Any()).Return(cfg, nil)

		require.NoError(t, a.Clean(context.Background(), app.CleanOptions{Cache: true}))

		assert.NoDirExists(t, cfg.Cache.Store.Path)
		assert.NoDirExists(t, filepath.Join(root, domain.DefaultEnvPath()))
		assert.NoDirExists(t, filepath.Join(root, domain.DefaultCoveragePath()))
		assert.DirExists(t, cfg.Report.Sink.Path)
		assert.DirExists(t, filepath.Join(root, domain.DefaultNixHubCachePath()))
	})

	t.Run("everything", func(t *testing.T) {
		a, m, _ := setupApp(t)
		root, cfg := setup(t)
		m.loader.EXPECT().Load(gomock.Any()).Return(cfg, nil)

		require.NoError(t, a.Clean(context.Background(), app.CleanOptions{Cache: true, Reports: true, Tools: true}))

		assert.NoDirExists(t, cfg.Cache.Store.Path)
		assert.NoDirExists(t, cfg.Report.Sink.Path)
		assert.NoDirExists(t, filepath.Join(root, domain.DefaultNixHubCachePath()))
	})
}
