package pipeline_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/grid/internal/core/domain"
	"go.trai.ch/grid/internal/core/ports"
	"go.trai.ch/grid/internal/core/ports/mocks"
	"go.trai.ch/grid/internal/engine/pipeline"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

type pipelineMocks struct {
	builder   *mocks.MockEnvironmentBuilder
	store     *mocks.MockCacheStore
	installer *mocks.MockInstaller
	tests     *mocks.MockTestRunner
	sink      *mocks.MockReportSink
	logger    *mocks.MockLogger
	tracer    *mocks.MockTracer

	mu       sync.Mutex
	warnings []string
}

func (m *pipelineMocks) warned() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.warnings)
}

func setupController(t *testing.T) (*pipeline.Controller, *pipelineMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := &pipelineMocks{
		builder:   mocks.NewMockEnvironmentBuilder(ctrl),
		store:     mocks.NewMockCacheStore(ctrl),
		installer: mocks.NewMockInstaller(ctrl),
		tests:     mocks.NewMockTestRunner(ctrl),
		sink:      mocks.NewMockReportSink(ctrl),
		logger:    mocks.NewMockLogger(ctrl),
		tracer:    mocks.NewMockTracer(ctrl),
	}

	span := mocks.NewMockSpan(ctrl)
	span.EXPECT().End().AnyTimes()
	span.EXPECT().RecordError(gomock.Any()).AnyTimes()
	span.EXPECT().SetAttribute(gomock.Any(), gomock.Any()).AnyTimes()
	span.EXPECT().Write(gomock.Any()).DoAndReturn(func(p []byte) (int, error) { return len(p), nil }).AnyTimes()
	m.tracer.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ string, _ ...ports.SpanOption) (context.Context, ports.Span) {
			return ctx, span
		},
	).AnyTimes()
	m.tracer.EXPECT().EmitPlan(gomock.Any(), gomock.Any()).AnyTimes()

	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)).AnyTimes()

	fp := mocks.NewMockFingerprinter(ctrl)
	fp.EXPECT().Fingerprint(gomock.Any(), gomock.Any()).Return("fp", nil).AnyTimes()

	m.store.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	m.store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.builder.EXPECT().Build(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.Snapshot{ID: "snap"}, nil).AnyTimes()
	m.logger.EXPECT().Warn(gomock.Any()).Do(func(msg string) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.warnings = append(m.warnings, msg)
	}).AnyTimes()

	return pipeline.NewController(pipeline.Collaborators{
		Builder:       m.builder,
		Store:         m.store,
		Installer:     m.installer,
		Tests:         m.tests,
		Sink:          m.sink,
		Fingerprinter: fp,
		Tracer:        m.tracer,
		Clock:         clock,
		Logger:        m.logger,
	}), m
}

func testConfig() *domain.PipelineConfig {
	return &domain.PipelineConfig{
		Concurrency: 2,
		Keys:        domain.KeyConfig{Platform: "os", Runtime: "python"},
		Classes: map[domain.JobClass]domain.ClassConfig{
			domain.ClassMandatory: {
				Matrix: domain.Matrix{Axes: []domain.Axis{
					{Name: "os", Values: []string{"linux", "macos"}},
					{Name: "python", Values: []string{"3.11", "3.12"}},
				}},
			},
			domain.ClassBestEffort: {
				Matrix: domain.Matrix{Axes: []domain.Axis{
					{Name: "os", Values: []string{"linux"}},
					{Name: "python", Values: []string{"3.12"}},
				}},
				Modes: []domain.TestMode{"network"},
			},
		},
	}
}

func passingTests(t *testing.T, m *pipelineMocks) {
	t.Helper()
	m.tests.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, job domain.JobSpec, _ domain.Snapshot, _ domain.TestMode, _ io.Writer) (domain.TestRun, error) {
			osName, _ := job.Value("os")
			r := domain.NewCoverageReport()
			require.NoError(t, r.Record("pkg/"+osName+".py", 1, 1))
			return domain.TestRun{Passed: true, Coverage: r}, nil
		},
	).AnyTimes()
}

func TestController_Plan(t *testing.T) {
	ctl, _ := setupController(t)

	plan, err := ctl.Plan(testConfig(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"mandatory/os=linux,python=3.11",
		"mandatory/os=linux,python=3.12",
		"mandatory/os=macos,python=3.11",
		"mandatory/os=macos,python=3.12",
		"best-effort/os=linux,python=3.12",
	}, plan.IDs())
	assert.Equal(t, domain.ClassBestEffort, plan.Jobs[4].Job.Class)
	assert.Equal(t, []domain.TestMode{"network"}, plan.Jobs[4].Job.Modes)
	assert.Equal(t, []domain.TestMode{domain.DefaultTestMode}, plan.Jobs[0].Job.Modes)
	assert.Equal(t, domain.CacheKey("grid-v1|linux|3.11|fp|2026-03-01|g0"), plan.Jobs[0].Key)
	assert.Equal(t, plan.Jobs[1].Key, plan.Jobs[4].Key, "classes share environments with equal keys")
	assert.Equal(t, 2, plan.Concurrency)
}

func TestController_PlanOverrides(t *testing.T) {
	ctl, _ := setupController(t)
	gen := 7

	plan, err := ctl.Plan(testConfig(), pipeline.Options{
		Classes:     []domain.JobClass{domain.ClassBestEffort},
		Concurrency: 5,
		Generation:  &gen,
	})
	require.NoError(t, err)

	require.Len(t, plan.Jobs, 1)
	assert.Equal(t, 5, plan.Concurrency)
	assert.True(t, strings.HasSuffix(plan.Jobs[0].Key.String(), "|g7"))
}

func TestController_PlanErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.PipelineConfig, *pipeline.Options)
		want   error
	}{
		{
			name: "dead override",
			mutate: func(c *domain.PipelineConfig, _ *pipeline.Options) {
				cc := c.Classes[domain.ClassBestEffort]
				cc.Matrix.Overrides = []domain.OverrideRow{{Match: map[string]string{"os": "windows"}}}
				c.Classes[domain.ClassBestEffort] = cc
			},
			want: domain.ErrDeadOverride,
		},
		{
			name:   "no classes",
			mutate: func(c *domain.PipelineConfig, _ *pipeline.Options) { c.Classes = nil },
			want:   domain.ErrNoJobClasses,
		},
		{
			name: "unconfigured class",
			mutate: func(c *domain.PipelineConfig, o *pipeline.Options) {
				delete(c.Classes, domain.ClassBestEffort)
				o.Classes = []domain.JobClass{domain.ClassBestEffort}
			},
			want: domain.ErrUnknownJobClass,
		},
		{
			name:   "unknown class",
			mutate: func(_ *domain.PipelineConfig, o *pipeline.Options) { o.Classes = []domain.JobClass{"nightly"} },
			want:   domain.ErrUnknownJobClass,
		},
		{
			name:   "negative concurrency",
			mutate: func(_ *domain.PipelineConfig, o *pipeline.Options) { o.Concurrency = -1 },
			want:   domain.ErrInvalidConcurrency,
		},
		{
			name: "negative generation",
			mutate: func(_ *domain.PipelineConfig, o *pipeline.Options) {
				g := -1
				o.Generation = &g
			},
			want: domain.ErrInvalidGeneration,
		},
		{
			name:   "missing runtime axis",
			mutate: func(c *domain.PipelineConfig, _ *pipeline.Options) { c.Keys.Runtime = "node" },
			want:   domain.ErrMissingRuntimeField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctl, _ := setupController(t)
			cfg := testConfig()
			var opts pipeline.Options
			tt.mutate(cfg, &opts)

			_, err := ctl.Plan(cfg, opts)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, domain.IsConfigError(err))
		})
	}
}

func TestController_ConfigErrorStartsNoJob(t *testing.T) {
	ctl, m := setupController(t)
	cfg := testConfig()
	cc := cfg.Classes[domain.ClassBestEffort]
	cc.Matrix.Axes = append(cc.Matrix.Axes, domain.Axis{Name: "arch"})
	cfg.Classes[domain.ClassBestEffort] = cc

	m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.sink.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	res, err := ctl.Run(context.Background(), cfg, pipeline.Options{})
	require.ErrorIs(t, err, domain.ErrEmptyAxis)
	assert.Nil(t, res)
}

func TestController_BestEffortIsolation(t *testing.T) {
	ctl, m := setupController(t)

	m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(5)
	// The best-effort class runs the network mode only, and it fails.
	m.tests.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), domain.TestMode("network"), gomock.Any()).
		Return(domain.TestRun{Passed: false}, nil)
	passingTests(t, m)
	m.sink.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(6)

	res, err := ctl.Run(context.Background(), testConfig(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.PipelineSuccess, res.Status)
	assert.Len(t, res.Outcomes[domain.ClassMandatory], 4)
	require.Len(t, res.Failures(domain.ClassBestEffort), 1)
	assert.NotEmpty(t, res.RunID)

	warnings := m.warned()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "best-effort job did not succeed")
}

func TestController_MandatoryFailureNamesJobAndStep(t *testing.T) {
	ctl, m := setupController(t)
	passingTests(t, m)

	m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, job domain.JobSpec, _ domain.Snapshot, _ io.Writer) error {
			if job.ID() == "os=macos,python=3.11" {
				return errors.New("pip install exited 1")
			}
			return nil
		},
	).Times(5)
	m.sink.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	res, err := ctl.Run(context.Background(), testConfig(), pipeline.Options{})
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrPipelineFailed)
	require.ErrorIs(t, err, domain.ErrInstallFailed)
	assert.Equal(t, domain.PipelineFailure, res.Status)

	found := false
	for _, e := range err.(interface{ Unwrap() []error }).Unwrap() {
		var ze *zerr.Error
		if errors.As(e, &ze) && ze.Metadata()["job"] == "os=macos,python=3.11" {
			assert.Equal(t, "install", ze.Metadata()["step"])
			found = true
		}
	}
	assert.True(t, found, "the failing job is named in the error")
}

func TestController_PublishesPipelineAggregate(t *testing.T) {
	ctl, m := setupController(t)
	passingTests(t, m)
	cfg := testConfig()
	delete(cfg.Classes, domain.ClassBestEffort)

	m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(4)

	var mu sync.Mutex
	var pipelineReports []*domain.CoverageReport
	var runIDs []string
	m.sink.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, r *domain.CoverageReport, meta domain.ReportMetadata) error {
			mu.Lock()
			defer mu.Unlock()
			runIDs = append(runIDs, meta.RunID)
			if meta.Scope == domain.ScopePipeline {
				assert.Equal(t, domain.PipelineSuccess, meta.Pipeline)
				pipelineReports = append(pipelineReports, r)
			}
			return nil
		},
	).Times(5)

	res, err := ctl.Run(context.Background(), cfg, pipeline.Options{})
	require.NoError(t, err)

	require.Len(t, pipelineReports, 1)
	agg := pipelineReports[0]
	assert.True(t, agg.Sealed())
	assert.Equal(t, domain.LineHits{1: 2}, agg.Files["pkg/linux.py"])
	assert.Equal(t, domain.LineHits{1: 2}, agg.Files["pkg/macos.py"])
	for _, id := range runIDs {
		assert.Equal(t, res.RunID, id)
	}
}

func TestController_StatesKeepClassesApart(t *testing.T) {
	ctl, m := setupController(t)
	m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.tests.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ domain.JobSpec, _ domain.Snapshot, mode domain.TestMode, _ io.Writer) (domain.TestRun, error) {
			return domain.TestRun{Passed: mode != "network"}, nil
		},
	).AnyTimes()
	m.sink.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	res, err := ctl.Run(context.Background(), testConfig(), pipeline.Options{})
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineSuccess, res.Status)

	states := ctl.States()
	assert.Len(t, states, 5)
	assert.Equal(t, domain.StateSucceeded, states["mandatory/os=linux,python=3.12"])
	assert.Equal(t, domain.StateFailed, states["best-effort/os=linux,python=3.12"])
}

func TestController_CancellationSkipsRemainingJobs(t *testing.T) {
	ctl, m := setupController(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	m.tests.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ domain.JobSpec, _ domain.Snapshot, _ domain.TestMode, _ io.Writer) (domain.TestRun, error) {
			cancel()
			return domain.TestRun{}, ctx.Err()
		},
	).Times(1)
	m.sink.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	res, err := ctl.Run(ctx, testConfig(), pipeline.Options{Concurrency: 1})
	require.ErrorIs(t, err, domain.ErrPipelineFailed)
	require.ErrorIs(t, err, domain.ErrJobCancelled)

	for _, outcomes := range res.Outcomes {
		for _, o := range outcomes {
			assert.Equal(t, domain.JobSkipped, o.Status, o.Spec.ID())
			assert.False(t, o.Reported)
		}
	}
	for id, state := range ctl.States() {
		assert.Equal(t, domain.StateSkipped, state, id)
	}
}

func TestController_ConcurrencyLimit(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctl, m := setupController(t)
		passingTests(t, m)
		cfg := testConfig()
		delete(cfg.Classes, domain.ClassBestEffort)

		var mu sync.Mutex
		active, peak := 0, 0
		m.installer.EXPECT().Install(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(context.Context, domain.JobSpec, domain.Snapshot, io.Writer) error {
				mu.Lock()
				active++
				peak = max(peak, active)
				mu.Unlock()

				time.Sleep(time.Second)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			},
		).Times(4)
		m.sink.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

		start := time.Now()
		_, err := ctl.Run(context.Background(), cfg, pipeline.Options{Concurrency: 2})
		require.NoError(t, err)

		assert.Equal(t, 2, peak)
		assert.Equal(t, 2*time.Second, time.Since(start))
	})
}
