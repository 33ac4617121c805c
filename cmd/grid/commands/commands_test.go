package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/grid/cmd/grid/commands"
	"go.trai.ch/grid/internal/app"
	"go.trai.ch/grid/internal/build"
	"go.trai.ch/grid/internal/core/domain"
)

type mockApp struct {
	runFunc   func(ctx context.Context, opts app.RunOptions) error
	planFunc  func(ctx context.Context, opts app.RunOptions) error
	cleanFunc func(ctx context.Context, opts app.CleanOptions) error
}

func (m *mockApp) Run(ctx context.Context, opts app.RunOptions) error {
	if m.runFunc != nil {
		return m.runFunc(ctx, opts)
	}
	return nil
}

func (m *mockApp) Plan(ctx context.Context, opts app.RunOptions) error {
	if m.planFunc != nil {
		return m.planFunc(ctx, opts)
	}
	return nil
}

func (m *mockApp) Clean(ctx context.Context, opts app.CleanOptions) error {
	if m.cleanFunc != nil {
		return m.cleanFunc(ctx, opts)
	}
	return nil
}

func TestCommands_Run(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var captured app.RunOptions
		mock := &mockApp{
			runFunc: func(_ context.Context, opts app.RunOptions) error {
				captured = opts
				return nil
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{
			"run", "-c", "ci/grid.yaml", "--class", "mandatory", "--class", "best-effort",
			"-j", "4", "--generation", "2", "--no-cache", "-o", "linear",
		})
		require.NoError(t, cli.Execute(context.Background()))

		assert.Equal(t, "ci/grid.yaml", captured.ConfigPath)
		assert.Equal(t, []string{"mandatory", "best-effort"}, captured.Classes)
		assert.Equal(t, 4, captured.Jobs)
		require.NotNil(t, captured.Generation)
		assert.Equal(t, 2, *captured.Generation)
		assert.True(t, captured.NoCache)
		assert.Equal(t, "linear", captured.OutputMode)
	})

	t.Run("generation is unset by default", func(t *testing.T) {
		var captured app.RunOptions
		mock := &mockApp{
			runFunc: func(_ context.Context, opts app.RunOptions) error {
				captured = opts
				return nil
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"run"})
		require.NoError(t, cli.Execute(context.Background()))

		assert.Nil(t, captured.Generation)
		assert.Equal(t, ".", captured.ConfigPath)
		assert.Equal(t, "auto", captured.OutputMode)
	})

	t.Run("ci flag selects linear output", func(t *testing.T) {
		var captured app.RunOptions
		mock := &mockApp{
			runFunc: func(_ context.Context, opts app.RunOptions) error {
				captured = opts
				return nil
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"run", "--ci"})
		require.NoError(t, cli.Execute(context.Background()))
		assert.Equal(t, "linear", captured.OutputMode)
	})

	t.Run("rejects unknown output mode", func(t *testing.T) {
		mock := &mockApp{
			runFunc: func(context.Context, app.RunOptions) error {
				panic("should not be called")
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"run", "--output", "fancy"})
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))

		err := cli.Execute(context.Background())
		require.ErrorIs(t, err, domain.ErrConfig)
		assert.Contains(t, err.Error(), "auto, linear")
	})

	t.Run("returns error on run failure", func(t *testing.T) {
		mock := &mockApp{
			runFunc: func(context.Context, app.RunOptions) error {
				return errors.New("simulated error")
			},
		}

		cli := commands.New(mock)
		cli.SetArgs([]string{"run"})
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))

		err := cli.Execute(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})

	t.Run("rejects positional arguments", func(t *testing.T) {
		cli := commands.New(&mockApp{})
		cli.SetArgs([]string{"run", "target"})
		cli.SetOutput(new(bytes.Buffer), new(bytes.Buffer))

		require.Error(t, cli.Execute(context.Background()))
	})
}

func TestCommands_Plan(t *testing.T) {
	var captured app.RunOptions
	called := false
	mock := &mockApp{
		planFunc: func(_ context.Context, opts app.RunOptions) error {
			captured = opts
			called = true
			return nil
		},
	}

	cli := commands.New(mock)
	cli.SetArgs([]string{"plan", "--class", "mandatory", "-n"})
	require.NoError(t, cli.Execute(context.Background()))

	assert.True(t, called)
	assert.Equal(t, []string{"mandatory"}, captured.Classes)
	assert.True(t, captured.NoCache)
}

func TestCommands_Clean(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want app.CleanOptions
	}{
		{
			name: "default removes cache",
			args: []string{"clean"},
			want: app.CleanOptions{ConfigPath: ".", Cache: true},
		},
		{
			name: "reports only",
			args: []string{"clean", "--reports"},
			want: app.CleanOptions{ConfigPath: ".", Reports: true},
		},
		{
			name: "tools only",
			args: []string{"clean", "-t", "-c", "grid.yaml"},
			want: app.CleanOptions{ConfigPath: "grid.yaml", Tools: true},
		},
		{
			name: "all",
			args: []string{"clean", "--all"},
			want: app.CleanOptions{ConfigPath: ".", Cache: true, Reports: true, Tools: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured app.CleanOptions
			mock := &mockApp{
				cleanFunc: func(_ context.Context, opts app.CleanOptions) error {
					captured = opts
					return nil
				},
			}

			cli := commands.New(mock)
			cli.SetArgs(tt.args)
			require.NoError(t, cli.Execute(context.Background()))
			assert.Equal(t, tt.want, captured)
		})
	}
}

func TestCommands_LogFormat(t *testing.T) {
	var gotJSON bool
	calls := 0

	cli := commands.New(&mockApp{})
	cli.OnLogFormat(func(json bool) {
		gotJSON = json
		calls++
	})
	cli.SetArgs([]string{"plan", "--log-json"})
	require.NoError(t, cli.Execute(context.Background()))

	assert.Equal(t, 1, calls)
	assert.True(t, gotJSON)
}

func TestCommands_Version(t *testing.T) {
	originalVersion, originalCommit, originalDate := build.Version, build.Commit, build.Date
	t.Cleanup(func() {
		build.Version, build.Commit, build.Date = originalVersion, originalCommit, originalDate
	})
	build.Version = "1.2.3"
	build.Commit = "abc123"
	build.Date = "2026-01-01"

	t.Run("version command", func(t *testing.T) {
		cli := commands.New(&mockApp{})
		buf := new(bytes.Buffer)
		cli.SetOutput(buf, buf)
		cli.SetArgs([]string{"version"})

		require.NoError(t, cli.Execute(context.Background()))
		assert.Equal(t, "grid version 1.2.3 (commit: abc123, date: 2026-01-01)\n", buf.String())
	})

	t.Run("version flag", func(t *testing.T) {
		cli := commands.New(&mockApp{})
		buf := new(bytes.Buffer)
		cli.SetOutput(buf, buf)
		cli.SetArgs([]string{"--version"})

		require.NoError(t, cli.Execute(context.Background()))
		assert.Contains(t, buf.String(), "grid version 1.2.3 (commit: abc123, date: 2026-01-01)")
	})
}
