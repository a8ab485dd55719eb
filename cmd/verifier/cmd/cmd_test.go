package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-verify/internal/adapters/history/sqlite"
	"github.com/melih/lighthouse-verify/internal/config"
	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
)

type stubRunner struct {
	run *domain.LifecycleRun
	got []domain.RunConfig
	rec ports.RunRecorder
	err error
}

func (s *stubRunner) Run(ctx context.Context, cfg domain.RunConfig) (*domain.LifecycleRun, error) {
	s.got = append(s.got, cfg)
	if s.err != nil {
		return nil, s.err
	}
	run := *s.run
	run.Config = cfg
	if s.rec != nil {
		if err := s.rec.Record(ctx, &run); err != nil {
			return nil, err
		}
	}
	return &run, nil
}

func useRunner(t *testing.T, s *stubRunner) {
	t.Helper()
	orig := newRunner
	newRunner = func(_ *config.Config, _ *slog.Logger, rec ports.RunRecorder, _ io.Writer) (runner, error) {
		s.rec = rec
		return s, nil
	}
	t.Cleanup(func() { newRunner = orig })
}

func resetFlags() {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	for _, c := range append([]*cobra.Command{rootCmd}, rootCmd.Commands()...) {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	configErr = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func healthyRun() *domain.LifecycleRun {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.LifecycleRun{
		ID:      "run-1",
		Outcome: domain.OutcomeSuccess,
		Container: &domain.ContainerHandle{
			ID:   "0123456789abcdef0123",
			Name: "app-test",
		},
		Trail: []domain.ProbeResult{
			{Attempt: 1, StatusCode: 503, Timestamp: start},
			{Attempt: 2, StatusCode: 200, Timestamp: start.Add(3 * time.Second)},
		},
		CleanedUp:  true,
		StartedAt:  start,
		FinishedAt: start.Add(4 * time.Second),
	}
}

func TestRunSuccess(t *testing.T) {
	s := &stubRunner{run: healthyRun()}
	useRunner(t, s)

	out, err := execute(t, "run", "--image", "registry.local/app:ci", "--attempts", "4", "--interval", "1s")
	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(err))

	require.Len(t, s.got, 1)
	cfg := s.got[0]
	assert.Equal(t, "registry.local/app:ci", cfg.ImageTag)
	assert.Equal(t, "app-test", cfg.ContainerName)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, 8080, cfg.HostPort)
	assert.Equal(t, 3000, cfg.ContainerPort)

	assert.Contains(t, out, "503")
	assert.Contains(t, out, "healthy after 2 attempt(s)")
	assert.Contains(t, out, "0123456789ab")
	assert.Contains(t, out, "Run ID: run-1")
}

func TestRunUnhealthyExitsOne(t *testing.T) {
	run := healthyRun()
	run.Outcome = domain.OutcomeUnhealthy
	run.Error = "service never became healthy"
	run.Diagnostics = "listen EADDRINUSE\n"
	useRunner(t, &stubRunner{run: run})

	out, err := execute(t, "run", "--image", "app:ci")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, out, "listen EADDRINUSE")
	assert.Contains(t, out, "unhealthy")
}

func TestRunReportsFailedCleanup(t *testing.T) {
	run := healthyRun()
	run.CleanupError = "failed to remove container 0123456789ab: conflict"
	useRunner(t, &stubRunner{run: run})

	out, err := execute(t, "run", "--image", "app:ci")
	require.NoError(t, err, "a failed cleanup does not change the outcome")
	assert.Contains(t, out, "cleanup failed: failed to remove container 0123456789ab: conflict")
	assert.NotContains(t, out, ") removed")
}

func TestRunJSON(t *testing.T) {
	useRunner(t, &stubRunner{run: healthyRun()})

	out, err := execute(t, "run", "--image", "app:ci", "--json")
	require.NoError(t, err)

	var got domain.LifecycleRun
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, domain.OutcomeSuccess, got.Outcome)
	assert.Len(t, got.Trail, 2)
}

func TestRunInvalidConfigExitsTwo(t *testing.T) {
	s := &stubRunner{run: healthyRun()}
	useRunner(t, s)

	_, err := execute(t, "run")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
	assert.Equal(t, 2, ExitCode(err))
	assert.Empty(t, s.got)

	_, err = execute(t, "run", "--image", "app:ci", "--host-port", "70000")
	assert.Equal(t, 2, ExitCode(err))
	assert.Empty(t, s.got)
}

func TestRunRecordsHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	useRunner(t, &stubRunner{run: healthyRun()})

	_, err := execute(t, "run", "--image", "app:ci", "--history-db", db)
	require.NoError(t, err)

	out, err := execute(t, "history", "--history-db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "app:ci")
	assert.Contains(t, out, "success")

	out, err = execute(t, "history", "run-1", "--history-db", db, "--json")
	require.NoError(t, err)
	var got domain.LifecycleRun
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "run-1", got.ID)
	assert.True(t, got.CleanedUp)
}

func TestHistoryEmptyAndMissing(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	store, err := sqlite.New(db)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	out, err := execute(t, "history", "--history-db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No runs recorded yet.")

	_, err = execute(t, "history", "nope", "--history-db", db)
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
	assert.Equal(t, 1, ExitCode(err))
}

func TestHistoryRequiresDatabase(t *testing.T) {
	_, err := execute(t, "history")
	require.Error(t, err)
	assert.Equal(t, 2, ExitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 3, ExitCode(&ExitError{Code: 3}))
	assert.Equal(t, 2, ExitCode(domain.ErrInvalidConfig))
	assert.Equal(t, 1, ExitCode(domain.ErrBuildFailed))
}
