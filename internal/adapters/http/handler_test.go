package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/fakes"
)

type stubRunner struct {
	outcome domain.Outcome
	started chan domain.RunConfig
	block   chan struct{}
	calls   int
}

func (s *stubRunner) Run(ctx context.Context, cfg domain.RunConfig) (*domain.LifecycleRun, error) {
	s.calls++
	if s.started != nil {
		s.started <- cfg
	}
	if s.block != nil {
		<-s.block
	}
	return &domain.LifecycleRun{ID: "run-1", Config: cfg, Outcome: s.outcome}, nil
}

func defaults() domain.RunConfig {
	return domain.RunConfig{
		ImageTag:      "web:ci",
		ContainerName: "web-test",
		BuildContext:  ".",
		HostPort:      8080,
		ContainerPort: 3000,
		MaxAttempts:   10,
		Interval:      3 * time.Second,
		HealthHost:    "localhost",
		HealthPath:    "/",
	}
}

func newTestApp(runner Runner, history *fakes.Recorder) *RunHandler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if history == nil {
		return NewRunHandler(runner, nil, defaults(), log)
	}
	return NewRunHandler(runner, history, defaults(), log)
}

func postRun(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestStartRun_Success(t *testing.T) {
	runner := &stubRunner{outcome: domain.OutcomeSuccess}
	app := NewApp(newTestApp(runner, nil))

	resp, err := app.Test(postRun(`{"image":"api:sha-1","attempts":4,"interval":"1s"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	run := decode[domain.LifecycleRun](t, resp)
	assert.Equal(t, domain.OutcomeSuccess, run.Outcome)
	assert.Equal(t, "api:sha-1", run.Config.ImageTag)
	assert.Equal(t, "api-test", run.Config.ContainerName, "name follows the new image")
	assert.Equal(t, 8080, run.Config.HostPort, "unset fields keep defaults")
	assert.Equal(t, 4, run.Config.MaxAttempts)
	assert.Equal(t, time.Second, run.Config.Interval)
}

func TestStartRun_UnhealthyIs422(t *testing.T) {
	app := NewApp(newTestApp(&stubRunner{outcome: domain.OutcomeUnhealthy}, nil))

	resp, err := app.Test(postRun(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestStartRun_BadRequests(t *testing.T) {
	runner := &stubRunner{outcome: domain.OutcomeSuccess}
	app := NewApp(newTestApp(runner, nil))

	for _, body := range []string{`{"interval":"soon"}`, `{"host_port":70000}`, `{not json`} {
		resp, err := app.Test(postRun(body))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
	assert.Zero(t, runner.calls)
}

func TestStartRun_RejectsConcurrentRunForSameContainer(t *testing.T) {
	runner := &stubRunner{
		outcome: domain.OutcomeSuccess,
		started: make(chan domain.RunConfig, 1),
		block:   make(chan struct{}),
	}
	app := NewApp(newTestApp(runner, nil))

	first := make(chan *http.Response, 1)
	go func() {
		resp, err := app.Test(postRun(`{}`), -1)
		if err != nil {
			t.Errorf("first request: %v", err)
		}
		first <- resp
	}()
	<-runner.started

	resp, err := app.Test(postRun(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(runner.block)
	firstResp := <-first
	require.NotNil(t, firstResp)
	assert.Equal(t, http.StatusCreated, firstResp.StatusCode)

	// the name is free again
	runner.started = nil
	runner.block = nil
	resp, err = app.Test(postRun(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestListAndGetRuns(t *testing.T) {
	history := &fakes.Recorder{}
	require.NoError(t, history.Record(context.Background(), &domain.LifecycleRun{ID: "a", Outcome: domain.OutcomeSuccess}))
	require.NoError(t, history.Record(context.Background(), &domain.LifecycleRun{ID: "b", Outcome: domain.OutcomeUnhealthy}))
	app := NewApp(newTestApp(&stubRunner{}, history))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	runs := decode[[]domain.LifecycleRun](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, "b", runs[0].ID)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/a", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.OutcomeSuccess, decode[domain.LifecycleRun](t, resp).Outcome)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRuns_HistoryDisabled(t *testing.T) {
	app := NewApp(newTestApp(&stubRunner{}, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthzAndMetrics(t *testing.T) {
	app := NewApp(newTestApp(&stubRunner{}, nil))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
