// Package lifecycle sequences one verification run: build the image, launch
// the container, poll it until healthy, capture logs if it never is, and tear
// the container down on every path once it exists.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
	"github.com/melih/lighthouse-verify/internal/core/prober"
	"github.com/melih/lighthouse-verify/internal/metrics"
)

const (
	defaultCleanupTimeout = 30 * time.Second
	maxDiagnosticsBytes   = 1 << 20
	truncatedMarker       = "\n[logs truncated]\n"
)

// HealthProber is the polling policy the driver delegates to.
type HealthProber interface {
	Poll(ctx context.Context, url string, maxAttempts int, interval time.Duration) ([]domain.ProbeResult, error)
}

// Driver runs LifecycleRuns against injected collaborators.
type Driver struct {
	builder    ports.BuilderService
	containers ports.ContainerService
	prober     HealthProber
	recorder   ports.RunRecorder
	clock      ports.Clock
	log        *slog.Logger
	newID      func() string

	cleanupTimeout time.Duration
}

// Option configures a Driver.
type Option func(*Driver)

// WithRecorder persists every finished run.
func WithRecorder(r ports.RunRecorder) Option {
	return func(d *Driver) { d.recorder = r }
}

func WithClock(c ports.Clock) Option {
	return func(d *Driver) { d.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithCleanupTimeout bounds stop+remove, which run detached from the run's
// own cancellation.
func WithCleanupTimeout(t time.Duration) Option {
	return func(d *Driver) { d.cleanupTimeout = t }
}

func WithIDGenerator(fn func() string) Option {
	return func(d *Driver) { d.newID = fn }
}

// NewDriver wires a Driver. The builder and container service are usually the
// Docker adapters.
func NewDriver(builder ports.BuilderService, containers ports.ContainerService, hp HealthProber, opts ...Option) *Driver {
	d := &Driver{
		builder:        builder,
		containers:     containers,
		prober:         hp,
		clock:          prober.SystemClock{},
		log:            slog.Default(),
		newID:          uuid.NewString,
		cleanupTimeout: defaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes Build, Launch, VerifyHealthy, CaptureDiagnostics (only when
// unhealthy) and Cleanup, in that order. Cleanup runs exactly once whenever
// Launch produced a handle, including on cancellation or panic. The returned
// error is non-nil only when cfg is invalid and nothing was attempted; every
// other failure is reported through the run's Outcome.
func (d *Driver) Run(ctx context.Context, cfg domain.RunConfig) (*domain.LifecycleRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	run := &domain.LifecycleRun{
		ID:        d.newID(),
		Config:    cfg,
		Outcome:   domain.OutcomePending,
		StartedAt: d.clock.Now(),
	}
	log := d.log.With("run_id", run.ID, "container", cfg.ContainerName, "image", cfg.ImageTag)
	defer d.finish(ctx, run, log)

	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	err := d.execute(ctx, run, log)
	run.Outcome = domain.OutcomeFor(err)
	if err != nil {
		run.Error = err.Error()
	}
	return run, nil
}

func (d *Driver) execute(ctx context.Context, run *domain.LifecycleRun, log *slog.Logger) error {
	cfg := run.Config

	if err := d.Build(ctx, cfg); err != nil {
		log.Error("build failed", "error", err)
		return err
	}

	handle, err := d.Launch(ctx, cfg)
	if err != nil {
		log.Error("launch failed", "error", err)
		return err
	}
	run.Container = &handle

	l := &lease{driver: d, handle: handle}
	defer func() {
		run.CleanedUp = true
		if err := l.release(ctx); err != nil {
			run.CleanupError = err.Error()
			log.Error("cleanup failed", "container_id", handle.ShortID(), "error", err)
		}
	}()

	trail, err := d.VerifyHealthy(ctx, handle, cfg)
	run.Trail = trail
	if err != nil {
		log.Error("service never became healthy", "attempts", len(trail), "error", err)
		run.Diagnostics = d.CaptureDiagnostics(ctx, handle)
		return err
	}
	log.Info("service healthy", "attempts", len(trail))
	return nil
}

// Build builds cfg.ImageTag from cfg.BuildContext. Build failures are
// deterministic, so there is no retry.
func (d *Driver) Build(ctx context.Context, cfg domain.RunConfig) error {
	d.log.Info("building image", "image", cfg.ImageTag, "context", cfg.BuildContext)
	_, err := d.builder.BuildImage(ctx, ports.BuildRequest{
		ImageTag:   cfg.ImageTag,
		Context:    cfg.BuildContext,
		Dockerfile: cfg.Dockerfile,
		GitRef:     cfg.GitRef,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrBuildFailed, err)
	}
	return nil
}

// Launch starts the container detached with the host to container port
// mapping. On failure no handle exists and nothing needs cleaning up.
func (d *Driver) Launch(ctx context.Context, cfg domain.RunConfig) (domain.ContainerHandle, error) {
	d.log.Info("starting container",
		"container", cfg.ContainerName,
		"ports", fmt.Sprintf("%d:%d", cfg.HostPort, cfg.ContainerPort),
	)
	handle, err := d.containers.StartContainer(ctx, ports.LaunchSpec{
		Image:         cfg.ImageTag,
		Name:          cfg.ContainerName,
		HostPort:      cfg.HostPort,
		ContainerPort: cfg.ContainerPort,
	})
	if err != nil {
		return domain.ContainerHandle{}, fmt.Errorf("%w: %w", domain.ErrRunFailed, err)
	}
	return handle, nil
}

// VerifyHealthy polls the container's health URL.
func (d *Driver) VerifyHealthy(ctx context.Context, handle domain.ContainerHandle, cfg domain.RunConfig) ([]domain.ProbeResult, error) {
	url := cfg.HealthURL()
	d.log.Info("waiting for service",
		"container_id", handle.ShortID(),
		"url", url,
		"max_attempts", cfg.MaxAttempts,
		"interval", cfg.Interval,
	)
	return d.prober.Poll(ctx, url, cfg.MaxAttempts, cfg.Interval)
}

// CaptureDiagnostics fetches the container's logs. It is best-effort: any
// failure is logged and an empty string returned.
func (d *Driver) CaptureDiagnostics(ctx context.Context, handle domain.ContainerHandle) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cleanupTimeout)
	defer cancel()

	rc, err := d.containers.GetContainerLogs(ctx, handle.ID)
	if err != nil {
		d.log.Warn("could not fetch container logs", "container_id", handle.ShortID(), "error", err)
		return ""
	}
	defer rc.Close()

	var sb strings.Builder
	n, err := io.Copy(&sb, io.LimitReader(rc, maxDiagnosticsBytes+1))
	if err != nil {
		d.log.Warn("container logs incomplete", "container_id", handle.ShortID(), "error", err)
	}
	logs := sb.String()
	if n > maxDiagnosticsBytes {
		d.log.Warn("container logs truncated", "container_id", handle.ShortID(), "limit_bytes", maxDiagnosticsBytes)
		logs = logs[:maxDiagnosticsBytes] + truncatedMarker
	}
	return logs
}

// Cleanup stops and removes the container. Remove is attempted even if stop
// fails. It ignores the caller's cancellation so teardown still happens
// after a deadline has passed.
func (d *Driver) Cleanup(ctx context.Context, handle domain.ContainerHandle) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cleanupTimeout)
	defer cancel()

	d.log.Info("cleaning up container", "container", handle.Name, "container_id", handle.ShortID())

	var errs []error
	if err := d.containers.StopContainer(ctx, handle.ID); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop container: %w", err))
	}
	if err := d.containers.RemoveContainer(ctx, handle.ID); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove container: %w", err))
	}
	return errors.Join(errs...)
}

func (d *Driver) finish(ctx context.Context, run *domain.LifecycleRun, log *slog.Logger) {
	run.FinishedAt = d.clock.Now()
	metrics.ObserveRun(string(run.Outcome), run.Duration())

	log.Info("run finished",
		"outcome", run.Outcome,
		"attempts", len(run.Trail),
		"duration", run.Duration(),
		"cleaned_up", run.CleanedUp,
	)

	if d.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cleanupTimeout)
	defer cancel()
	if err := d.recorder.Record(rctx, run); err != nil {
		log.Warn("failed to record run", "error", err)
	}
}

// lease releases a launched container at most once.
type lease struct {
	driver *Driver
	handle domain.ContainerHandle
	once   sync.Once
	err    error
}

func (l *lease) release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.driver.Cleanup(ctx, l.handle)
	})
	return l.err
}
