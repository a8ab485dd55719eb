package http

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-verify/internal/config"
	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/ports"
)

// Runner executes one lifecycle run.
type Runner interface {
	Run(ctx context.Context, cfg domain.RunConfig) (*domain.LifecycleRun, error)
}

type RunHandler struct {
	runner   Runner
	history  ports.RunHistory
	defaults domain.RunConfig
	log      *slog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewRunHandler creates the handler. history may be nil, in which case the
// listing endpoints answer 503.
func NewRunHandler(runner Runner, history ports.RunHistory, defaults domain.RunConfig, log *slog.Logger) *RunHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RunHandler{
		runner:   runner,
		history:  history,
		defaults: defaults,
		log:      log,
		busy:     make(map[string]struct{}),
	}
}

// StartRunRequest overrides fields of the server's default run config.
// Zero values keep the default, except that a new image without a name gets
// a container name derived from the image.
type StartRunRequest struct {
	Image         string `json:"image"`
	Name          string `json:"name"`
	Context       string `json:"context"`
	Dockerfile    string `json:"dockerfile"`
	GitRef        string `json:"git_ref"`
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
	Attempts      int    `json:"attempts"`
	Interval      string `json:"interval"`
	HealthPath    string `json:"health_path"`
}

func (r StartRunRequest) apply(cfg domain.RunConfig) (domain.RunConfig, error) {
	setString(&cfg.ImageTag, r.Image)
	if r.Image != "" && r.Name == "" {
		cfg.ContainerName = config.DefaultContainerName(r.Image)
	}
	setString(&cfg.ContainerName, r.Name)
	setString(&cfg.BuildContext, r.Context)
	setString(&cfg.Dockerfile, r.Dockerfile)
	setString(&cfg.GitRef, r.GitRef)
	setString(&cfg.HealthPath, r.HealthPath)
	setInt(&cfg.HostPort, r.HostPort)
	setInt(&cfg.ContainerPort, r.ContainerPort)
	setInt(&cfg.MaxAttempts, r.Attempts)
	if r.Interval != "" {
		d, err := time.ParseDuration(r.Interval)
		if err != nil {
			return cfg, errors.New("invalid interval: " + err.Error())
		}
		cfg.Interval = d
	}
	return cfg, nil
}

// StartRun runs a verification synchronously and returns the finished run.
// A second request for a container name that is already under test is
// rejected, since both runs would fight over the same container.
func (h *RunHandler) StartRun(c *fiber.Ctx) error {
	var req StartRunRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	cfg, err := req.apply(h.defaults)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if !h.acquire(cfg.ContainerName) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "a run for container " + cfg.ContainerName + " is already in progress",
		})
	}
	defer h.release(cfg.ContainerName)

	// blocks for the whole build and poll window
	run, err := h.runner.Run(c.Context(), cfg)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	status := fiber.StatusCreated
	if !run.Succeeded() {
		status = fiber.StatusUnprocessableEntity
	}
	return c.Status(status).JSON(run)
}

func (h *RunHandler) ListRuns(c *fiber.Ctx) error {
	if h.history == nil {
		return historyDisabled(c)
	}
	runs, err := h.history.List(c.Context(), c.QueryInt("limit", 20))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if runs == nil {
		runs = []domain.LifecycleRun{}
	}
	return c.JSON(runs)
}

func (h *RunHandler) GetRun(c *fiber.Ctx) error {
	if h.history == nil {
		return historyDisabled(c)
	}
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Run ID is required",
		})
	}

	run, err := h.history.Get(c.Context(), id)
	if errors.Is(err, domain.ErrRunNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(run)
}

func (h *RunHandler) acquire(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, taken := h.busy[name]; taken {
		return false
	}
	h.busy[name] = struct{}{}
	return true
}

func (h *RunHandler) release(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.busy, name)
}

func historyDisabled(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": "run history is disabled; start the server with --history-db",
	})
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
