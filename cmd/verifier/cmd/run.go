package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-verify/internal/adapters/builder"
	"github.com/melih/lighthouse-verify/internal/adapters/docker"
	"github.com/melih/lighthouse-verify/internal/adapters/history/sqlite"
	"github.com/melih/lighthouse-verify/internal/adapters/httpprobe"
	"github.com/melih/lighthouse-verify/internal/config"
	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/core/lifecycle"
	"github.com/melih/lighthouse-verify/internal/core/ports"
	"github.com/melih/lighthouse-verify/internal/core/prober"
)

type runner interface {
	Run(ctx context.Context, cfg domain.RunConfig) (*domain.LifecycleRun, error)
}

// newRunner wires the driver to Docker. Tests swap it for fakes.
var newRunner = func(cfg *config.Config, log *slog.Logger, rec ports.RunRecorder, buildOut io.Writer) (runner, error) {
	containers, err := docker.NewAdapter()
	if err != nil {
		return nil, err
	}
	images, err := builder.NewBuilderAdapter(buildOut)
	if err != nil {
		return nil, err
	}
	p := prober.New(httpprobe.New(cfg.Run.ProbeTimeout), nil, log)

	opts := []lifecycle.Option{
		lifecycle.WithLogger(log),
		lifecycle.WithCleanupTimeout(cfg.CleanupTimeout),
	}
	if rec != nil {
		opts = append(opts, lifecycle.WithRecorder(rec))
	}
	return lifecycle.NewDriver(images, containers, p, opts...), nil
}

// openHistory returns nil when history is disabled.
func openHistory(cfg *config.Config) (*sqlite.Store, error) {
	if cfg.HistoryDB == "" {
		return nil, nil
	}
	store, err := sqlite.New(cfg.HistoryDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open history db: %w", err)
	}
	return store, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build, launch, verify and clean up a container",
	Long: `Build the image, start the container detached, poll its health URL until
it answers 200, and remove the container afterwards. Exits 0 only when the
service became healthy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := cfg.Run.Validate(); err != nil {
			return &ExitError{Code: 2, Err: err}
		}

		store, err := openHistory(cfg)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		var rec ports.RunRecorder
		if store != nil {
			defer store.Close()
			rec = store
		}

		var buildOut io.Writer = os.Stderr
		if quiet, _ := cmd.Flags().GetBool("quiet-build"); quiet {
			buildOut = io.Discard
		}

		r, err := newRunner(cfg, log, rec, buildOut)
		if err != nil {
			return err
		}

		run, err := r.Run(cmd.Context(), cfg.Run)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(run); err != nil {
				return err
			}
		} else {
			printRun(cmd.OutOrStdout(), run)
		}

		if code := run.Outcome.ExitCode(); code != 0 {
			return &ExitError{Code: code, Err: fmt.Errorf("verification %s: %s", run.Outcome, run.Error)}
		}
		return nil
	},
}

func init() {
	f := runCmd.Flags()
	f.StringP("image", "i", "", "image tag to build and run (required)")
	f.StringP("name", "n", "", "container name (default <image>-test)")
	f.StringP("context", "c", ".", "build context directory or git URL")
	f.String("dockerfile", "Dockerfile", "Dockerfile path inside the context")
	f.String("git-ref", "", "branch or tag to clone for git contexts")
	f.Int("host-port", 8080, "host port to publish")
	f.Int("container-port", 3000, "container port the service listens on")
	f.Int("attempts", 10, "maximum health check attempts")
	f.Duration("interval", 0, "wait between attempts (default 3s)")
	f.Duration("probe-timeout", 0, "timeout of a single health check (default 5s)")
	f.String("health-host", "localhost", "host the published port is reachable on")
	f.String("health-path", "/", "path to GET")
	f.Duration("timeout", 0, "overall deadline for the run, 0 for none")
	f.Duration("cleanup-timeout", 0, "bound on stop, remove and log capture (default 30s)")
	f.Bool("json", false, "print the run as JSON")
	f.Bool("quiet-build", false, "do not stream build output")

	for key, flag := range map[string]string{
		"run.image":          "image",
		"run.name":           "name",
		"run.context":        "context",
		"run.dockerfile":     "dockerfile",
		"run.git-ref":        "git-ref",
		"run.host-port":      "host-port",
		"run.container-port": "container-port",
		"run.attempts":       "attempts",
		"run.interval":       "interval",
		"run.probe-timeout":  "probe-timeout",
		"run.health-host":    "health-host",
		"run.health-path":    "health-path",
		"run.timeout":        "timeout",
		"cleanup-timeout":    "cleanup-timeout",
	} {
		bindFlag(key, runCmd, flag)
	}

	rootCmd.AddCommand(runCmd)
}
