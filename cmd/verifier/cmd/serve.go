package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpadapter "github.com/melih/lighthouse-verify/internal/adapters/http"
	"github.com/melih/lighthouse-verify/internal/core/ports"
	"github.com/melih/lighthouse-verify/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose verification runs over an HTTP API",
	Long: `Start an HTTP server:

  POST /api/v1/runs       run a verification (JSON body overrides run.* config)
  GET  /api/v1/runs       list recorded runs (needs --history-db)
  GET  /api/v1/runs/:id   show one run
  GET  /healthz           liveness
  GET  /metrics           Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return err
		}

		store, err := openHistory(cfg)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		var rec ports.RunRecorder
		var history ports.RunHistory
		if store != nil {
			defer store.Close()
			rec, history = store, store
		}

		r, err := newRunner(cfg, log, rec, os.Stderr)
		if err != nil {
			return err
		}

		app := httpadapter.NewApp(httpadapter.NewRunHandler(r, history, cfg.Run, log))

		errCh := make(chan error, 1)
		go func() {
			log.Info("server starting", "addr", cfg.ServeAddr)
			errCh <- app.Listen(cfg.ServeAddr)
		}()

		select {
		case err := <-errCh:
			return err
		case <-cmd.Context().Done():
			log.Info("shutting down")
			if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
				return err
			}
			if err := <-errCh; err != nil && !errors.Is(err, cmd.Context().Err()) {
				return err
			}
			return nil
		}
	},
}

func init() {
	serveCmd.Flags().String("addr", ":3000", "listen address")
	bindFlag("serve.addr", serveCmd, "addr")
	rootCmd.AddCommand(serveCmd)
}
