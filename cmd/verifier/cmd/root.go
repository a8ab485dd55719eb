package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melih/lighthouse-verify/internal/config"
	"github.com/melih/lighthouse-verify/internal/core/domain"
	"github.com/melih/lighthouse-verify/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "verifier",
	Short: "Build, launch, health-check and tear down a containerized service",
	Long: `verifier builds a Docker image, starts it detached with a port mapping,
polls it over HTTP until it answers 200 or the attempt budget runs out,
prints the container logs if it never became healthy, and always stops and
removes the container it started.

Common workflows:

  Verify the app in the current directory (10 attempts, 3s apart, 8080->3000):
    verifier run --image my-app:ci

  Verify a remote repository at a branch:
    verifier run --image api:ci --context https://github.com/acme/api.git --git-ref main

  Keep a history of runs and inspect it:
    verifier run --image my-app:ci --history-db runs.db
    verifier history --history-db runs.db

  Serve the verifier over HTTP:
    verifier serve --addr :3000 --history-db runs.db

Configuration:
  Every flag can be set in a YAML config file (--config) or through
  VERIFY_* environment variables, e.g. VERIFY_RUN_IMAGE, VERIFY_RUN_ATTEMPTS,
  VERIFY_HISTORY_DB.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps a command error onto the process exit status: 2 for bad
// configuration, the run outcome's code otherwise.
func ExitCode(err error) int {
	var ee *ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.Code
	case errors.Is(err, domain.ErrInvalidConfig):
		return 2
	}
	return 1
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func initConfig() {
	v := viper.GetViper()
	config.SetDefaults(v)
	config.BindEnv(v)

	if cfgFile == "" {
		return
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		// surfaced again by loadConfig so the command fails cleanly
		configErr = fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
	}
}

var configErr error

// loadConfig resolves the typed configuration and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, io.Closer, error) {
	if configErr != nil {
		return nil, nil, nil, &ExitError{Code: 2, Err: configErr}
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, nil, &ExitError{Code: 2, Err: err}
	}
	log, closer, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, nil, &ExitError{Code: 2, Err: err}
	}
	return cfg, log, closer, nil
}

func bindFlag(key string, cmd *cobra.Command, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func bindPersistentFlag(key string, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (YAML)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text or json")
	pf.String("log-file", "", "also write logs to this file (rotated)")
	pf.String("history-db", "", "SQLite file recording every run (empty disables history)")

	bindPersistentFlag("log.level", "log-level")
	bindPersistentFlag("log.format", "log-format")
	bindPersistentFlag("log.file", "log-file")
	bindPersistentFlag("history.db", "history-db")
}
