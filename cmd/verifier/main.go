package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/melih/lighthouse-verify/cmd/verifier/cmd"
)

func main() {
	// Ctrl-C cancels the run; the container is still torn down.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if msg := err.Error(); msg != "" {
			_, _ = fmt.Fprintln(os.Stderr, "Error:", msg)
		}
		stop()
		os.Exit(cmd.ExitCode(err))
	}
}
