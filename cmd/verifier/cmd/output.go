package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/melih/lighthouse-verify/internal/core/domain"
)

func printRun(w io.Writer, run *domain.LifecycleRun) {
	if len(run.Trail) > 0 {
		table := tablewriter.NewWriter(w)
		table.Header("Attempt", "Observed", "At")
		for _, p := range run.Trail {
			table.Append(strconv.Itoa(p.Attempt), p.Observation(), p.Timestamp.Format(time.TimeOnly))
		}
		table.Render()
	}

	if run.Diagnostics != "" {
		fmt.Fprintln(w, "\n--- container logs ---")
		fmt.Fprintln(w, strings.TrimRight(run.Diagnostics, "\n"))
		fmt.Fprintln(w, "--- end of logs ---")
	}

	switch run.Outcome {
	case domain.OutcomeSuccess:
		fmt.Fprintf(w, "\n✅ %s healthy after %d attempt(s) in %s\n", run.Config.ImageTag, len(run.Trail), run.Duration().Round(time.Millisecond))
	default:
		fmt.Fprintf(w, "\n❌ %s: %s\n", run.Outcome, run.Error)
	}
	if run.Container != nil {
		state := "removed"
		switch {
		case run.CleanupError != "":
			state = "cleanup failed: " + run.CleanupError
		case !run.CleanedUp:
			state = "NOT cleaned up"
		}
		fmt.Fprintf(w, "Container %s (%s) %s\n", run.Container.Name, run.Container.ShortID(), state)
	}
	fmt.Fprintf(w, "Run ID: %s\n", run.ID)
}

func printRunList(w io.Writer, runs []domain.LifecycleRun) {
	table := tablewriter.NewWriter(w)
	table.Header("Run ID", "Image", "Container", "Outcome", "Attempts", "Started", "Duration")
	for _, r := range runs {
		table.Append(
			r.ID,
			r.Config.ImageTag,
			r.Config.ContainerName,
			string(r.Outcome),
			strconv.Itoa(len(r.Trail)),
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration().Round(time.Millisecond).String(),
		)
	}
	table.Render()
}
