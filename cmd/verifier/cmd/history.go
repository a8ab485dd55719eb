package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [run_id]",
	Short: "List recorded runs, or show one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		store, err := openHistory(cfg)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		if store == nil {
			return &ExitError{Code: 2, Err: errors.New("no history database; pass --history-db or set VERIFY_HISTORY_DB")}
		}
		defer store.Close()

		asJSON, _ := cmd.Flags().GetBool("json")
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, run)
			}
			printRun(out, run)
			return nil
		}

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded yet.")
			return nil
		}
		printRunList(out, runs)
		return nil
	},
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of runs to list")
	historyCmd.Flags().Bool("json", false, "print as JSON")
	rootCmd.AddCommand(historyCmd)
}
