package wllcli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/worldline-vcs/wll/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Deterministically re-apply the current worldline's accepted outcomes and print the resulting state",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		worldline, _, err := r.currentWorldline()
		if err != nil {
			return fmt.Errorf("replay: resolve HEAD: %w", err)
		}

		engine := &replay.ReplayEngine{}
		result, err := engine.ReplayWorldline(r.ledger, worldline)
		if err != nil {
			return fmt.Errorf("replay: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "evaluated %d receipts, applied %d outcomes\n", result.Stats.EvaluatedReceipts, result.Stats.AppliedOutcomes)

		keys := make([]string, 0, len(result.State))
		for k := range result.State {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %s = %s\n", k, result.State[k])
		}
		return nil
	},
}
