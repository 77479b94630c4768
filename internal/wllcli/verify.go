package wllcli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/worldline-vcs/wll/internal/replay"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the five integrity checks over the current worldline's receipt chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		worldline, _, err := r.currentWorldline()
		if err != nil {
			return fmt.Errorf("verify: resolve HEAD: %w", err)
		}

		v := replay.NewStreamValidator(r.ledger)
		report, err := v.Validate(worldline)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "worldline %s: %d receipts\n", report.Worldline, report.ReceiptCount)
		fmt.Fprintf(out, "  hash chain valid:      %t\n", report.HashChainValid)
		fmt.Fprintf(out, "  sequence monotonic:    %t\n", report.SequenceMonotonic)
		fmt.Fprintf(out, "  outcomes attributed:   %t\n", report.OutcomesAttributed)
		fmt.Fprintf(out, "  snapshots anchored:    %t\n", report.SnapshotsAnchored)
		fmt.Fprintf(out, "  temporal monotonic:    %t\n", report.TemporalMonotonic)
		for _, v := range report.Violations {
			fmt.Fprintf(out, "  violation at seq %d [%s]: %s\n", v.Seq, v.Kind, v.Detail)
		}
		return nil
	},
}
