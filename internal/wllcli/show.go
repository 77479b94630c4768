package wllcli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/worldline-vcs/wll/internal/ledger"
)

var showCmd = &cobra.Command{
	Use:   "show [seq]",
	Short: "Print a receipt from the current worldline's chain, by sequence number (defaults to HEAD)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		worldline, _, err := r.currentWorldline()
		if err != nil {
			return fmt.Errorf("show: resolve HEAD: %w", err)
		}

		var receipt ledger.Receipt
		if len(args) == 1 {
			seq, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("show: invalid seq %q: %w", args[0], err)
			}
			receipt, err = r.ledger.GetBySeq(worldline, seq)
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
		} else {
			receipt, err = r.ledger.Head(worldline)
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "seq:       %d\n", receipt.Seq)
		fmt.Fprintf(out, "hash:      %s\n", receipt.ReceiptHash)
		fmt.Fprintf(out, "prev:      %s\n", receipt.PrevHash)
		fmt.Fprintf(out, "worldline: %s\n", receipt.Worldline)
		fmt.Fprintf(out, "kind:      %s\n", receipt.Kind)
		fmt.Fprintf(out, "time:      physical=%dms logical=%d node=%d\n",
			receipt.Timestamp.PhysicalMS, receipt.Timestamp.Logical, receipt.Timestamp.NodeID)

		switch receipt.Kind {
		case ledger.KindCommitment:
			p, err := receipt.DecodeCommitment()
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			fmt.Fprintf(out, "intent:    %s\n", p.Intent)
			fmt.Fprintf(out, "class:     %s\n", p.Class)
			fmt.Fprintf(out, "accepted:  %t\n", p.Accepted)
			if !p.Accepted {
				fmt.Fprintf(out, "reasons:   %v\n", p.RejectReasons)
			}
		case ledger.KindOutcome:
			p, err := receipt.DecodeOutcome()
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			fmt.Fprintf(out, "commit:    %s\n", p.CommitmentReceiptHash)
			fmt.Fprintf(out, "accepted:  %t\n", p.Accepted)
			for k, v := range p.StateUpdates {
				fmt.Fprintf(out, "  set %s = %s\n", k, v)
			}
		case ledger.KindSnapshot:
			p, err := receipt.DecodeSnapshot()
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			fmt.Fprintf(out, "anchor:    %s\n", p.AnchorHash)
			fmt.Fprintf(out, "stateroot: %s\n", p.AnchoredStateRoot)
		case ledger.KindBranch, ledger.KindTag:
			p, err := receipt.DecodeRef()
			if err != nil {
				return fmt.Errorf("show: %w", err)
			}
			fmt.Fprintf(out, "name:      %s\n", p.Name)
			fmt.Fprintf(out, "target:    %s\n", p.ReceiptHash)
		}
		return nil
	},
}
