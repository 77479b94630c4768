package wllcli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/gate"
	"github.com/worldline-vcs/wll/internal/refs"
)

var sealSetFlags []string

var sealCmd = &cobra.Command{
	Use:   "seal <message>",
	Short: "Evaluate a commitment through the policy gate and append it to the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}
		defer r.Close()

		worldline, branchName, err := r.currentWorldline()
		if err != nil {
			return fmt.Errorf("seal: resolve HEAD: %w", err)
		}

		updates, err := parseSetFlags(sealSetFlags)
		if err != nil {
			return err
		}

		commitID, err := gate.NewCommitmentId()
		if err != nil {
			return fmt.Errorf("seal: mint commitment id: %w", err)
		}
		proposal := &gate.Proposal{
			Message:      args[0],
			Class:        gate.ContentUpdate(),
			Author:       r.identity.WorldlineId,
			CommitmentID: commitID,
		}

		pipeline := defaultPipeline()
		if cfgPath := r.cfg.Core.Dir + "/pipeline.yaml"; fileExists(cfgPath) {
			pl, err := loadConfiguredPipeline(cfgPath)
			if err != nil {
				return fmt.Errorf("seal: load pipeline config: %w", err)
			}
			pipeline = pl
		}

		g := gate.NewGate(pipeline, gate.RuleContext{Store: r.store})
		decision, err := g.Evaluate(context.Background(), proposal)
		if err != nil {
			return fmt.Errorf("seal: evaluate policy: %w", err)
		}

		commit, err := r.ledger.AppendCommitment(worldline, proposal, decision)
		if err != nil {
			return fmt.Errorf("seal: append commitment: %w", err)
		}
		if !decision.Accepted {
			fmt.Fprintf(cmd.OutOrStdout(), "rejected: %s\n", strings.Join(decision.Reasons, "; "))
			return nil
		}

		outcome, err := r.ledger.AppendOutcome(worldline, commit.ReceiptHash, nil, updates)
		if err != nil {
			return fmt.Errorf("seal: append outcome: %w", err)
		}

		if branchName != "" {
			if _, err := advanceBranch(r, branchName, outcome.ReceiptHash); err != nil {
				return fmt.Errorf("seal: advance branch %s: %w", branchName, err)
			}
		}


		fmt.Fprintf(cmd.OutOrStdout(), "sealed seq %d: %s\n", outcome.Seq, outcome.ReceiptHash)
		return nil
	},
}

func init() {
	sealCmd.Flags().StringArrayVar(&sealSetFlags, "set", nil, "state update in key=value form, repeatable")
}

func parseSetFlags(flags []string) (map[string]string, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	updates := make(map[string]string, len(flags))
	for _, f := range flags {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("seal: malformed --set %q, expected key=value", f)
		}
		updates[k] = v
	}
	return updates, nil
}

// advanceBranch retries UpdateBranch once against the branch's latest tip
// on a stale-tip race, since a concurrent sibling process may have sealed
// between currentWorldline's read and this call.
func advanceBranch(r *repo, name string, newTip crypto.ObjectId) (refs.Branch, error) {
	branch, err := r.refs.GetBranch(name)
	if err != nil {
		return refs.Branch{}, err
	}
	updated, err := r.refs.UpdateBranch(name, branch.Tip, newTip)
	if _, stale := err.(*refs.StaleTipError); stale {
		branch, err = r.refs.GetBranch(name)
		if err != nil {
			return refs.Branch{}, err
		}
		return r.refs.UpdateBranch(name, branch.Tip, newTip)
	}
	return updated, err
}
