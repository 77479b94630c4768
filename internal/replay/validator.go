// Package replay implements the Validator & Replay engine (C7): linear
// integrity scanning of a worldline's receipt chain, deterministic
// re-application of its outcomes into a state map, and snapshot-assisted
// projection that short-circuits full replay. The validator follows the
// same single-pass scan-and-verify style as the ledger's own chain walk,
// generalized from a yes/no integrity check to five independently
// reported properties.
package replay

import (
	"fmt"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/ledger"
)

// ViolationKind names the category of a single integrity failure found by
// StreamValidator, per §4.7.
type ViolationKind string

const (
	SequenceGap        ViolationKind = "SequenceGap"
	HashChainBreak     ViolationKind = "HashChainBreak"
	HashMismatch       ViolationKind = "HashMismatch"
	UnattributedOutcome ViolationKind = "UnattributedOutcome"
	UnanchoredSnapshot  ViolationKind = "UnanchoredSnapshot"
	TemporalRegression  ViolationKind = "TemporalRegression"
	PairingViolation    ViolationKind = "PairingViolation"
)

// Violation names the offending seq and the kind of failure found there.
type Violation struct {
	Seq     uint64
	Kind    ViolationKind
	Detail  string
}

// ValidationReport is the outcome of a single StreamValidator.Validate call.
type ValidationReport struct {
	Worldline          crypto.ObjectId
	ReceiptCount       uint64
	HashChainValid     bool
	SequenceMonotonic  bool
	OutcomesAttributed bool
	SnapshotsAnchored  bool
	TemporalMonotonic  bool
	Violations         []Violation
}

// StreamValidator scans a worldline's chain once and checks the five
// independent properties listed in §4.7.
type StreamValidator struct {
	ledger *ledger.Ledger
}

// NewStreamValidator builds a validator over l.
func NewStreamValidator(l *ledger.Ledger) *StreamValidator {
	return &StreamValidator{ledger: l}
}

// Validate performs a single linear scan of worldline's chain, checking
// hash-chain integrity, sequence monotonicity, outcome attribution,
// snapshot anchoring, and temporal monotonicity independently — a failure
// in one does not short-circuit the others.
func (v *StreamValidator) Validate(worldline crypto.ObjectId) (ValidationReport, error) {
	receipts, err := v.ledger.ReadAll(worldline)
	if err != nil {
		return ValidationReport{}, err
	}

	report := ValidationReport{
		Worldline:          worldline,
		ReceiptCount:       uint64(len(receipts)),
		HashChainValid:     true,
		SequenceMonotonic:  true,
		OutcomesAttributed: true,
		SnapshotsAnchored:  true,
		TemporalMonotonic:  true,
	}

	var prevAnchorSet bool

	for i, r := range receipts {
		r := r
		expectedSeq := uint64(i + 1)
		if r.Seq != expectedSeq {
			report.SequenceMonotonic = false
			report.Violations = append(report.Violations, Violation{
				Seq: r.Seq, Kind: SequenceGap,
				Detail: fmt.Sprintf("expected seq %d, found %d", expectedSeq, r.Seq),
			})
		}

		if i == 0 {
			if !r.PrevHash.IsZero() {
				report.HashChainValid = false
				report.Violations = append(report.Violations, Violation{
					Seq: r.Seq, Kind: HashChainBreak,
					Detail: "genesis receipt has non-zero prev_hash",
				})
			}
		} else {
			prev := receipts[i-1]
			if r.PrevHash != prev.ReceiptHash {
				report.HashChainValid = false
				report.Violations = append(report.Violations, Violation{
					Seq: r.Seq, Kind: HashChainBreak,
					Detail: fmt.Sprintf("prev_hash %s does not match predecessor's receipt_hash %s", r.PrevHash, prev.ReceiptHash),
				})
			}
		}
		if r.ComputeHash() != r.ReceiptHash {
			report.HashChainValid = false
			report.Violations = append(report.Violations, Violation{
				Seq: r.Seq, Kind: HashMismatch,
				Detail: "recomputed hash does not match stored receipt_hash",
			})
		}

		if r.Kind == ledger.KindOutcome {
			outcome, err := r.DecodeOutcome()
			if err != nil {
				report.OutcomesAttributed = false
				report.Violations = append(report.Violations, Violation{
					Seq: r.Seq, Kind: UnattributedOutcome, Detail: err.Error(),
				})
			} else if i == 0 || receipts[i-1].ReceiptHash != outcome.CommitmentReceiptHash || receipts[i-1].Kind != ledger.KindCommitment {
				report.OutcomesAttributed = false
				report.Violations = append(report.Violations, Violation{
					Seq: r.Seq, Kind: PairingViolation,
					Detail: "outcome does not immediately follow the commitment it claims to pair with",
				})
			} else if commit, err := receipts[i-1].DecodeCommitment(); err != nil || !commit.Accepted {
				report.OutcomesAttributed = false
				report.Violations = append(report.Violations, Violation{
					Seq: r.Seq, Kind: UnattributedOutcome,
					Detail: "outcome pairs with a commitment that was not accepted",
				})
			}
		}

		if r.Kind == ledger.KindSnapshot {
			snap, err := r.DecodeSnapshot()
			if err != nil {
				report.SnapshotsAnchored = false
				report.Violations = append(report.Violations, Violation{
					Seq: r.Seq, Kind: UnanchoredSnapshot, Detail: err.Error(),
				})
			} else {
				engine := &ReplayEngine{}
				result, err := engine.Replay(receipts[:i])
				if err != nil {
					report.SnapshotsAnchored = false
					report.Violations = append(report.Violations, Violation{
						Seq: r.Seq, Kind: UnanchoredSnapshot, Detail: err.Error(),
					})
				} else if stateRoot(result.State) != snap.AnchoredStateRoot {
					report.SnapshotsAnchored = false
					report.Violations = append(report.Violations, Violation{
						Seq: r.Seq, Kind: UnanchoredSnapshot,
						Detail: "anchored_state_root does not match the state recomputed through the predecessor",
					})
				}
			}
		}

		if prevAnchorSet {
			if !receipts[i-1].Timestamp.Less(r.Timestamp) {
				report.TemporalMonotonic = false
				report.Violations = append(report.Violations, Violation{
					Seq: r.Seq, Kind: TemporalRegression,
					Detail: "timestamp did not strictly increase over its predecessor",
				})
			}
		}
		prevAnchorSet = true
	}

	return report, nil
}
