package ledger

import (
	"fmt"

	"github.com/worldline-vcs/wll/internal/crypto"
)

// SequenceRaceError is returned when a concurrent writer advanced the head
// before this append could claim the next seq. Callers retry transparently
// up to a bounded number of attempts, per §4.5.
type SequenceRaceError struct {
	Worldline crypto.ObjectId
	Expected  uint64
}

func (e *SequenceRaceError) Error() string {
	return fmt.Sprintf("ledger: sequence race on worldline %s: expected to claim seq %d", e.Worldline, e.Expected)
}

// PairingBrokenError is returned by AppendOutcome when the head does not
// equal the commitment hash the outcome claims to follow, per §4.5's state
// machine: only AppendOutcome for the pending commitment is legal in S1.
type PairingBrokenError struct {
	Worldline crypto.ObjectId
	Want      crypto.ObjectId
	Head      crypto.ObjectId
	// Reason overrides the default "outcome names a stale commitment"
	// message, used for the other S1 violation: any non-outcome write
	// while the head is an unpaired accepted commitment.
	Reason string
	// Transient marks the case where a commit/snapshot/ref attempt found
	// the worldline in S1 because another writer's commitment is still
	// in flight — the condition clears once that writer appends its
	// outcome, so callers retry rather than fail outright.
	Transient bool
}

func (e *PairingBrokenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("ledger: pairing broken on worldline %s: %s", e.Worldline, e.Reason)
	}
	return fmt.Sprintf("ledger: pairing broken on worldline %s: outcome names commitment %s but head is %s",
		e.Worldline, e.Want, e.Head)
}

// UnknownWorldlineError is returned by read operations against a worldline
// with no receipts.
type UnknownWorldlineError struct {
	Worldline crypto.ObjectId
}

func (e *UnknownWorldlineError) Error() string {
	return fmt.Sprintf("ledger: unknown worldline %s", e.Worldline)
}

// NotFoundError is returned when a lookup by hash or seq finds nothing.
type NotFoundError struct {
	Detail string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("ledger: not found: %s", e.Detail) }
