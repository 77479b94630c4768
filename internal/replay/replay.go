package replay

import (
	"sort"
	"strings"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/ledger"
)

// Stats counts what a replay did, per §4.7.
type Stats struct {
	AppliedOutcomes   uint64
	EvaluatedReceipts uint64
}

// StateResult is the output of a replay: the reconstructed
// string->string state map and the counters from §4.7.
type StateResult struct {
	State map[string]string
	Stats Stats
}

// ReplayEngine applies a worldline's outcomes in order to reconstruct
// state. It is pure: no object store or ledger handle is consulted beyond
// the receipt slice handed to Replay, so the same chain always replays to
// the same state regardless of who runs it or when.
type ReplayEngine struct{}

// Replay walks receipts from the first entry onward, merging each accepted
// OutcomeReceipt's state_updates into an in-memory map (last-write-wins per
// key) and counting every receipt seen. Rejected commitments, and the
// CommitmentReceipts that never got an outcome, do not mutate state but are
// still counted in EvaluatedReceipts.
func (e *ReplayEngine) Replay(receipts []ledger.Receipt) (StateResult, error) {
	state := make(map[string]string)
	var stats Stats

	for _, r := range receipts {
		stats.EvaluatedReceipts++
		if r.Kind != ledger.KindOutcome {
			continue
		}
		outcome, err := r.DecodeOutcome()
		if err != nil {
			return StateResult{}, err
		}
		if !outcome.Accepted {
			continue
		}
		for k, v := range outcome.StateUpdates {
			state[k] = v
		}
		stats.AppliedOutcomes++
	}

	return StateResult{State: state, Stats: stats}, nil
}

// ReplayWorldline reads every receipt for worldline from l and replays it
// from seq=1, per §4.7's "ReplayEngine consumes the chain from seq=1".
func (e *ReplayEngine) ReplayWorldline(l *ledger.Ledger, worldline crypto.ObjectId) (StateResult, error) {
	receipts, err := l.ReadAll(worldline)
	if err != nil {
		return StateResult{}, err
	}
	return e.Replay(receipts)
}

// stateRoot computes a deterministic content address over a state map, used
// both by callers producing SnapshotReceipts and by the validator
// recomputing an anchored_state_root to check against one. Keys are sorted
// so the same map always yields the same root regardless of map iteration
// order.
func stateRoot(state map[string]string) crypto.ObjectId {
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(state[k])
		b.WriteByte(';')
	}
	return crypto.HashWithDomain(crypto.DomainSnapshot, []byte(b.String()))
}

// StateRoot exposes stateRoot for callers building SnapshotReceipts outside
// this package (e.g. a command that periodically compacts a worldline).
func StateRoot(state map[string]string) crypto.ObjectId {
	return stateRoot(state)
}
