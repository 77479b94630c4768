package replay

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/fabric"
	"github.com/worldline-vcs/wll/internal/gate"
	"github.com/worldline-vcs/wll/internal/ledger"
	"github.com/worldline-vcs/wll/internal/objstore"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	store := objstore.NewMemoryStore()
	clock := fabric.NewClock(1)
	l, err := ledger.Open(filepath.Join(t.TempDir(), "chain.db"), store, clock)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func buildHundredCommits(t *testing.T, l *ledger.Ledger, worldline crypto.ObjectId) {
	t.Helper()
	for i := 1; i <= 100; i++ {
		id, err := gate.NewCommitmentId()
		if err != nil {
			t.Fatalf("new commitment id: %v", err)
		}
		p := &gate.Proposal{Message: fmt.Sprintf("commit-%d", i), Class: gate.ContentUpdate(), CommitmentID: id}
		d := gate.Decision{Accepted: true, PolicyHash: crypto.HashWithDomain(crypto.DomainPolicy, []byte("test"))}
		commit, err := l.AppendCommitment(worldline, p, d)
		if err != nil {
			t.Fatalf("append commitment %d: %v", i, err)
		}
		updates := map[string]string{fmt.Sprintf("k_%d", i): fmt.Sprintf("%d", i)}
		if _, err := l.AppendOutcome(worldline, commit.ReceiptHash, nil, updates); err != nil {
			t.Fatalf("append outcome %d: %v", i, err)
		}
	}
}

func TestReplayDeterminismAcrossConcurrentReplays(t *testing.T) {
	l := newTestLedger(t)
	worldline := crypto.HashWithDomain(crypto.DomainCommit, []byte("replay-determinism"))
	buildHundredCommits(t, l, worldline)

	engine := &ReplayEngine{}

	results := make([]StateResult, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		i := i
		g.Go(func() error {
			var err error
			results[i], err = engine.ReplayWorldline(l, worldline)
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, results[0].State, 100)
	require.EqualValues(t, 100, results[0].Stats.AppliedOutcomes)
	require.Equal(t, results[0].State, results[1].State, "two replays of the same chain must produce equal state maps")
}

func TestProjectionBuilderSnapshotShortCircuitMatchesFullReplay(t *testing.T) {
	l := newTestLedger(t)
	worldline := crypto.HashWithDomain(crypto.DomainCommit, []byte("snapshot-shortcircuit"))

	engine := &ReplayEngine{}
	var snapshotState map[string]string
	var snapshotAtSeq uint64

	for i := 1; i <= 100; i++ {
		id, err := gate.NewCommitmentId()
		if err != nil {
			t.Fatalf("new commitment id: %v", err)
		}
		p := &gate.Proposal{Message: fmt.Sprintf("commit-%d", i), Class: gate.ContentUpdate(), CommitmentID: id}
		d := gate.Decision{Accepted: true, PolicyHash: crypto.HashWithDomain(crypto.DomainPolicy, []byte("test"))}
		commit, err := l.AppendCommitment(worldline, p, d)
		if err != nil {
			t.Fatalf("append commitment %d: %v", i, err)
		}
		updates := map[string]string{fmt.Sprintf("k_%d", i): fmt.Sprintf("%d", i)}
		outcome, err := l.AppendOutcome(worldline, commit.ReceiptHash, nil, updates)
		if err != nil {
			t.Fatalf("append outcome %d: %v", i, err)
		}

		// After 25 outcomes (seq 50, the 25th outcome), emit a snapshot
		// anchoring the replayed state so far, landing the snapshot at seq 51.
		if i == 25 {
			result, err := engine.ReplayWorldline(l, worldline)
			if err != nil {
				t.Fatalf("replay for snapshot: %v", err)
			}
			snapshotState = result.State
			root := StateRoot(snapshotState)
			snap, err := l.AppendSnapshot(worldline, outcome.ReceiptHash, root)
			if err != nil {
				t.Fatalf("append snapshot: %v", err)
			}
			snapshotAtSeq = snap.Seq
		}
	}

	if snapshotAtSeq != 51 {
		t.Fatalf("expected snapshot at seq 51, got %d", snapshotAtSeq)
	}

	full, err := engine.ReplayWorldline(l, worldline)
	if err != nil {
		t.Fatalf("full replay: %v", err)
	}

	pb := NewProjectionBuilder()
	projected, err := pb.Project(l, worldline, snapshotState)
	if err != nil {
		t.Fatalf("project: %v", err)
	}

	if len(projected.State) != len(full.State) {
		t.Fatalf("projected state has %d entries, full replay has %d", len(projected.State), len(full.State))
	}
	for k, v := range full.State {
		if projected.State[k] != v {
			t.Fatalf("projection mismatch at key %s: %s vs %s", k, v, projected.State[k])
		}
	}
	// The short circuit should only have evaluated the snapshot plus the
	// remaining receipts, not the full chain.
	if projected.Stats.EvaluatedReceipts >= full.Stats.EvaluatedReceipts {
		t.Fatalf("expected projection to evaluate fewer receipts than full replay: got %d vs %d",
			projected.Stats.EvaluatedReceipts, full.Stats.EvaluatedReceipts)
	}
}

func TestProjectionBuilderFallsBackOnStateMismatch(t *testing.T) {
	l := newTestLedger(t)
	worldline := crypto.HashWithDomain(crypto.DomainCommit, []byte("snapshot-mismatch"))

	id, err := gate.NewCommitmentId()
	if err != nil {
		t.Fatalf("new commitment id: %v", err)
	}
	p := &gate.Proposal{Message: "only-commit", Class: gate.ContentUpdate(), CommitmentID: id}
	d := gate.Decision{Accepted: true, PolicyHash: crypto.HashWithDomain(crypto.DomainPolicy, []byte("test"))}
	commit, err := l.AppendCommitment(worldline, p, d)
	if err != nil {
		t.Fatalf("append commitment: %v", err)
	}
	outcome, err := l.AppendOutcome(worldline, commit.ReceiptHash, nil, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("append outcome: %v", err)
	}
	if _, err := l.AppendSnapshot(worldline, outcome.ReceiptHash, StateRoot(map[string]string{"k": "v"})); err != nil {
		t.Fatalf("append snapshot: %v", err)
	}

	pb := NewProjectionBuilder()
	// Hand the projection builder a state that does not match the snapshot's
	// anchored root: it must fall back to a full replay rather than trust it.
	bogus := map[string]string{"wrong": "state"}
	projected, err := pb.Project(l, worldline, bogus)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if projected.State["k"] != "v" {
		t.Fatalf("expected fallback full replay to recover k=v, got %v", projected.State)
	}
}

func TestStreamValidatorAcceptsCleanChain(t *testing.T) {
	l := newTestLedger(t)
	worldline := crypto.HashWithDomain(crypto.DomainCommit, []byte("validator-clean"))
	buildHundredCommits(t, l, worldline)

	v := NewStreamValidator(l)
	report, err := v.Validate(worldline)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !report.HashChainValid || !report.SequenceMonotonic || !report.OutcomesAttributed ||
		!report.SnapshotsAnchored || !report.TemporalMonotonic {
		t.Fatalf("expected a clean report, got %+v", report)
	}
	if len(report.Violations) != 0 {
		t.Fatalf("expected no violations, got %v", report.Violations)
	}
	if report.ReceiptCount != 200 {
		t.Fatalf("expected 200 receipts, got %d", report.ReceiptCount)
	}
}

func TestStreamValidatorDetectsHashChainBreak(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "chain.db")
	store := objstore.NewMemoryStore()
	clock := fabric.NewClock(1)

	l, err := ledger.Open(indexPath, store, clock)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	worldline := crypto.HashWithDomain(crypto.DomainCommit, []byte("validator-tamper"))

	id, err := gate.NewCommitmentId()
	if err != nil {
		t.Fatalf("new commitment id: %v", err)
	}
	p := &gate.Proposal{Message: "first", Class: gate.ContentUpdate(), CommitmentID: id}
	d := gate.Decision{Accepted: true, PolicyHash: crypto.HashWithDomain(crypto.DomainPolicy, []byte("test"))}
	commit1, err := l.AppendCommitment(worldline, p, d)
	if err != nil {
		t.Fatalf("append commitment 1: %v", err)
	}
	outcome1, err := l.AppendOutcome(worldline, commit1.ReceiptHash, nil, map[string]string{"k": "1"})
	if err != nil {
		t.Fatalf("append outcome 1: %v", err)
	}
	id2, err := gate.NewCommitmentId()
	if err != nil {
		t.Fatalf("new commitment id: %v", err)
	}
	p2 := &gate.Proposal{Message: "second", Class: gate.ContentUpdate(), CommitmentID: id2}
	commit2, err := l.AppendCommitment(worldline, p2, d)
	if err != nil {
		t.Fatalf("append commitment 2: %v", err)
	}
	if _, err := l.AppendOutcome(worldline, commit2.ReceiptHash, nil, map[string]string{"k": "2"}); err != nil {
		t.Fatalf("append outcome 2: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}

	// Splice the chain index directly, pointing seq 4 at outcome 1's receipt
	// instead of outcome 2's: a chain transplanted from elsewhere (a bad
	// import, a corrupted replica) rather than anything the Ledger API
	// itself would ever produce.
	raw, err := bbolt.Open(indexPath, 0600, nil)
	if err != nil {
		t.Fatalf("reopen raw chain index: %v", err)
	}
	if err := raw.Update(func(tx *bbolt.Tx) error {
		key := make([]byte, 32+8)
		copy(key[:32], worldline[:])
		binary.BigEndian.PutUint64(key[32:], 4)
		return tx.Bucket([]byte("chain")).Put(key, outcome1.ReceiptHash[:])
	}); err != nil {
		t.Fatalf("splice chain index: %v", err)
	}
	raw.Close()

	l2, err := ledger.Open(indexPath, store, clock)
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	defer l2.Close()

	v := NewStreamValidator(l2)
	report, err := v.Validate(worldline)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if report.HashChainValid {
		t.Fatal("expected spliced chain index to be detected as a hash-chain break")
	}
}
