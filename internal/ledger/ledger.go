package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"go.etcd.io/bbolt"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/fabric"
	"github.com/worldline-vcs/wll/internal/gate"
	"github.com/worldline-vcs/wll/internal/objstore"
)

var (
	bucketChain = []byte("chain") // worldline||seq(BE8) -> receipt_hash(32B)
	bucketHeads = []byte("heads") // worldline -> seq(BE8) || receipt_hash(32B)
)

// Ledger is the append-only hash-linked receipt chain (C5): the object
// store holds receipt bodies, a bbolt chain-index records the append
// order per worldline, and a per-worldline mutex serializes the
// index-append + head-advance steps of the write-ahead discipline.
type Ledger struct {
	store objstore.Store
	idx   *bbolt.DB
	clock *fabric.Clock

	locksMu sync.Mutex
	locks   map[crypto.ObjectId]*sync.Mutex

	maxRetries int
}

// Open opens (or creates) the bbolt chain-index at indexPath and wires it
// to store and clock. Any crash between steps (2) and (3) of the
// write-ahead discipline is recovered here: bbolt's own B+tree commit is
// atomic, so the head bucket is always consistent with the chain bucket
// by construction once Open returns — no separate rescan is required.
// Where a file-based CAS makes atomic rename its unit of durability, a
// bbolt transaction commit is ours.
func Open(indexPath string, store objstore.Store, clock *fabric.Clock) (*Ledger, error) {
	db, err := bbolt.Open(indexPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: open chain index: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketChain); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketHeads); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: initialize buckets: %w", err)
	}
	return &Ledger{
		store:      store,
		idx:        db,
		clock:      clock,
		locks:      make(map[crypto.ObjectId]*sync.Mutex),
		maxRetries: 8,
	}, nil
}

// Close releases the chain-index file handle.
func (l *Ledger) Close() error { return l.idx.Close() }

func (l *Ledger) lockFor(worldline crypto.ObjectId) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[worldline]
	if !ok {
		m = &sync.Mutex{}
		l.locks[worldline] = m
	}
	return m
}

func chainKey(worldline crypto.ObjectId, seq uint64) []byte {
	key := make([]byte, 32+8)
	copy(key[:32], worldline[:])
	beUint64(key[32:], seq)
	return key
}

func beUint64(dst []byte, v uint64) {
	for i := 0; i < 8; i++ {
		dst[7-i] = byte(v)
		v >>= 8
	}
}

func beUint64Decode(src []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(src[i])
	}
	return v
}

// headRecord is what's stored in bucketHeads for a worldline.
type headRecord struct {
	Seq  uint64
	Hash crypto.ObjectId
}

func encodeHead(h headRecord) []byte {
	out := make([]byte, 8+32)
	beUint64(out[:8], h.Seq)
	copy(out[8:], h.Hash[:])
	return out
}

func decodeHead(data []byte) (headRecord, error) {
	if len(data) != 40 {
		return headRecord{}, fmt.Errorf("ledger: malformed head record")
	}
	var h headRecord
	h.Seq = beUint64Decode(data[:8])
	copy(h.Hash[:], data[8:])
	return h, nil
}

// Head returns the current head receipt for worldline, or
// *UnknownWorldlineError if the worldline has no receipts yet.
func (l *Ledger) Head(worldline crypto.ObjectId) (Receipt, error) {
	var h headRecord
	found := false
	err := l.idx.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketHeads).Get(worldline[:])
		if v == nil {
			return nil
		}
		var err error
		h, err = decodeHead(v)
		found = err == nil
		return err
	})
	if err != nil {
		return Receipt{}, err
	}
	if !found {
		return Receipt{}, &UnknownWorldlineError{Worldline: worldline}
	}
	return l.GetByHash(h.Hash)
}

// headLocked reads the head without the UnknownWorldlineError wrapping,
// used internally by the append path where "no head yet" is meaningful
// (genesis) rather than exceptional.
func (l *Ledger) headLocked(worldline crypto.ObjectId) (headRecord, bool, error) {
	var h headRecord
	found := false
	err := l.idx.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketHeads).Get(worldline[:])
		if v == nil {
			return nil
		}
		var err error
		h, err = decodeHead(v)
		found = err == nil
		return err
	})
	return h, found, err
}

// isPendingCommitment reports whether hash names an accepted
// CommitmentReceipt that has not yet been paired with an outcome — i.e.
// whether the worldline is currently in state S1.
func (l *Ledger) isPendingCommitment(hash crypto.ObjectId) (bool, error) {
	r, err := l.GetByHash(hash)
	if err != nil {
		return false, err
	}
	if r.Kind != KindCommitment {
		return false, nil
	}
	payload, err := r.DecodeCommitment()
	if err != nil {
		return false, err
	}
	return payload.Accepted, nil
}

// appendReceipt performs the write-ahead discipline from §4.5: (1) write
// the receipt body to the object store; (2) append (seq, receipt_hash) to
// the chain index; (3) advance the head pointer. Steps (2)-(3) happen in
// one bbolt transaction under the per-worldline lock, which is as close to
// atomic as a single mutex + single transaction can make it.
func (l *Ledger) appendReceipt(worldline crypto.ObjectId, kind Kind, payload []byte, expectPrevHash *crypto.ObjectId) (Receipt, error) {
	lock := l.lockFor(worldline)
	lock.Lock()
	defer lock.Unlock()

	head, hasHead, err := l.headLocked(worldline)
	if err != nil {
		return Receipt{}, err
	}

	var seq uint64 = 1
	var prevHash crypto.ObjectId
	if hasHead {
		seq = head.Seq + 1
		prevHash = head.Hash
	}
	if expectPrevHash != nil && prevHash != *expectPrevHash {
		return Receipt{}, &PairingBrokenError{Worldline: worldline, Want: *expectPrevHash, Head: prevHash}
	}

	// §4.5's state machine: in S1 (head is an accepted commitment awaiting
	// its outcome), only append_outcome for that commitment is legal. Any
	// other kind of write — another commitment, a snapshot, a ref — is a
	// state-machine violation.
	if kind != KindOutcome && hasHead {
		pending, err := l.isPendingCommitment(prevHash)
		if err != nil {
			return Receipt{}, err
		}
		if pending {
			return Receipt{}, &PairingBrokenError{
				Worldline: worldline,
				Head:      prevHash,
				Reason:    fmt.Sprintf("head %s is an accepted commitment awaiting its outcome", prevHash),
				Transient: true,
			}
		}
	}

	anchor, err := l.clock.Now()
	if err != nil {
		return Receipt{}, err
	}

	r := Receipt{
		Seq:       seq,
		PrevHash:  prevHash,
		Worldline: worldline,
		Timestamp: anchor,
		Kind:      kind,
		Payload:   payload,
	}

	// Step (1): write the body to the object store before touching the index.
	body := r.canonicalBody()
	receiptHash, err := l.store.Write(objstore.KindReceipt, body)
	if err != nil {
		return Receipt{}, err
	}
	r.ReceiptHash = receiptHash

	// Steps (2)-(3): append to the chain index and advance head, atomically.
	err = l.idx.Update(func(tx *bbolt.Tx) error {
		chain := tx.Bucket(bucketChain)
		heads := tx.Bucket(bucketHeads)

		// Detect a concurrent writer that advanced head since headLocked
		// read it — the mutex should prevent this, but bbolt transactions
		// are the real source of truth, so we re-check.
		if cur := heads.Get(worldline[:]); cur != nil {
			curHead, err := decodeHead(cur)
			if err != nil {
				return err
			}
			if curHead.Seq != seq-1 {
				return &SequenceRaceError{Worldline: worldline, Expected: seq}
			}
		} else if seq != 1 {
			return &SequenceRaceError{Worldline: worldline, Expected: seq}
		}

		if err := chain.Put(chainKey(worldline, seq), receiptHash[:]); err != nil {
			return err
		}
		return heads.Put(worldline[:], encodeHead(headRecord{Seq: seq, Hash: receiptHash}))
	})
	if err != nil {
		return Receipt{}, err
	}
	return r, nil
}

// AppendCommitment assigns the next seq, builds a CommitmentReceipt body
// from proposal+decision, and appends it. Retries SequenceRace up to
// maxRetries times using a bounded exponential backoff, per §4.5 and §7.
func (l *Ledger) AppendCommitment(worldline crypto.ObjectId, p *gate.Proposal, decision gate.Decision) (Receipt, error) {
	payload := CommitmentPayload{
		CommitmentID:   p.CommitmentID,
		Intent:         p.EffectiveIntent(),
		Class:          p.Class,
		Accepted:       decision.Accepted,
		RejectReasons:  decision.Reasons,
		EvidenceDigest: p.Evidence.Digest,
		Tree:           p.Tree,
	}
	encoded := encodeCommitmentPayload(payload)

	return retryOnSequenceRace(l.maxRetries, func() (Receipt, error) {
		return l.appendReceipt(worldline, KindCommitment, encoded, nil)
	})
}

// AppendOutcome appends an OutcomeReceipt that must immediately follow the
// commitment receipt named by commitmentHash. Fails with
// *PairingBrokenError if the head has moved on since.
func (l *Ledger) AppendOutcome(worldline crypto.ObjectId, commitmentHash crypto.ObjectId, effects []byte, stateUpdates map[string]string) (Receipt, error) {
	payload := OutcomePayload{
		CommitmentReceiptHash: commitmentHash,
		Effects:               effects,
		StateUpdates:          stateUpdates,
		Accepted:              true,
	}
	encoded := encodeOutcomePayload(payload)

	return retryOnSequenceRace(l.maxRetries, func() (Receipt, error) {
		return l.appendReceipt(worldline, KindOutcome, encoded, &commitmentHash)
	})
}

// AppendSnapshot appends a SnapshotReceipt anchoring materialized state.
func (l *Ledger) AppendSnapshot(worldline crypto.ObjectId, anchorHash, stateRoot crypto.ObjectId) (Receipt, error) {
	encoded := encodeSnapshotPayload(SnapshotPayload{AnchorHash: anchorHash, AnchoredStateRoot: stateRoot})
	return retryOnSequenceRace(l.maxRetries, func() (Receipt, error) {
		return l.appendReceipt(worldline, KindSnapshot, encoded, nil)
	})
}

// AppendRef appends a Branch or Tag administrative receipt.
func (l *Ledger) AppendRef(worldline crypto.ObjectId, kind Kind, name string, target crypto.ObjectId) (Receipt, error) {
	if kind != KindBranch && kind != KindTag {
		return Receipt{}, fmt.Errorf("ledger: AppendRef requires KindBranch or KindTag, got %v", kind)
	}
	encoded := encodeRefPayload(RefPayload{Name: name, ReceiptHash: target})
	return retryOnSequenceRace(l.maxRetries, func() (Receipt, error) {
		return l.appendReceipt(worldline, kind, encoded, nil)
	})
}

func retryOnSequenceRace(maxRetries int, fn func() (Receipt, error)) (Receipt, error) {
	op := func() (Receipt, error) {
		r, err := fn()
		if err != nil {
			if _, ok := err.(*SequenceRaceError); ok {
				return Receipt{}, err
			}
			if pb, ok := err.(*PairingBrokenError); ok && pb.Transient {
				return Receipt{}, err
			}
			// Non-transient errors are not retried.
			return Receipt{}, backoff.Permanent(err)
		}
		return r, nil
	}
	return backoff.Retry(
		context.Background(),
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(maxRetries)),
	)
}

// GetByHash scans the object store directly; receipts are content
// addressed so a hash is sufficient to retrieve and parse the body.
func (l *Ledger) GetByHash(hash crypto.ObjectId) (Receipt, error) {
	kind, data, err := l.store.Read(hash)
	if err != nil {
		return Receipt{}, err
	}
	if kind != objstore.KindReceipt {
		return Receipt{}, fmt.Errorf("ledger: object %s is not a receipt", hash)
	}
	return decodeReceipt(hash, data)
}

// GetBySeq resolves worldline's receipt at the given 1-based sequence
// number via the chain index, then loads its body.
func (l *Ledger) GetBySeq(worldline crypto.ObjectId, seq uint64) (Receipt, error) {
	var hash crypto.ObjectId
	found := false
	err := l.idx.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketChain).Get(chainKey(worldline, seq))
		if v == nil {
			return nil
		}
		copy(hash[:], v)
		found = true
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	if !found {
		return Receipt{}, &NotFoundError{Detail: fmt.Sprintf("worldline %s seq %d", worldline, seq)}
	}
	return l.GetByHash(hash)
}

// ReceiptCount returns the number of receipts appended to worldline.
func (l *Ledger) ReceiptCount(worldline crypto.ObjectId) (uint64, error) {
	h, found, err := l.headLocked(worldline)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return h.Seq, nil
}

// ReadAll returns every receipt for worldline in ascending seq order.
func (l *Ledger) ReadAll(worldline crypto.ObjectId) ([]Receipt, error) {
	count, err := l.ReceiptCount(worldline)
	if err != nil {
		return nil, err
	}
	receipts := make([]Receipt, 0, count)
	for seq := uint64(1); seq <= count; seq++ {
		r, err := l.GetBySeq(worldline, seq)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, nil
}

func decodeReceipt(hash crypto.ObjectId, body []byte) (Receipt, error) {
	if len(body) < 32+8+32+16+1 {
		return Receipt{}, fmt.Errorf("ledger: truncated receipt body")
	}
	var r Receipt
	r.ReceiptHash = hash
	copy(r.Worldline[:], body[:32])
	body = body[32:]

	r.Seq = decodeSeqLE(body[:8])
	body = body[8:]

	copy(r.PrevHash[:], body[:32])
	body = body[32:]

	r.Timestamp = decodeAnchorLE(body[:16])
	body = body[16:]

	r.Kind = Kind(body[0])
	body = body[1:]

	r.Payload = append([]byte(nil), body...)
	return r, nil
}
