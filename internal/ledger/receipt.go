// Package ledger implements the append-only hash-linked receipt chain
// (C5): the hardest subsystem, combining canonical receipt serialization,
// write-ahead append discipline, and per-worldline concurrency control.
package ledger

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/fabric"
	"github.com/worldline-vcs/wll/internal/gate"
)

// Kind tags a Receipt's variant in its canonical serialization, dispatched
// on by the validator rather than by inheritance, per §9.
type Kind uint8

const (
	KindCommitment Kind = iota + 1
	KindOutcome
	KindSnapshot
	KindBranch
	KindTag
)

func (k Kind) String() string {
	switch k {
	case KindCommitment:
		return "Commitment"
	case KindOutcome:
		return "Outcome"
	case KindSnapshot:
		return "Snapshot"
	case KindBranch:
		return "Branch"
	case KindTag:
		return "Tag"
	default:
		return "Unknown"
	}
}

// Receipt is the base record shared by all variants, per §3.
type Receipt struct {
	Seq         uint64
	ReceiptHash crypto.ObjectId
	PrevHash    crypto.ObjectId
	Worldline   crypto.ObjectId
	Timestamp   fabric.TemporalAnchor
	Kind        Kind
	Payload     []byte // kind-specific canonical payload, see payload.go
}

// CommitmentPayload carries §3's CommitmentReceipt fields.
type CommitmentPayload struct {
	CommitmentID   gate.CommitmentId
	Intent         string
	Class          gate.CommitmentClass
	Accepted       bool
	RejectReasons  []string
	EvidenceDigest crypto.ObjectId
	Tree           *crypto.ObjectId
}

// OutcomePayload carries §3's OutcomeReceipt fields. Effects is kept an
// opaque blob per §9's open question: its schema beyond state_updates is
// unspecified, so this implementation never interprets its contents.
type OutcomePayload struct {
	CommitmentReceiptHash crypto.ObjectId
	Effects               []byte
	StateUpdates          map[string]string
	Accepted              bool
}

// SnapshotPayload carries §3's SnapshotReceipt fields.
type SnapshotPayload struct {
	AnchorHash        crypto.ObjectId
	AnchoredStateRoot crypto.ObjectId
}

// RefPayload carries the administrative Branch/Tag receipt fields.
type RefPayload struct {
	Name        string
	ReceiptHash crypto.ObjectId
}

// canonicalBody returns worldline || seq || prev_hash || timestamp || kind_tag || payload,
// the exact field order §6 specifies for a receipt body. ReceiptHash itself
// is excluded, per invariant 2.
func (r *Receipt) canonicalBody() []byte {
	var buf bytes.Buffer
	buf.Write(r.Worldline[:])

	var seqBytes [8]byte
	binary.LittleEndian.PutUint64(seqBytes[:], r.Seq)
	buf.Write(seqBytes[:])

	buf.Write(r.PrevHash[:])

	var ts [16]byte
	binary.LittleEndian.PutUint64(ts[0:8], r.Timestamp.PhysicalMS)
	binary.LittleEndian.PutUint32(ts[8:12], r.Timestamp.Logical)
	binary.LittleEndian.PutUint32(ts[12:16], r.Timestamp.NodeID)
	buf.Write(ts[:])

	buf.WriteByte(byte(r.Kind))
	buf.Write(r.Payload)
	return buf.Bytes()
}

// ComputeHash implements invariant 2:
// receipt_hash = BLAKE3("RECEIPT:" || canonical_serialize(body)).
func (r *Receipt) ComputeHash() crypto.ObjectId {
	return crypto.HashWithDomain(crypto.DomainReceipt, r.canonicalBody())
}

// writeString appends a u32-length-prefixed UTF-8 string, the convention
// §6 specifies for canonical serialization of string fields.
func writeString(buf *bytes.Buffer, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	buf.Write(n[:])
	buf.WriteString(s)
}

func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("ledger: truncated string length")
	}
	n := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return "", nil, fmt.Errorf("ledger: truncated string body")
	}
	return string(data[:n]), data[n:], nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var scratch [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(scratch[:], v)
	buf.Write(scratch[:n])
}

func readUvarint(data []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return 0, nil, fmt.Errorf("ledger: invalid varint")
	}
	return v, data[n:], nil
}

func decodeSeqLE(data []byte) uint64 {
	return binary.LittleEndian.Uint64(data)
}

func decodeAnchorLE(data []byte) fabric.TemporalAnchor {
	return fabric.TemporalAnchor{
		PhysicalMS: binary.LittleEndian.Uint64(data[0:8]),
		Logical:    binary.LittleEndian.Uint32(data[8:12]),
		NodeID:     binary.LittleEndian.Uint32(data[12:16]),
	}
}

// DecodeCommitment parses r.Payload as a CommitmentPayload. Returns an
// error if r.Kind is not KindCommitment.
func (r *Receipt) DecodeCommitment() (CommitmentPayload, error) {
	if r.Kind != KindCommitment {
		return CommitmentPayload{}, fmt.Errorf("ledger: receipt at seq %d is not a commitment", r.Seq)
	}
	return decodeCommitmentPayload(r.Payload)
}

// DecodeOutcome parses r.Payload as an OutcomePayload. Returns an error if
// r.Kind is not KindOutcome.
func (r *Receipt) DecodeOutcome() (OutcomePayload, error) {
	if r.Kind != KindOutcome {
		return OutcomePayload{}, fmt.Errorf("ledger: receipt at seq %d is not an outcome", r.Seq)
	}
	return decodeOutcomePayload(r.Payload)
}

// DecodeSnapshot parses r.Payload as a SnapshotPayload. Returns an error if
// r.Kind is not KindSnapshot.
func (r *Receipt) DecodeSnapshot() (SnapshotPayload, error) {
	if r.Kind != KindSnapshot {
		return SnapshotPayload{}, fmt.Errorf("ledger: receipt at seq %d is not a snapshot", r.Seq)
	}
	return decodeSnapshotPayload(r.Payload)
}

// DecodeRef parses r.Payload as a RefPayload. Returns an error if r.Kind is
// neither KindBranch nor KindTag.
func (r *Receipt) DecodeRef() (RefPayload, error) {
	if r.Kind != KindBranch && r.Kind != KindTag {
		return RefPayload{}, fmt.Errorf("ledger: receipt at seq %d is not a ref", r.Seq)
	}
	return decodeRefPayload(r.Payload)
}
