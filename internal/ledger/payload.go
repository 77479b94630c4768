package ledger

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/worldline-vcs/wll/internal/crypto"
	"github.com/worldline-vcs/wll/internal/gate"
)

func encodeCommitmentPayload(p CommitmentPayload) []byte {
	var buf bytes.Buffer
	writeString(&buf, p.CommitmentID.String())
	writeString(&buf, p.Intent)

	buf.WriteByte(p.Class.Tag())
	writeString(&buf, p.Class.Label())

	if p.Accepted {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	writeUvarint(&buf, uint64(len(p.RejectReasons)))
	for _, r := range p.RejectReasons {
		writeString(&buf, r)
	}

	buf.Write(p.EvidenceDigest[:])

	if p.Tree != nil {
		buf.WriteByte(1)
		buf.Write(p.Tree[:])
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func decodeCommitmentPayload(data []byte) (CommitmentPayload, error) {
	var p CommitmentPayload

	idStr, data, err := readString(data)
	if err != nil {
		return p, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return p, fmt.Errorf("ledger: parse commitment id: %w", err)
	}
	p.CommitmentID = id

	p.Intent, data, err = readString(data)
	if err != nil {
		return p, err
	}

	if len(data) < 1 {
		return p, fmt.Errorf("ledger: truncated class tag")
	}
	tag := data[0]
	data = data[1:]
	label, data, err := readString(data)
	if err != nil {
		return p, err
	}
	p.Class = gate.ClassFromTag(tag, label)

	if len(data) < 1 {
		return p, fmt.Errorf("ledger: truncated accepted flag")
	}
	p.Accepted = data[0] == 1
	data = data[1:]

	count, data, err := readUvarint(data)
	if err != nil {
		return p, err
	}
	p.RejectReasons = make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		var reason string
		reason, data, err = readString(data)
		if err != nil {
			return p, err
		}
		p.RejectReasons = append(p.RejectReasons, reason)
	}

	if len(data) < 32 {
		return p, fmt.Errorf("ledger: truncated evidence digest")
	}
	copy(p.EvidenceDigest[:], data[:32])
	data = data[32:]

	if len(data) < 1 {
		return p, fmt.Errorf("ledger: truncated tree flag")
	}
	hasTree := data[0] == 1
	data = data[1:]
	if hasTree {
		if len(data) < 32 {
			return p, fmt.Errorf("ledger: truncated tree id")
		}
		var tree crypto.ObjectId
		copy(tree[:], data[:32])
		p.Tree = &tree
		data = data[32:]
	}

	if len(data) != 0 {
		return p, fmt.Errorf("ledger: %d trailing bytes in commitment payload", len(data))
	}
	return p, nil
}

func encodeOutcomePayload(p OutcomePayload) []byte {
	var buf bytes.Buffer
	buf.Write(p.CommitmentReceiptHash[:])

	writeUvarint(&buf, uint64(len(p.Effects)))
	buf.Write(p.Effects)

	writeUvarint(&buf, uint64(len(p.StateUpdates)))
	keys := sortedKeys(p.StateUpdates)
	for _, k := range keys {
		writeString(&buf, k)
		writeString(&buf, p.StateUpdates[k])
	}

	if p.Accepted {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func decodeOutcomePayload(data []byte) (OutcomePayload, error) {
	var p OutcomePayload
	if len(data) < 32 {
		return p, fmt.Errorf("ledger: truncated commitment_receipt_hash")
	}
	copy(p.CommitmentReceiptHash[:], data[:32])
	data = data[32:]

	effLen, data, err := readUvarint(data)
	if err != nil {
		return p, err
	}
	if uint64(len(data)) < effLen {
		return p, fmt.Errorf("ledger: truncated effects")
	}
	p.Effects = append([]byte(nil), data[:effLen]...)
	data = data[effLen:]

	count, data, err := readUvarint(data)
	if err != nil {
		return p, err
	}
	p.StateUpdates = make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		var k, v string
		k, data, err = readString(data)
		if err != nil {
			return p, err
		}
		v, data, err = readString(data)
		if err != nil {
			return p, err
		}
		p.StateUpdates[k] = v
	}

	if len(data) < 1 {
		return p, fmt.Errorf("ledger: truncated accepted flag")
	}
	p.Accepted = data[0] == 1
	data = data[1:]

	if len(data) != 0 {
		return p, fmt.Errorf("ledger: %d trailing bytes in outcome payload", len(data))
	}
	return p, nil
}

func encodeSnapshotPayload(p SnapshotPayload) []byte {
	var buf bytes.Buffer
	buf.Write(p.AnchorHash[:])
	buf.Write(p.AnchoredStateRoot[:])
	return buf.Bytes()
}

func decodeSnapshotPayload(data []byte) (SnapshotPayload, error) {
	var p SnapshotPayload
	if len(data) != 64 {
		return p, fmt.Errorf("ledger: snapshot payload must be 64 bytes, got %d", len(data))
	}
	copy(p.AnchorHash[:], data[:32])
	copy(p.AnchoredStateRoot[:], data[32:64])
	return p, nil
}

func encodeRefPayload(p RefPayload) []byte {
	var buf bytes.Buffer
	writeString(&buf, p.Name)
	buf.Write(p.ReceiptHash[:])
	return buf.Bytes()
}

func decodeRefPayload(data []byte) (RefPayload, error) {
	var p RefPayload
	name, data, err := readString(data)
	if err != nil {
		return p, err
	}
	p.Name = name
	if len(data) != 32 {
		return p, fmt.Errorf("ledger: ref payload receipt hash must be 32 bytes, got %d", len(data))
	}
	copy(p.ReceiptHash[:], data)
	return p, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
