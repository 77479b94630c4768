// Package crypto provides the domain-separated BLAKE3 hashing and Ed25519
// signing primitives every other WorldLine Ledger component builds on.
package crypto

import (
	"encoding/hex"
	"fmt"

	"lukechampine.com/blake3"
)

// ObjectId is a 32-byte content-address. The all-zero value denotes "no
// object" per the data model (e.g. the genesis receipt's prev_hash).
type ObjectId [32]byte

// ZeroObjectId is the genesis marker / "no object" sentinel.
var ZeroObjectId = ObjectId{}

// String returns the 64 lowercase hex characters for the id.
func (id ObjectId) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero sentinel.
func (id ObjectId) IsZero() bool {
	return id == ZeroObjectId
}

// Less gives ObjectId a total order, used wherever ties need a deterministic
// tiebreaker (e.g. DAG common-ancestor ties on equal seq).
func (id ObjectId) Less(other ObjectId) bool {
	for i := range id {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// ObjectIdFromHex parses a 64-character hex string into an ObjectId.
func ObjectIdFromHex(s string) (ObjectId, error) {
	var id ObjectId
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(b) != len(id) {
		return id, &InvalidLengthError{Expected: len(id), Actual: len(b)}
	}
	copy(id[:], b)
	return id, nil
}

// InvalidLengthError reports a byte slice of the wrong length where a fixed
// size was required.
type InvalidLengthError struct {
	Expected int
	Actual   int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("crypto: invalid length: expected %d, got %d", e.Expected, e.Actual)
}

// Domain tags. Every hash computed anywhere in WorldLine Ledger MUST go
// through HashWithDomain with one of these, so that a blob and a receipt
// that happen to share byte content never collide.
const (
	DomainBlob     = "BLOB"
	DomainTree     = "TREE"
	DomainReceipt  = "RECEIPT"
	DomainCommit   = "COMMIT"
	DomainEvidence = "EVIDENCE"
	DomainSnapshot = "SNAPSHOT"
	DomainPolicy   = "POLICY"
	DomainPack     = "PACK"
)

// HashWithDomain computes BLAKE3(domain ‖ 0x3A ‖ data). The colon separator
// prevents a short domain tag from being confusable with a prefix of data
// itself (domain tags are fixed-set and never user-controlled).
func HashWithDomain(domain string, data []byte) ObjectId {
	h := blake3.New(32, nil)
	h.Write([]byte(domain))
	h.Write([]byte{0x3A})
	h.Write(data)
	var out ObjectId
	copy(out[:], h.Sum(nil))
	return out
}

// DomainForKind is the canonical domain tag for each stored object kind,
// used by the object store when computing content addresses.
func DomainForKind(kind string) string {
	switch kind {
	case "blob":
		return DomainBlob
	case "tree":
		return DomainTree
	case "receipt":
		return DomainReceipt
	case "snapshot":
		return DomainSnapshot
	default:
		return DomainBlob
	}
}
