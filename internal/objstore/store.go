// Package objstore implements the content-addressable object store (C2):
// deduplicating, concurrently-safe storage for blobs, trees, receipts, and
// snapshots, keyed by their domain-separated BLAKE3 digest.
package objstore

import (
	"fmt"

	"github.com/worldline-vcs/wll/internal/crypto"
)

// ObjectKind distinguishes the four kinds of content the store holds. Each
// kind hashes under its own domain tag (see crypto.DomainForKind) so that
// identical bytes stored as different kinds never collide.
type ObjectKind uint8

const (
	KindBlob ObjectKind = iota + 1
	KindTree
	KindReceipt
	KindSnapshot
)

func (k ObjectKind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindTree:
		return "tree"
	case KindReceipt:
		return "receipt"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

func (k ObjectKind) domain() string {
	switch k {
	case KindBlob:
		return crypto.DomainBlob
	case KindTree:
		return crypto.DomainTree
	case KindReceipt:
		return crypto.DomainReceipt
	case KindSnapshot:
		return crypto.DomainSnapshot
	default:
		return crypto.DomainBlob
	}
}

// Store is the content-addressable storage interface every WLL object
// (blob, tree, receipt, snapshot) is written through.
type Store interface {
	// Write stores data under its content address. If the id already
	// exists the write is a no-op (deduplication) and the existing id is
	// returned.
	Write(kind ObjectKind, data []byte) (crypto.ObjectId, error)

	// Read retrieves the kind and bytes previously written for id.
	Read(id crypto.ObjectId) (ObjectKind, []byte, error)

	// Contains reports whether id is present without reading its bytes.
	Contains(id crypto.ObjectId) (bool, error)

	// Delete removes an object. Only the garbage collector, after proving
	// the object is unreachable from any ref or receipt, may call this.
	Delete(id crypto.ObjectId) error
}

// ErrNotFound is returned by Read when no object exists for the given id.
type ErrNotFound struct {
	ID crypto.ObjectId
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("objstore: object not found: %s", e.ID)
}

// CorruptedObjectError is returned by Read when the stored bytes' re-hash
// does not match the requested id — the store detected tampering or
// corruption at rest.
type CorruptedObjectError struct {
	ID       crypto.ObjectId
	Computed crypto.ObjectId
}

func (e *CorruptedObjectError) Error() string {
	return fmt.Sprintf("objstore: corrupted object %s: re-hash produced %s", e.ID, e.Computed)
}

// StoreFullError wraps a backend-reported capacity failure.
type StoreFullError struct {
	Cause error
}

func (e *StoreFullError) Error() string { return fmt.Sprintf("objstore: store full: %v", e.Cause) }
func (e *StoreFullError) Unwrap() error { return e.Cause }

// IoError wraps any other backend I/O failure.
type IoError struct {
	Cause error
}

func (e *IoError) Error() string { return fmt.Sprintf("objstore: io error: %v", e.Cause) }
func (e *IoError) Unwrap() error { return e.Cause }

// computeID is the single place an ObjectId is derived from kind + bytes,
// shared by every Store implementation so the domain-separation discipline
// in §4.1 can never be bypassed.
func computeID(kind ObjectKind, data []byte) crypto.ObjectId {
	return crypto.HashWithDomain(kind.domain(), data)
}
