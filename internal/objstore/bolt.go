package objstore

import (
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/worldline-vcs/wll/internal/crypto"
)

// One bbolt bucket per kind, a bucket-per-mapping layout.
var (
	bucketBlob     = []byte("objects:blob")
	bucketTree     = []byte("objects:tree")
	bucketReceipt  = []byte("objects:receipt")
	bucketSnapshot = []byte("objects:snapshot")
)

func bucketFor(kind ObjectKind) ([]byte, error) {
	switch kind {
	case KindBlob:
		return bucketBlob, nil
	case KindTree:
		return bucketTree, nil
	case KindReceipt:
		return bucketReceipt, nil
	case KindSnapshot:
		return bucketSnapshot, nil
	default:
		return nil, fmt.Errorf("objstore: unknown object kind %d", kind)
	}
}

var allBuckets = [][]byte{bucketBlob, bucketTree, bucketReceipt, bucketSnapshot}

// BoltStore is the durable Store backend, one bbolt database per worldline
// repository root.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (creating if absent) a bbolt-backed object store at
// path, ensuring every kind bucket exists.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, &IoError{Cause: err}
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, &IoError{Cause: err}
	}
	return &BoltStore{db: db}, nil
}

// Close releases the underlying bbolt file handle.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) Write(kind ObjectKind, data []byte) (crypto.ObjectId, error) {
	id := computeID(kind, data)
	bucket, err := bucketFor(kind)
	if err != nil {
		return id, err
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucket)
		if bk.Get(id[:]) != nil {
			return nil // dedup: already present
		}
		return bk.Put(id[:], data)
	})
	if err != nil {
		return id, classifyBoltError(err)
	}
	return id, nil
}

func (b *BoltStore) Read(id crypto.ObjectId) (ObjectKind, []byte, error) {
	var kind ObjectKind
	var data []byte
	found := false

	err := b.db.View(func(tx *bbolt.Tx) error {
		for _, k := range []ObjectKind{KindBlob, KindTree, KindReceipt, KindSnapshot} {
			bucket, _ := bucketFor(k)
			bk := tx.Bucket(bucket)
			if v := bk.Get(id[:]); v != nil {
				kind = k
				data = make([]byte, len(v))
				copy(data, v)
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, classifyBoltError(err)
	}
	if !found {
		return 0, nil, &ErrNotFound{ID: id}
	}

	if computed := computeID(kind, data); computed != id {
		return 0, nil, &CorruptedObjectError{ID: id, Computed: computed}
	}
	return kind, data, nil
}

func (b *BoltStore) Contains(id crypto.ObjectId) (bool, error) {
	found := false
	err := b.db.View(func(tx *bbolt.Tx) error {
		for _, bucket := range allBuckets {
			if tx.Bucket(bucket).Get(id[:]) != nil {
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, classifyBoltError(err)
	}
	return found, nil
}

func (b *BoltStore) Delete(id crypto.ObjectId) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range allBuckets {
			bk := tx.Bucket(bucket)
			if bk.Get(id[:]) != nil {
				return bk.Delete(id[:])
			}
		}
		return nil
	})
	if err != nil {
		return classifyBoltError(err)
	}
	return nil
}

// All returns every object id currently stored, across all kinds. Used by
// the pack command to export a repository's full object set; ordinary
// read/write paths never need a full enumeration.
func (b *BoltStore) All() ([]crypto.ObjectId, error) {
	var ids []crypto.ObjectId
	err := b.db.View(func(tx *bbolt.Tx) error {
		for _, bucket := range allBuckets {
			bk := tx.Bucket(bucket)
			err := bk.ForEach(func(k, v []byte) error {
				var id crypto.ObjectId
				copy(id[:], k)
				ids = append(ids, id)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, classifyBoltError(err)
	}
	return ids, nil
}

func classifyBoltError(err error) error {
	return &IoError{Cause: err}
}
