package objstore

import (
	"sync"

	"github.com/worldline-vcs/wll/internal/crypto"
)

const shardCount = 16

// shard holds one slice of the id-space behind its own RWMutex, so that
// concurrent writers touching different objects never contend on a single
// global lock. Generalized from a single-mutex in-memory CAS to sharding
// for the higher concurrent write volume the ledger's commitment
// throughput implies.
type shard struct {
	mu   sync.RWMutex
	data map[crypto.ObjectId]entry
}

type entry struct {
	kind ObjectKind
	data []byte
}

// MemoryStore is an in-memory Store, used by tests.
type MemoryStore struct {
	shards [shardCount]*shard
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	for i := range m.shards {
		m.shards[i] = &shard{data: make(map[crypto.ObjectId]entry)}
	}
	return m
}

func (m *MemoryStore) shardFor(id crypto.ObjectId) *shard {
	return m.shards[id[0]%shardCount]
}

func (m *MemoryStore) Write(kind ObjectKind, data []byte) (crypto.ObjectId, error) {
	id := computeID(kind, data)
	s := m.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[id]; exists {
		return id, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.data[id] = entry{kind: kind, data: cp}
	return id, nil
}

func (m *MemoryStore) Read(id crypto.ObjectId) (ObjectKind, []byte, error) {
	s := m.shardFor(id)

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, exists := s.data[id]
	if !exists {
		return 0, nil, &ErrNotFound{ID: id}
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return e.kind, out, nil
}

func (m *MemoryStore) Contains(id crypto.ObjectId) (bool, error) {
	s := m.shardFor(id)

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.data[id]
	return exists, nil
}

func (m *MemoryStore) Delete(id crypto.ObjectId) error {
	s := m.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// Len returns the total number of objects stored across all shards.
func (m *MemoryStore) Len() int {
	total := 0
	for _, s := range m.shards {
		s.mu.RLock()
		total += len(s.data)
		s.mu.RUnlock()
	}
	return total
}
