package graph

import "sync"

// Store owns the current snapshot of a graph and serializes commits to it.
// Readers take a snapshot and work against it without blocking writers.
type Store interface {
	// Snapshot returns the current snapshot.
	Snapshot() *Snapshot

	// Commit applies the patch to the current snapshot and, on success,
	// installs the result as the new current snapshot. On failure the
	// current snapshot is unchanged.
	Commit(patch Patch) (*Snapshot, error)
}

// MemStore is an in-memory Store guarded by a read-write mutex. Commits are
// serialized; snapshots taken before a commit remain valid and unchanged.
type MemStore struct {
	mu   sync.RWMutex
	head *Snapshot
	rev  uint64
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns a store seeded with the given snapshot. A nil initial
// snapshot starts the store empty.
func NewMemStore(initial *Snapshot) *MemStore {
	if initial == nil {
		initial = NewSnapshot()
	}
	return &MemStore{head: initial}
}

// Snapshot returns the current snapshot.
func (m *MemStore) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.head
}

// Commit applies the patch to the current snapshot and advances the head.
func (m *MemStore) Commit(patch Patch) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := m.head.Apply(patch)
	if err != nil {
		return nil, err
	}
	m.head = next
	m.rev++
	return next, nil
}

// Revision returns the number of commits applied since the store was created.
func (m *MemStore) Revision() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rev
}
