package storage

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

const mib = 1 << 20

var (
	// ErrBlockNotFound is returned when a block id is not in the store.
	ErrBlockNotFound = errors.New("block not found")

	// ErrNoSpace is returned when a write would exceed the store capacity.
	ErrNoSpace = errors.New("no space left on data node")
)

// Block describes one stored block. Only its size is kept; contents are
// never materialized.
type Block struct {
	ID   string `json:"id"`
	Size int64  `json:"size"`
}

// Store is the block ledger of a simulated data node.
// All implementations must be safe for concurrent use.
type Store interface {
	// Get returns the block with the given id, or ErrBlockNotFound.
	Get(id string) (Block, error)

	// Put records a block of size bytes, replacing any block with the same
	// id. It fails with ErrNoSpace when the capacity would be exceeded.
	Put(id string, size int64) error

	// Delete removes a block. Deleting a missing block is not an error.
	Delete(id string) error

	// List returns the block ids in ascending order.
	List() []string

	// Stats returns capacity and usage figures.
	Stats() Stats
}

// Stats summarizes a store.
type Stats struct {
	Blocks   int   `json:"blocks"`
	Bytes    int64 `json:"bytes"`
	Capacity int64 `json:"capacity"`
}

// UsedMiB returns the used space rounded up to whole MiB, the unit data
// nodes report in.
func (s Stats) UsedMiB() int64 {
	return (s.Bytes + mib - 1) / mib
}

// CapacityMiB returns the capacity in whole MiB.
func (s Stats) CapacityMiB() int64 {
	return s.Capacity / mib
}

// MemoryStore is an in-memory Store bounded by a fixed capacity.
type MemoryStore struct {
	mu       sync.RWMutex
	blocks   map[string]int64 // id -> size
	used     int64
	capacity int64
}

// NewMemoryStore creates an empty store holding at most capacityMiB MiB.
func NewMemoryStore(capacityMiB int64) *MemoryStore {
	return &MemoryStore{
		blocks:   make(map[string]int64),
		capacity: capacityMiB * mib,
	}
}

func (m *MemoryStore) Get(id string) (Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size, ok := m.blocks[id]
	if !ok {
		return Block{}, errors.Wrapf(ErrBlockNotFound, "block %q", id)
	}
	return Block{ID: id, Size: size}, nil
}

func (m *MemoryStore) Put(id string, size int64) error {
	if id == "" {
		return errors.New("block id must not be empty")
	}
	if size < 0 {
		return errors.Newf("block size must not be negative, got %d", size)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	used := m.used - m.blocks[id] + size
	if used > m.capacity {
		return errors.Wrapf(ErrNoSpace, "block %q needs %d bytes, %d free", id, size, m.capacity-m.used)
	}
	m.blocks[id] = size
	m.used = used
	return nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used -= m.blocks[id]
	delete(m.blocks, id)
	return nil
}

func (m *MemoryStore) List() []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.blocks))
	for id := range m.blocks {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Blocks: len(m.blocks), Bytes: m.used, Capacity: m.capacity}
}
