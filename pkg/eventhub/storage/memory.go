package storage

import (
	"bytes"
	"slices"
	"sync"
)

// MemoryQueue is an in-memory DataQueue for testing.
// Data is lost when the process exits.
type MemoryQueue struct {
	mu      sync.Mutex
	records []Record
	closed  bool
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

// Add implements DataQueue.
func (q *MemoryQueue) Add(rec Record) error {
	if rec.ID == "" {
		return ErrInvalidRecord
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	rec.Data = bytes.Clone(rec.Data)
	q.records = append(q.records, rec)
	return nil
}

// Peek implements DataQueue.
func (q *MemoryQueue) Peek(n int) ([]Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	n = min(n, len(q.records))
	if n <= 0 {
		return []Record{}, nil
	}
	out := make([]Record, n)
	for i, rec := range q.records[:n] {
		rec.Data = bytes.Clone(rec.Data)
		out[i] = rec
	}
	return out, nil
}

// Remove implements DataQueue.
func (q *MemoryQueue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.records = slices.DeleteFunc(q.records, func(r Record) bool { return r.ID == id })
	return nil
}

// Clear implements DataQueue.
func (q *MemoryQueue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.records = nil
	return nil
}

// Count implements DataQueue.
func (q *MemoryQueue) Count() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrClosed
	}
	return len(q.records), nil
}

// Close implements DataQueue.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.records = nil
	return nil
}

// MemoryKV is an in-memory KVStore for testing.
type MemoryKV struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryKV creates an empty in-memory key-value store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get implements KVStore.
func (m *MemoryKV) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to prevent modification
	return bytes.Clone(v), nil
}

// Set implements KVStore.
func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.data[key] = bytes.Clone(value)
	return nil
}

// Delete implements KVStore.
func (m *MemoryKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	delete(m.data, key)
	return nil
}

// Close implements KVStore.
func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.data = nil
	return nil
}

// Len returns the number of stored keys.
// Useful for testing.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
