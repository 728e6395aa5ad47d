// Package storage provides the persistence collaborators used by
// extensions: a durable FIFO of opaque records and a key-value store.
//
// Memory implementations serve tests and ephemeral processes; SQLite
// implementations survive restarts.
package storage

import (
	"errors"
	"time"
)

// DataQueue is a durable first-in first-out queue of records.
// Implementations must be safe for concurrent use.
type DataQueue interface {
	// Add appends a record at the tail.
	Add(rec Record) error

	// Peek returns up to n records from the head, oldest first, without
	// removing them. Returns an empty slice (not error) when empty.
	Peek(n int) ([]Record, error)

	// Remove deletes the record with the given ID.
	// Returns nil if no such record exists.
	Remove(id string) error

	// Clear deletes every record.
	Clear() error

	// Count returns the number of stored records.
	Count() (int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// KVStore persists small values between launches.
// Implementations must be safe for concurrent use.
type KVStore interface {
	// Get returns the value for key.
	// Returns ErrNotFound if the key doesn't exist.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes key. Returns nil if key doesn't exist.
	Delete(key string) error

	// Close releases any resources.
	Close() error
}

// Record is one queued entry.
type Record struct {
	ID        string
	Timestamp time.Time
	Data      []byte
}

// Sentinel errors for storage operations.
var (
	// ErrNotFound indicates a key doesn't exist.
	ErrNotFound = errors.New("key not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store closed")

	// ErrInvalidRecord indicates a record without an ID.
	ErrInvalidRecord = errors.New("record has no id")
)
