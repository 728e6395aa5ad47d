// Package state implements the versioned shared-state store kept by every
// extension container.
//
// A VersionedState holds snapshots ordered by strictly increasing version.
// Versions share the hub's event-number space, so resolving at version V
// answers "what had this extension published when event V was dispatched".
//
// A snapshot is either set (data published) or pending (a write reserved at
// that version whose data is not known yet). Pending snapshots are resolved
// in place exactly once with ResolvePending.
package state

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"

	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
)

// DefaultRetention is the number of snapshots kept per state when no
// retention is configured.
const DefaultRetention = 64

// Status is the resolution status of a snapshot.
type Status int

const (
	// StatusAbsent means no snapshot exists at or before the requested version.
	StatusAbsent Status = iota
	// StatusSet means data has been published.
	StatusSet
	// StatusPending means a write is reserved but its data is not known yet.
	StatusPending
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSet:
		return "set"
	case StatusPending:
		return "pending"
	default:
		return "absent"
	}
}

// Sentinel errors for ordering violations.
var (
	// ErrVersionNotIncreasing is returned when a version is not greater than
	// the newest stored version.
	ErrVersionNotIncreasing = errors.New("version not greater than current")

	// ErrNotPending is returned when ResolvePending targets a version that is
	// missing or already set.
	ErrNotPending = errors.New("version is not pending")
)

// Snapshot is one published or reserved state entry.
type Snapshot struct {
	Version int64
	Status  Status
	Data    map[string]any
}

// Option configures a VersionedState.
type Option func(*VersionedState)

// WithRetention bounds the number of retained snapshots. When exceeded, the
// oldest set snapshots are evicted; pending snapshots and the newest
// snapshot are never evicted. Zero disables eviction.
func WithRetention(n int) Option {
	return func(s *VersionedState) {
		if n >= 0 {
			s.retention = n
		}
	}
}

// WithLogger sets the logger used to report rejected writes and evictions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *VersionedState) {
		s.logger = logger
	}
}

// VersionedState is the snapshot store of one extension.
// It is safe for concurrent use.
type VersionedState struct {
	owner     string
	retention int
	logger    *slog.Logger

	mu        sync.RWMutex
	snapshots []Snapshot // ordered by Version, ascending
}

// New creates an empty state owned by the named extension.
func New(owner string, opts ...Option) *VersionedState {
	s := &VersionedState{
		owner:     owner,
		retention: DefaultRetention,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Owner returns the owning extension name.
func (s *VersionedState) Owner() string {
	return s.owner
}

// Set stores data as a set snapshot at version.
func (s *VersionedState) Set(version int64, data map[string]any) error {
	return s.add(Snapshot{Version: version, Status: StatusSet, Data: maps.Clone(data)})
}

// AddPending reserves version as a pending snapshot.
func (s *VersionedState) AddPending(version int64) error {
	return s.add(Snapshot{Version: version, Status: StatusPending})
}

// ResolvePending turns the pending snapshot at exactly version into a set
// snapshot carrying data.
func (s *VersionedState) ResolvePending(version int64, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(version)
	if !ok || s.snapshots[i].Status != StatusPending {
		err := fmt.Errorf("resolve pending %d: %w", version, ErrNotPending)
		observability.LogStateRejected(s.logger, s.owner, version, err)
		return err
	}

	s.snapshots[i].Status = StatusSet
	s.snapshots[i].Data = maps.Clone(data)
	s.evictLocked()
	return nil
}

// Resolve returns the snapshot with the greatest version <= version.
// When none qualifies the status is StatusAbsent and data is nil.
// The returned map is shared and must not be modified.
func (s *VersionedState) Resolve(version int64) (map[string]any, Status) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.floor(version)
	if i < 0 {
		return nil, StatusAbsent
	}
	snap := s.snapshots[i]
	return snap.Data, snap.Status
}

// ResolveLastSet is Resolve that skips pending snapshots and returns the
// newest set snapshot with version <= version.
func (s *VersionedState) ResolveLastSet(version int64) (map[string]any, Status) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := s.floor(version); i >= 0; i-- {
		if s.snapshots[i].Status == StatusSet {
			return s.snapshots[i].Data, StatusSet
		}
	}
	return nil, StatusAbsent
}

// Latest returns the newest snapshot, if any.
func (s *VersionedState) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return Snapshot{}, false
	}
	return s.snapshots[len(s.snapshots)-1], true
}

// Len returns the number of retained snapshots.
func (s *VersionedState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

func (s *VersionedState) add(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.snapshots); n > 0 && snap.Version <= s.snapshots[n-1].Version {
		err := fmt.Errorf("add %s %d after %d: %w",
			snap.Status, snap.Version, s.snapshots[n-1].Version, ErrVersionNotIncreasing)
		observability.LogStateRejected(s.logger, s.owner, snap.Version, err)
		return err
	}

	s.snapshots = append(s.snapshots, snap)
	s.evictLocked()
	return nil
}

// floor returns the index of the greatest version <= version, or -1.
func (s *VersionedState) floor(version int64) int {
	i := sort.Search(len(s.snapshots), func(i int) bool {
		return s.snapshots[i].Version > version
	})
	return i - 1
}

func (s *VersionedState) find(version int64) (int, bool) {
	i := s.floor(version)
	if i < 0 || s.snapshots[i].Version != version {
		return 0, false
	}
	return i, true
}

func (s *VersionedState) evictLocked() {
	if s.retention <= 0 || len(s.snapshots) <= s.retention {
		return
	}

	excess := len(s.snapshots) - s.retention
	last := len(s.snapshots) - 1
	kept := s.snapshots[:0]
	for i, snap := range s.snapshots {
		if excess > 0 && i != last && snap.Status == StatusSet {
			excess--
			observability.LogStateEvicted(s.logger, s.owner, snap.Version)
			continue
		}
		kept = append(kept, snap)
	}
	clear(s.snapshots[len(kept):])
	s.snapshots = kept
}
