package state_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventhub/pkg/eventhub/state"
)

func TestVersionedState_ResolveFloor(t *testing.T) {
	s := state.New("ext")

	require.NoError(t, s.Set(2, map[string]any{"v": 2}))
	require.NoError(t, s.AddPending(5))
	require.NoError(t, s.Set(9, map[string]any{"v": 9}))

	tests := []struct {
		name       string
		version    int64
		wantData   map[string]any
		wantStatus state.Status
	}{
		{"before first", 1, nil, state.StatusAbsent},
		{"exact first", 2, map[string]any{"v": 2}, state.StatusSet},
		{"between set and pending", 4, map[string]any{"v": 2}, state.StatusSet},
		{"exact pending", 5, nil, state.StatusPending},
		{"after pending", 8, nil, state.StatusPending},
		{"exact last", 9, map[string]any{"v": 9}, state.StatusSet},
		{"beyond last", 100, map[string]any{"v": 9}, state.StatusSet},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, status := s.Resolve(tt.version)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantData == nil {
				assert.Nil(t, data)
			} else {
				assert.Equal(t, tt.wantData, data)
			}
		})
	}
}

func TestVersionedState_EmptyIsAbsent(t *testing.T) {
	s := state.New("ext")

	data, status := s.Resolve(10)
	assert.Nil(t, data)
	assert.Equal(t, state.StatusAbsent, status)

	_, ok := s.Latest()
	assert.False(t, ok)
}

func TestVersionedState_RejectsNonIncreasingVersions(t *testing.T) {
	s := state.New("ext")
	require.NoError(t, s.Set(5, map[string]any{"a": 1}))

	err := s.Set(5, map[string]any{"a": 2})
	assert.ErrorIs(t, err, state.ErrVersionNotIncreasing)

	err = s.AddPending(3)
	assert.ErrorIs(t, err, state.ErrVersionNotIncreasing)

	// Rejected writes leave the chain untouched.
	data, status := s.Resolve(5)
	assert.Equal(t, state.StatusSet, status)
	assert.Equal(t, map[string]any{"a": 1}, data)
	assert.Equal(t, 1, s.Len())
}

func TestVersionedState_ResolvePending(t *testing.T) {
	s := state.New("ext")
	require.NoError(t, s.AddPending(3))

	require.NoError(t, s.ResolvePending(3, map[string]any{"k": "v"}))
	data, status := s.Resolve(3)
	assert.Equal(t, state.StatusSet, status)
	assert.Equal(t, map[string]any{"k": "v"}, data)

	// Second resolution is rejected and does not overwrite.
	err := s.ResolvePending(3, map[string]any{"k": "other"})
	assert.ErrorIs(t, err, state.ErrNotPending)
	data, _ = s.Resolve(3)
	assert.Equal(t, map[string]any{"k": "v"}, data)
}

func TestVersionedState_ResolvePendingMissingVersion(t *testing.T) {
	s := state.New("ext")
	require.NoError(t, s.AddPending(3))

	assert.ErrorIs(t, s.ResolvePending(4, nil), state.ErrNotPending)
	assert.ErrorIs(t, s.ResolvePending(1, nil), state.ErrNotPending)

	require.NoError(t, s.Set(7, nil))
	assert.ErrorIs(t, s.ResolvePending(7, nil), state.ErrNotPending)
}

func TestVersionedState_ResolveLastSet(t *testing.T) {
	s := state.New("ext")
	require.NoError(t, s.Set(1, map[string]any{"v": 1}))
	require.NoError(t, s.AddPending(4))

	data, status := s.ResolveLastSet(10)
	assert.Equal(t, state.StatusSet, status)
	assert.Equal(t, map[string]any{"v": 1}, data)

	_, status = s.ResolveLastSet(0)
	assert.Equal(t, state.StatusAbsent, status)

	only := state.New("pending-only")
	require.NoError(t, only.AddPending(2))
	_, status = only.ResolveLastSet(5)
	assert.Equal(t, state.StatusAbsent, status)
}

func TestVersionedState_SetCopiesData(t *testing.T) {
	s := state.New("ext")
	data := map[string]any{"k": 1}
	require.NoError(t, s.Set(1, data))

	data["k"] = 2
	got, _ := s.Resolve(1)
	assert.Equal(t, 1, got["k"])
}

func TestVersionedState_RetentionEvictsOldestSet(t *testing.T) {
	s := state.New("ext", state.WithRetention(3))

	require.NoError(t, s.AddPending(1))
	for v := int64(2); v <= 6; v++ {
		require.NoError(t, s.Set(v, map[string]any{"v": v}))
	}

	assert.Equal(t, 3, s.Len())

	// Pending survives eviction.
	_, status := s.Resolve(1)
	assert.Equal(t, state.StatusPending, status)

	// Evicted versions resolve to the nearest retained older snapshot.
	_, status = s.Resolve(4)
	assert.Equal(t, state.StatusPending, status)

	data, status := s.Resolve(6)
	assert.Equal(t, state.StatusSet, status)
	assert.Equal(t, map[string]any{"v": int64(6)}, data)

	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, int64(6), latest.Version)
}

func TestVersionedState_RetentionOlderThanRetainedIsAbsent(t *testing.T) {
	s := state.New("ext", state.WithRetention(2))
	for v := int64(1); v <= 5; v++ {
		require.NoError(t, s.Set(v, map[string]any{"v": v}))
	}

	_, status := s.Resolve(3)
	assert.Equal(t, state.StatusAbsent, status)

	_, status = s.Resolve(4)
	assert.Equal(t, state.StatusSet, status)
}

func TestVersionedState_RetentionNeverEvictsPending(t *testing.T) {
	s := state.New("ext", state.WithRetention(1))
	require.NoError(t, s.AddPending(1))
	require.NoError(t, s.AddPending(2))
	require.NoError(t, s.AddPending(3))

	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.ResolvePending(1, nil))
	require.NoError(t, s.ResolvePending(2, nil))
	// Versions 1 and 2 are now set and evictable; 3 is pending.
	assert.Equal(t, 1, s.Len())
}

func TestVersionedState_ZeroRetentionKeepsEverything(t *testing.T) {
	s := state.New("ext", state.WithRetention(0))
	for v := int64(1); v <= 200; v++ {
		require.NoError(t, s.Set(v, nil))
	}
	assert.Equal(t, 200, s.Len())
}

func TestVersionedState_LogsRejections(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s := state.New("ext", state.WithLogger(logger))
	require.NoError(t, s.Set(2, nil))
	_ = s.Set(1, nil)

	assert.Contains(t, buf.String(), "shared state write rejected")
	assert.Contains(t, buf.String(), "extension=ext")
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "absent", state.StatusAbsent.String())
	assert.Equal(t, "set", state.StatusSet.String())
	assert.Equal(t, "pending", state.StatusPending.String())
}
