package eventhub

import (
	"context"
	"fmt"
	"math"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
	"github.com/randalmurphal/eventhub/pkg/eventhub/state"
)

// StateKind selects one of an extension's two shared states.
type StateKind int

const (
	// StateStandard is the general-purpose shared state.
	StateStandard StateKind = iota
	// StateXDM holds experience data model payloads.
	StateXDM

	stateKinds = 2
)

// String returns the kind name.
func (k StateKind) String() string {
	if k == StateXDM {
		return "xdm"
	}
	return "standard"
}

func (k StateKind) source() string {
	if k == StateXDM {
		return event.SourceSharedStateXDM
	}
	return event.SourceSharedState
}

func (k StateKind) eventName() string {
	if k == StateXDM {
		return "Shared state change (XDM)"
	}
	return "Shared state change"
}

// Resolution selects how a read walks the version history.
type Resolution int

const (
	// ResolutionAny returns the snapshot at or below the requested version,
	// pending or not.
	ResolutionAny Resolution = iota
	// ResolutionLastSet skips pending snapshots and returns the newest set
	// one at or below the requested version.
	ResolutionLastSet
)

// StateQuery describes a shared state read.
type StateQuery struct {
	Kind       StateKind
	Resolution Resolution
	// Barrier reports a set result as pending until the owner has handled
	// every event before the requested one.
	Barrier bool
}

// CreateSharedState records data as owner's standard shared state at the
// version of e. A nil or undispatched e writes at the next version.
func (h *Hub) CreateSharedState(owner string, data map[string]any, e *event.Event) error {
	return h.createState(StateStandard, owner, data, e)
}

// CreateXDMSharedState records data as owner's XDM shared state.
func (h *Hub) CreateXDMSharedState(owner string, data map[string]any, e *event.Event) error {
	return h.createState(StateXDM, owner, data, e)
}

// CreatePendingSharedState reserves owner's standard shared state at the
// version of e. Readers at that version see StatusPending until the returned
// Resolver is called.
func (h *Hub) CreatePendingSharedState(owner string, e *event.Event) (Resolver, error) {
	return h.createPending(StateStandard, owner, e)
}

// CreatePendingXDMSharedState reserves owner's XDM shared state.
func (h *Hub) CreatePendingXDMSharedState(owner string, e *event.Event) (Resolver, error) {
	return h.createPending(StateXDM, owner, e)
}

// GetSharedState returns owner's standard shared state as of e, or the
// latest state when e is nil or undispatched.
func (h *Hub) GetSharedState(owner string, e *event.Event) (map[string]any, state.Status) {
	return h.QuerySharedState(owner, e, StateQuery{Kind: StateStandard})
}

// GetXDMSharedState returns owner's XDM shared state as of e.
func (h *Hub) GetXDMSharedState(owner string, e *event.Event) (map[string]any, state.Status) {
	return h.QuerySharedState(owner, e, StateQuery{Kind: StateXDM})
}

// QuerySharedState reads owner's shared state. An unknown owner yields
// (nil, state.StatusAbsent).
func (h *Hub) QuerySharedState(owner string, e *event.Event, q StateQuery) (map[string]any, state.Status) {
	c, ok := h.containers.Get(owner)
	if !ok || q.Kind < 0 || q.Kind >= stateKinds {
		return nil, state.StatusAbsent
	}

	version := int64(math.MaxInt64)
	if e != nil && e.Number() > 0 {
		version = e.Number()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	st := c.states[q.Kind]
	var (
		data   map[string]any
		status state.Status
	)
	if q.Resolution == ResolutionLastSet {
		data, status = st.ResolveLastSet(version)
	} else {
		data, status = st.Resolve(version)
	}

	if q.Barrier && status == state.StatusSet && version != math.MaxInt64 &&
		c.lastProcessed.Load() < version-1 {
		return data, state.StatusPending
	}
	return data, status
}

func (h *Hub) createState(kind StateKind, owner string, data map[string]any, e *event.Event) error {
	c, err := h.stateOwner(kind, owner)
	if err != nil {
		return err
	}

	h.mu.Lock()
	version := h.versionLocked(e)
	err = c.states[kind].Set(version, data)
	h.mu.Unlock()
	if err != nil {
		return fmt.Errorf("create %s shared state for %q: %w", kind, owner, err)
	}

	h.stateChanged(kind, owner, version, state.StatusSet)
	return nil
}

func (h *Hub) createPending(kind StateKind, owner string, e *event.Event) (Resolver, error) {
	c, err := h.stateOwner(kind, owner)
	if err != nil {
		return nil, err
	}

	st := c.states[kind]
	h.mu.Lock()
	version := h.versionLocked(e)
	err = st.AddPending(version)
	h.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("create pending %s shared state for %q: %w", kind, owner, err)
	}

	h.stateChanged(kind, owner, version, state.StatusPending)

	return func(data map[string]any) error {
		h.mu.Lock()
		err := st.ResolvePending(version, data)
		h.mu.Unlock()
		if err != nil {
			return fmt.Errorf("resolve %s shared state for %q: %w", kind, owner, err)
		}
		h.stateChanged(kind, owner, version, state.StatusSet)
		return nil
	}, nil
}

func (h *Hub) stateOwner(kind StateKind, owner string) (*container, error) {
	c, ok := h.containers.Get(owner)
	if !ok {
		observability.LogUnknownExtension(h.logger, "create_"+kind.String()+"_shared_state", owner)
		return nil, fmt.Errorf("create %s shared state for %q: %w", kind, owner, ErrExtensionNotFound)
	}
	return c, nil
}

// versionLocked picks the version a write lands at: the number of e when it
// has been dispatched, otherwise a fresh number. Caller holds h.mu.
func (h *Hub) versionLocked(e *event.Event) int64 {
	if e != nil {
		if n := e.Number(); n > 0 {
			return n
		}
	}
	h.counter++
	return h.counter
}

// stateChanged announces a shared state write to every extension.
func (h *Hub) stateChanged(kind StateKind, owner string, version int64, status state.Status) {
	observability.LogStateChanged(h.logger, owner, kind.String(), version, status.String())
	h.metrics.RecordStateChange(context.Background(), owner, status.String())

	h.Dispatch(event.New(kind.eventName(), event.TypeHub, kind.source(), map[string]any{
		event.KeyStateOwner: owner,
	}))
}
