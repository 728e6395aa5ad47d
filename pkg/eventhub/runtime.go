package eventhub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
	"github.com/randalmurphal/eventhub/pkg/eventhub/state"
)

// Runtime is an extension's handle to its hub. Every call is scoped to the
// owning extension; calls made while the extension is not registered are
// ignored, and create calls return ErrExtensionNotFound.
type Runtime interface {
	// RegisterListener delivers events matching eventType and source to
	// listener. Either may be event.Wildcard.
	RegisterListener(eventType, source string, listener Listener)

	// RegisterResponseListener calls listener with the first event that
	// answers trigger, or with nil once timeout elapses. A non-positive
	// timeout uses the hub's default.
	RegisterResponseListener(trigger *event.Event, timeout time.Duration, listener Listener)

	// Dispatch sends an event through the hub.
	Dispatch(e *event.Event)

	// CreateSharedState publishes data as the extension's standard shared
	// state at the version of e, or at the latest version when e is nil.
	CreateSharedState(data map[string]any, e *event.Event) error

	// CreatePendingSharedState reserves a version whose data is supplied
	// later through the returned Resolver.
	CreatePendingSharedState(e *event.Event) (Resolver, error)

	// CreateXDMSharedState is CreateSharedState for the XDM state.
	CreateXDMSharedState(data map[string]any, e *event.Event) error

	// CreatePendingXDMSharedState is CreatePendingSharedState for the XDM
	// state.
	CreatePendingXDMSharedState(e *event.Event) (Resolver, error)

	// GetSharedState reads owner's standard shared state as of e.
	GetSharedState(owner string, e *event.Event) (map[string]any, state.Status)

	// GetXDMSharedState reads owner's XDM shared state as of e.
	GetXDMSharedState(owner string, e *event.Event) (map[string]any, state.Status)

	// QuerySharedState reads owner's shared state with explicit options.
	QuerySharedState(owner string, e *event.Event, q StateQuery) (map[string]any, state.Status)

	// StartEvents resumes delivery to the extension, retrying the event
	// ReadyForEvent last declined.
	StartEvents()

	// StopEvents pauses delivery to the extension. Events keep queueing.
	StopEvents()

	// Unregister removes the extension from the hub asynchronously.
	Unregister()

	// Logger returns a logger tagged with the extension name.
	Logger() *slog.Logger
}

type extensionRuntime struct {
	c *container
}

// owner returns the extension name if the extension is registered.
func (r *extensionRuntime) owner(op string) (string, bool) {
	if !r.c.registered.Load() {
		observability.LogUnknownExtension(r.c.hub.logger, op, "")
		return "", false
	}
	return r.c.name, true
}

func (r *extensionRuntime) RegisterListener(eventType, source string, listener Listener) {
	if name, ok := r.owner("register_listener"); ok {
		r.c.hub.RegisterListener(name, eventType, source, listener)
	}
}

func (r *extensionRuntime) RegisterResponseListener(trigger *event.Event, timeout time.Duration, listener Listener) {
	if name, ok := r.owner("register_response_listener"); ok {
		r.c.hub.RegisterResponseListener(name, trigger, timeout, listener)
	}
}

func (r *extensionRuntime) Dispatch(e *event.Event) {
	if _, ok := r.owner("dispatch"); ok {
		r.c.hub.Dispatch(e)
	}
}

func (r *extensionRuntime) CreateSharedState(data map[string]any, e *event.Event) error {
	name, ok := r.owner("create_shared_state")
	if !ok {
		return fmt.Errorf("create shared state: %w", ErrExtensionNotFound)
	}
	return r.c.hub.CreateSharedState(name, data, e)
}

func (r *extensionRuntime) CreatePendingSharedState(e *event.Event) (Resolver, error) {
	name, ok := r.owner("create_pending_shared_state")
	if !ok {
		return nil, fmt.Errorf("create pending shared state: %w", ErrExtensionNotFound)
	}
	return r.c.hub.CreatePendingSharedState(name, e)
}

func (r *extensionRuntime) CreateXDMSharedState(data map[string]any, e *event.Event) error {
	name, ok := r.owner("create_xdm_shared_state")
	if !ok {
		return fmt.Errorf("create xdm shared state: %w", ErrExtensionNotFound)
	}
	return r.c.hub.CreateXDMSharedState(name, data, e)
}

func (r *extensionRuntime) CreatePendingXDMSharedState(e *event.Event) (Resolver, error) {
	name, ok := r.owner("create_pending_xdm_shared_state")
	if !ok {
		return nil, fmt.Errorf("create pending xdm shared state: %w", ErrExtensionNotFound)
	}
	return r.c.hub.CreatePendingXDMSharedState(name, e)
}

func (r *extensionRuntime) GetSharedState(owner string, e *event.Event) (map[string]any, state.Status) {
	return r.c.hub.GetSharedState(owner, e)
}

func (r *extensionRuntime) GetXDMSharedState(owner string, e *event.Event) (map[string]any, state.Status) {
	return r.c.hub.GetXDMSharedState(owner, e)
}

func (r *extensionRuntime) QuerySharedState(owner string, e *event.Event, q StateQuery) (map[string]any, state.Status) {
	return r.c.hub.QuerySharedState(owner, e, q)
}

func (r *extensionRuntime) StartEvents() {
	if _, ok := r.owner("start_events"); ok {
		r.c.events.Start()
	}
}

func (r *extensionRuntime) StopEvents() {
	if _, ok := r.owner("stop_events"); ok {
		r.c.events.Stop()
	}
}

func (r *extensionRuntime) Unregister() {
	name, ok := r.owner("unregister")
	if !ok {
		return
	}
	// Unregistering waits for the lane, which may be the caller's.
	go func() {
		if err := r.c.hub.UnregisterExtension(context.Background(), name); err != nil {
			r.c.logger.Warn("unregister failed", slog.String("error", err.Error()))
		}
	}()
}

func (r *extensionRuntime) Logger() *slog.Logger {
	return r.c.logger
}
