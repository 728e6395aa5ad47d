package eventhub

import (
	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
)

// Extension is a unit of business logic hosted by the hub.
//
// Every method is called on the extension's own lane, so an extension never
// sees two of its callbacks run concurrently.
type Extension interface {
	// Name uniquely identifies the extension within a hub.
	Name() string

	// Version is reported in the hub's shared state.
	Version() string

	// OnRegistered runs once the extension is installed. Listeners are
	// normally registered here.
	OnRegistered()

	// OnUnregistered runs when the extension is removed or the hub shuts down.
	OnUnregistered()

	// ReadyForEvent gates delivery. Returning false holds e, and every
	// event after it, until the extension's queue is triggered again by a
	// newly admitted event or by Runtime.StartEvents.
	ReadyForEvent(e *event.Event) bool
}

// FriendlyNamer is implemented by extensions that publish a display name in
// the hub's shared state.
type FriendlyNamer interface {
	FriendlyName() string
}

// MetadataProvider is implemented by extensions that publish metadata in the
// hub's shared state.
type MetadataProvider interface {
	Metadata() map[string]string
}

// Factory builds an extension. It runs on the new extension's lane and
// receives the runtime handle the extension uses to talk to the hub.
// Runtime calls made before the factory returns are ignored; register
// listeners in OnRegistered.
type Factory func(rt Runtime) (Extension, error)

// Listener receives an event on its extension's lane. Response listeners
// receive nil when their timeout elapses.
type Listener func(e *event.Event)

// Resolver publishes the data of a pending shared state. It may be called
// once; later calls return state.ErrNotPending.
type Resolver func(data map[string]any) error

// BaseExtension provides no-op lifecycle hooks and accepts every event.
// Embed it to implement only the hooks an extension needs.
type BaseExtension struct{}

// OnRegistered does nothing.
func (BaseExtension) OnRegistered() {}

// OnUnregistered does nothing.
func (BaseExtension) OnUnregistered() {}

// ReadyForEvent returns true.
func (BaseExtension) ReadyForEvent(*event.Event) bool { return true }
