/*
Package eventhub provides an in-process event hub for independently
developed extensions.

# Overview

Extensions are registered with a Hub and communicate only through it: they
dispatch events, listen for events by (type, source), and publish versioned
shared state that other extensions read as of a specific event.

Each extension runs on its own lane, a serial executor. Callbacks of one
extension never run concurrently with each other, while a slow extension
never delays delivery to the others.

# Basic Usage

	type Greeter struct {
	    eventhub.BaseExtension
	    rt eventhub.Runtime
	}

	func (g *Greeter) Name() string    { return "greeter" }
	func (g *Greeter) Version() string { return "1.0.0" }

	func (g *Greeter) OnRegistered() {
	    g.rt.RegisterListener("hello", event.Wildcard, func(e *event.Event) {
	        g.rt.Logger().Info("hello received", "from", e.Source())
	    })
	}

	func main() {
	    hub := eventhub.New()
	    err := hub.RegisterExtension(ctx, func(rt eventhub.Runtime) (eventhub.Extension, error) {
	        return &Greeter{rt: rt}, nil
	    })
	    if err != nil {
	        log.Fatal(err)
	    }
	    hub.Start()
	    defer hub.Shutdown(context.Background())

	    hub.Dispatch(event.New("Hello", "hello", "app", nil))
	}

# Event Ordering

Dispatch assigns every event a strictly increasing number. Each extension
observes events in that order. An extension whose ReadyForEvent returns
false holds its queue at that event until a later event is admitted or it
calls Runtime.StartEvents.

# Responses

RegisterResponseListener binds a listener to the first event whose
response ID matches a trigger event. If no response arrives before the
timeout, the listener is called with nil. Exactly one of the two happens.

# Shared State

Every extension owns a standard and an XDM shared state. Writes are
recorded at the number of the event that caused them, so a reader asking
"as of event N" sees the state that was current when N was dispatched:

	rt.CreateSharedState(map[string]any{"id": "abc"}, e)
	data, status := rt.GetSharedState("identity", e)

A pending write reserves a version before its data is known:

	resolve, _ := rt.CreatePendingSharedState(e)
	go func() { resolve(fetch()) }()

Every change is announced with an event of type "hub" and source
"sharedState" or "sharedStateXDM" whose data names the owner under
"stateowner".

# Hub State

The hub registers itself as extension "eventhub" and publishes the list of
registered extensions, with their versions and metadata, as its shared
state.

# Observability

Structured logging goes through log/slog (see WithLogger). WithMetrics and
WithTracing enable OpenTelemetry instruments and spans for dispatch,
delivery, response timeouts and shared state changes.
*/
package eventhub
