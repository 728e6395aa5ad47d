package eventhub

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
	"github.com/randalmurphal/eventhub/pkg/eventhub/queue"
	"github.com/randalmurphal/eventhub/pkg/eventhub/state"
)

var errListenerPanic = errors.New("listener panicked")

type listenerBinding struct {
	eventType string
	source    string
	listener  Listener
}

type responseBinding struct {
	listener Listener
	timeout  time.Duration
	timer    *time.Timer
}

// container hosts one extension: its lane, its event queue, its listeners
// and its two shared states.
type container struct {
	hub     *Hub
	lane    *queue.Lane
	events  *queue.OrderedQueue[*event.Event]
	runtime *extensionRuntime

	// Written by bind before the container is published in the registry.
	ext    Extension
	name   string
	logger *slog.Logger
	states [stateKinds]*state.VersionedState

	registered    atomic.Bool
	lastProcessed atomic.Int64

	mu        sync.Mutex
	closed    bool
	listeners []listenerBinding
	responses map[string][]*responseBinding
}

func newContainer(h *Hub, lane *queue.Lane) *container {
	c := &container{
		hub:       h,
		lane:      lane,
		logger:    h.logger,
		responses: make(map[string][]*responseBinding),
	}
	c.runtime = &extensionRuntime{c: c}
	return c
}

// bind attaches the extension built by the factory. The event queue is
// created stopped; activate starts it once OnRegistered is queued.
func (c *container) bind(ext Extension) {
	c.ext = ext
	c.name = ext.Name()
	c.logger = observability.EnrichLogger(c.hub.logger, c.name, c.lane.Name())

	retention := state.WithRetention(c.hub.cfg.stateRetention)
	stateLog := state.WithLogger(c.logger)
	for k := range c.states {
		c.states[k] = state.New(c.name, retention, stateLog)
	}

	c.events = queue.New[*event.Event](c.name, queue.WithLogger(c.logger))
	c.events.SetHandler(c.handleEvent)
}

func (c *container) activate() {
	c.registered.Store(true)
	if err := c.lane.Submit(c.ext.OnRegistered); err != nil {
		c.logger.Warn("OnRegistered not scheduled", slog.String("error", err.Error()))
	}
	c.events.Start()
}

// discard releases a container that lost the registration race.
func (c *container) discard() {
	c.events.Close()
	c.lane.Close()
}

func (c *container) enqueue(e *event.Event) {
	if err := c.events.Push(e); err != nil && !errors.Is(err, queue.ErrClosed) {
		c.logger.Warn("event not queued", slog.String("event_id", e.ID()), slog.String("error", err.Error()))
	}
}

// handleEvent runs on the container's event queue. Delivery happens on the
// lane; the event stays at the head of the queue until the extension is
// ready for it.
func (c *container) handleEvent(e *event.Event) bool {
	handled := false
	err := c.lane.Run(context.Background(), func() {
		if !c.ext.ReadyForEvent(e) {
			return
		}
		c.deliver(e)
		c.lastProcessed.Store(e.Number())
		handled = true
	})
	if err != nil {
		// The lane is gone; nothing will ever consume e.
		return true
	}
	return handled
}

// deliver invokes every matching listener in registration order.
// Called on the lane.
func (c *container) deliver(e *event.Event) {
	c.mu.Lock()
	var matched []Listener
	for _, b := range c.listeners {
		if e.Matches(b.eventType, b.source) {
			matched = append(matched, b.listener)
		}
	}
	c.mu.Unlock()

	for _, l := range matched {
		c.invoke(l, e)
	}
}

// invoke calls one listener with panic containment. e is nil for a
// response timeout.
func (c *container) invoke(l Listener, e *event.Event) {
	var id, typ string
	if e != nil {
		id, typ = e.ID(), e.Type()
	}

	ctx, span := c.hub.spans.StartDeliverSpan(context.Background(), c.name, id, typ)
	start := time.Now()
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				observability.LogListenerPanic(c.logger, c.name, id, r, debug.Stack())
			}
		}()
		l(e)
	}()

	c.hub.metrics.RecordDelivery(ctx, c.name, time.Since(start), panicked)
	var err error
	if panicked {
		err = errListenerPanic
	}
	c.hub.spans.EndSpanWithError(span, err)
}

func (c *container) addListener(eventType, source string, l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.listeners = append(c.listeners, listenerBinding{eventType: eventType, source: source, listener: l})
}

// addResponse binds l to the first event whose response ID equals
// triggerID. If none arrives within timeout, l is called once with nil.
func (c *container) addResponse(triggerID string, timeout time.Duration, l Listener) {
	b := &responseBinding{listener: l, timeout: timeout}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.responses[triggerID] = append(c.responses[triggerID], b)
	// The callback takes c.mu, so it cannot observe b before timer is set.
	b.timer = time.AfterFunc(timeout, func() { c.expireResponse(triggerID, b) })
}

// resolveResponses hands e to every response listener waiting on
// triggerID. Whichever of this and the timer removes a binding first
// decides its outcome.
func (c *container) resolveResponses(triggerID string, e *event.Event) {
	c.mu.Lock()
	bindings := c.responses[triggerID]
	delete(c.responses, triggerID)
	c.mu.Unlock()

	for _, b := range bindings {
		b.timer.Stop()
		l := b.listener
		if err := c.lane.Submit(func() { c.invoke(l, e) }); err != nil {
			return
		}
	}
}

func (c *container) expireResponse(triggerID string, b *responseBinding) {
	c.mu.Lock()
	pending := c.responses[triggerID]
	i := slices.Index(pending, b)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	pending = slices.Delete(pending, i, i+1)
	if len(pending) == 0 {
		delete(c.responses, triggerID)
	} else {
		c.responses[triggerID] = pending
	}
	c.mu.Unlock()

	observability.LogResponseTimeout(c.logger, c.name, triggerID, b.timeout)
	c.hub.metrics.RecordResponseTimeout(context.Background(), c.name)
	_ = c.lane.Submit(func() { c.invoke(b.listener, nil) })
}

// pendingResponses returns the number of response listeners still waiting.
func (c *container) pendingResponses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, bs := range c.responses {
		n += len(bs)
	}
	return n
}

// close tears the container down: no further events or response
// callbacks, then OnUnregistered on the lane, then the lane itself.
func (c *container) close(ctx context.Context) error {
	c.registered.Store(false)

	c.mu.Lock()
	c.closed = true
	for _, bs := range c.responses {
		for _, b := range bs {
			b.timer.Stop()
		}
	}
	clear(c.responses)
	c.listeners = nil
	c.mu.Unlock()

	defer c.lane.Close()

	c.events.Close()
	select {
	case <-c.events.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.lane.Run(ctx, c.ext.OnUnregistered)
}
