package eventhub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
	"github.com/randalmurphal/eventhub/pkg/eventhub/queue"
	"github.com/randalmurphal/eventhub/pkg/eventhub/registry"
)

// Hub routes events between extensions and stores their shared state.
//
// A Hub is created with New, populated with RegisterExtension, and begins
// delivering events after Start. Events dispatched before Start are held
// and delivered in order once it is called.
type Hub struct {
	cfg     hubConfig
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager

	// mu orders event numbering with admission, and makes shared-state
	// writes exclusive against reads.
	mu      sync.RWMutex
	counter int64
	retired map[string]bool

	// hubStateMu makes each hub state snapshot and its write one step, so
	// the newest version always lists every installed extension.
	hubStateMu sync.Mutex

	containers *registry.Registry[string, *container]
	admission  *queue.OrderedQueue[*event.Event]
	laneSeq    atomic.Int64

	started atomic.Bool
	closed  atomic.Bool
}

// New creates a hub with the built-in hub extension registered.
func New(opts ...Option) *Hub {
	cfg := defaultHubConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Hub{
		cfg:        cfg,
		logger:     cfg.logger,
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
		retired:    make(map[string]bool),
		containers: registry.New[string, *container](),
	}
	if cfg.metricsEnabled {
		h.metrics = observability.NewMetricsRecorder()
	}
	if cfg.tracingEnabled {
		h.spans = observability.NewSpanManager()
	}

	h.admission = queue.New[*event.Event]("eventhub", queue.WithLogger(cfg.logger))
	h.admission.SetHandler(h.admit)

	if err := h.register(context.Background(), newHubExtension(), true); err != nil {
		// Only a closed hub can refuse its own extension.
		h.logger.Error("hub extension registration failed", slog.String("error", err.Error()))
	}
	return h
}

// Start begins delivering admitted events and publishes the hub's shared
// state. Calling Start more than once has no effect.
func (h *Hub) Start() {
	if h.closed.Load() || !h.started.CompareAndSwap(false, true) {
		return
	}
	h.publishHubState()
	h.admission.Start()
	observability.LogHubStarted(h.logger, h.containers.Len())
}

// Shutdown stops admission, unregisters every extension, and closes all
// lanes. Extensions are torn down concurrently. Events still waiting for
// delivery are discarded.
//
// Shutdown must not be called from an extension's lane (a listener or
// lifecycle hook): that extension's teardown waits for the calling
// callback, so Shutdown returns only when ctx is done, with ctx's error,
// and the caller's OnUnregistered never runs. The other extensions are
// still torn down. Call it from another goroutine instead.
func (h *Hub) Shutdown(ctx context.Context) error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	done := observability.TimedOperation()

	h.admission.Stop()
	waitErr := h.admission.WaitUntilStopped(ctx)
	h.admission.Close()

	var g errgroup.Group
	for _, name := range h.containers.Keys() {
		c, ok := h.containers.Delete(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := c.close(ctx); err != nil {
				return fmt.Errorf("unregister %s: %w", c.name, err)
			}
			return nil
		})
	}
	closeErr := g.Wait()

	observability.LogHubShutdown(h.logger, done())
	return errors.Join(waitErr, closeErr)
}

// RegisterExtension builds an extension on its own lane and installs it.
//
// The factory runs on the new lane; the returned extension's name must be
// non-empty and unique for the lifetime of the hub. Once installed,
// OnRegistered runs on the extension's lane before any event is delivered.
func (h *Hub) RegisterExtension(ctx context.Context, factory Factory) error {
	return h.register(ctx, factory, false)
}

// RegisterExtensions registers several extensions concurrently. Their
// relative registration order is unspecified. Every factory is attempted;
// the returned error joins all failures.
func (h *Hub) RegisterExtensions(ctx context.Context, factories ...Factory) error {
	errs := make([]error, len(factories))
	var g errgroup.Group
	for i, factory := range factories {
		g.Go(func() error {
			errs[i] = h.register(ctx, factory, false)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (h *Hub) register(ctx context.Context, factory Factory, internal bool) error {
	if factory == nil {
		return &RegistrationError{Err: ErrNilFactory}
	}
	if h.closed.Load() {
		return &RegistrationError{Err: ErrHubShutdown}
	}

	lane := queue.NewLane(fmt.Sprintf("extension-%d", h.laneSeq.Add(1)), queue.WithLogger(h.logger))
	c := newContainer(h, lane)

	var (
		ext        Extension
		factoryErr error
	)
	err := lane.Run(ctx, func() {
		ext, factoryErr = factory(c.runtime)
	})
	if err == nil {
		err = factoryErr
	}
	if err == nil && ext == nil {
		err = errors.New("factory returned no extension")
	}
	if err != nil {
		lane.Close()
		regErr := &RegistrationError{Err: err}
		observability.LogExtensionRejected(h.logger, "", regErr)
		return regErr
	}

	name := ext.Name()
	if name == "" || (!internal && name == HubExtensionName) {
		lane.Close()
		regErr := &RegistrationError{Extension: name, Err: ErrInvalidExtensionName}
		observability.LogExtensionRejected(h.logger, name, regErr)
		return regErr
	}

	c.bind(ext)

	h.mu.Lock()
	inserted := !h.retired[name] && h.containers.Insert(name, c)
	h.mu.Unlock()
	if !inserted {
		c.discard()
		regErr := &RegistrationError{Extension: name, Err: ErrDuplicateExtensionName}
		observability.LogExtensionRejected(h.logger, name, regErr)
		return regErr
	}

	c.activate()
	observability.LogExtensionRegistered(h.logger, name, ext.Version())

	if !internal && h.started.Load() {
		h.publishHubState()
	}
	return nil
}

// UnregisterExtension removes an extension, runs its OnUnregistered hook,
// and closes its lane. The name cannot be registered again on this hub.
// It must not be called from the extension's own lane.
func (h *Hub) UnregisterExtension(ctx context.Context, name string) error {
	if name == HubExtensionName {
		return fmt.Errorf("unregister %q: %w", name, ErrInvalidExtensionName)
	}

	h.mu.Lock()
	c, ok := h.containers.Delete(name)
	if ok {
		h.retired[name] = true
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("unregister %q: %w", name, ErrExtensionNotFound)
	}

	err := c.close(ctx)
	observability.LogExtensionUnregistered(h.logger, name)

	if h.started.Load() && !h.closed.Load() {
		h.publishHubState()
	}
	return err
}

// IsRegistered reports whether an extension with the given name is installed.
func (h *Hub) IsRegistered(name string) bool {
	return h.containers.Has(name)
}

// Extensions returns the names of installed extensions in registration order.
func (h *Hub) Extensions() []string {
	return h.containers.Keys()
}

// RegisterListener adds a listener for events matching eventType and source
// (either may be event.Wildcard) to the named extension. The call is ignored
// when the extension is not registered.
func (h *Hub) RegisterListener(extension, eventType, source string, listener Listener) {
	c, ok := h.containers.Get(extension)
	if !ok {
		observability.LogUnknownExtension(h.logger, "register_listener", extension)
		return
	}
	if listener == nil {
		return
	}
	c.addListener(eventType, source, listener)
}

// Dispatch assigns e the next event number and queues it for delivery.
// It never blocks on listeners. An event can be dispatched only once.
func (h *Hub) Dispatch(e *event.Event) {
	if e == nil {
		return
	}
	if h.closed.Load() {
		h.logger.Warn("dispatch after shutdown ignored", slog.String("event_id", e.ID()))
		return
	}

	h.mu.Lock()
	if e.Number() != 0 {
		h.mu.Unlock()
		h.logger.Warn("event already dispatched",
			slog.String("event_id", e.ID()),
			slog.Int64("event_number", e.Number()),
		)
		return
	}
	h.counter++
	n := h.counter
	e.AssignNumber(n)
	err := h.admission.Push(e)
	h.mu.Unlock()

	if err != nil {
		h.logger.Warn("event dropped", slog.String("event_id", e.ID()), slog.String("error", err.Error()))
		return
	}
	observability.LogEventDispatched(h.logger, e.ID(), e.Type(), e.Source(), n)
}

// admit is the admission queue handler. It resolves response listeners
// correlated with e, then hands e to every installed extension's queue.
func (h *Hub) admit(e *event.Event) bool {
	h.metrics.RecordDispatch(context.Background(), e.Type())

	containers := h.containers.Values()
	if id := e.ResponseID(); id != "" {
		for _, c := range containers {
			c.resolveResponses(id, e)
		}
	}
	for _, c := range containers {
		c.enqueue(e)
	}
	return true
}
