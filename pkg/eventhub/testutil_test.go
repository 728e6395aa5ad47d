package eventhub

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/eventhub/pkg/eventhub/event"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// testExtension is a configurable extension for hub tests.
type testExtension struct {
	name     string
	version  string
	metadata map[string]string

	onVersion      func()
	onRegistered   func(rt Runtime)
	onUnregistered func()
	ready          func(e *event.Event) bool

	rt Runtime
}

func (x *testExtension) Name() string { return x.name }

func (x *testExtension) Version() string {
	if x.onVersion != nil {
		x.onVersion()
	}
	if x.version == "" {
		return "0.0.1"
	}
	return x.version
}

func (x *testExtension) Metadata() map[string]string { return x.metadata }

func (x *testExtension) OnRegistered() {
	if x.onRegistered != nil {
		x.onRegistered(x.rt)
	}
}

func (x *testExtension) OnUnregistered() {
	if x.onUnregistered != nil {
		x.onUnregistered()
	}
}

func (x *testExtension) ReadyForEvent(e *event.Event) bool {
	if x.ready != nil {
		return x.ready(e)
	}
	return true
}

func factoryFor(x *testExtension) Factory {
	return func(rt Runtime) (Extension, error) {
		x.rt = rt
		return x, nil
	}
}

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) listener(e *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*event.Event(nil), r.events...)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) names() []string {
	var out []string
	for _, e := range r.snapshot() {
		out = append(out, e.Name())
	}
	return out
}

// listenOn returns an extension that records events matching (eventType, source).
func listenOn(name, eventType, source string, rec *recorder) *testExtension {
	return &testExtension{
		name: name,
		onRegistered: func(rt Runtime) {
			rt.RegisterListener(eventType, source, rec.listener)
		},
	}
}

func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h := New(append([]Option{WithLogger(slog.New(slog.DiscardHandler))}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

func mustRegister(t *testing.T, h *Hub, x *testExtension) {
	t.Helper()
	require.NoError(t, h.RegisterExtension(context.Background(), factoryFor(x)))
}

// dispatched creates and dispatches an event with an empty payload.
func dispatched(h *Hub, name, eventType, source string) *event.Event {
	e := event.New(name, eventType, source, nil)
	h.Dispatch(e)
	return e
}
