package queue

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrClosed is returned when an operation is attempted on a closed queue.
var ErrClosed = errors.New("queue is closed")

// HandlerFunc processes the head item of a queue.
// Returning false leaves the item at the head and pauses draining until the
// queue is triggered again.
type HandlerFunc[T any] func(item T) bool

// Option configures a queue.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report handler panics.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// OrderedQueue is a FIFO queue drained by a single handler on its own goroutine.
type OrderedQueue[T any] struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	items   []T
	gen     uint64 // bumped by Clear so an in-flight pop does not remove a newer item
	handler HandlerFunc[T]
	active  bool
	busy    bool
	closed  bool
	delayed *time.Timer

	// idle is closed while the queue is stopped (or closed) and no handler is running.
	idle       chan struct{}
	idleClosed bool

	wake chan struct{}
	done chan struct{}
}

// New creates a stopped queue and starts its worker goroutine.
// Call SetHandler and Start to begin draining.
func New[T any](name string, opts ...Option) *OrderedQueue[T] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	q := &OrderedQueue[T]{
		name:       name,
		logger:     o.logger,
		idle:       make(chan struct{}),
		idleClosed: true,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	close(q.idle)

	go q.run()
	return q
}

// Name returns the queue name.
func (q *OrderedQueue[T]) Name() string {
	return q.name
}

// Push appends an item to the tail and triggers draining.
func (q *OrderedQueue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.signalLocked()
	return nil
}

// SetHandler installs the handler. When the queue is active, draining is
// re-triggered so pending items are processed by the new handler.
func (q *OrderedQueue[T]) SetHandler(handler HandlerFunc[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handler = handler
	if q.active {
		q.signalLocked()
	}
}

// Start activates the queue and triggers draining.
// A pending StartAfter is cancelled.
func (q *OrderedQueue[T]) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.cancelDelayedLocked()
	q.active = true
	q.updateIdleLocked()
	q.signalLocked()
}

// StartAfter schedules Start after d. A later Start, Stop or StartAfter
// replaces the pending schedule.
func (q *OrderedQueue[T]) StartAfter(d time.Duration) {
	if d <= 0 {
		q.Start()
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.cancelDelayedLocked()

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		q.mu.Lock()
		current := q.delayed == timer
		q.mu.Unlock()
		if current {
			q.Start()
		}
	})
	q.delayed = timer
}

// Stop deactivates the queue. An in-flight handler invocation completes,
// but no further item is handed to the handler until Start is called.
func (q *OrderedQueue[T]) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.cancelDelayedLocked()
	q.active = false
	q.updateIdleLocked()
}

// WaitUntilStopped blocks until the queue is stopped and no handler is
// running, or until ctx is done.
func (q *OrderedQueue[T]) WaitUntilStopped(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsActive reports whether the queue is started.
func (q *OrderedQueue[T]) IsActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Len returns the number of items waiting, including the head.
func (q *OrderedQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards every queued item.
func (q *OrderedQueue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = nil
	q.gen++
}

// Close stops the queue and terminates its worker goroutine once any
// in-flight handler returns. Queued items are discarded. Close is idempotent.
func (q *OrderedQueue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.active = false
	q.cancelDelayedLocked()
	q.items = nil
	q.gen++
	q.updateIdleLocked()
	close(q.wake)
	q.mu.Unlock()
}

// Done returns a channel closed when the worker goroutine has exited.
func (q *OrderedQueue[T]) Done() <-chan struct{} {
	return q.done
}

func (q *OrderedQueue[T]) run() {
	defer close(q.done)
	for range q.wake {
		q.drain()
	}
}

// drain peeks the head item, hands it to the handler and pops it only when
// handled. It returns when the queue is stopped, empty, or the handler
// reports not handled.
func (q *OrderedQueue[T]) drain() {
	for {
		q.mu.Lock()
		if q.closed || !q.active || len(q.items) == 0 || q.handler == nil {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		handler := q.handler
		gen := q.gen
		q.busy = true
		q.updateIdleLocked()
		q.mu.Unlock()

		handled := q.invoke(handler, item)

		q.mu.Lock()
		q.busy = false
		if handled && gen == q.gen && len(q.items) > 0 {
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
		}
		q.updateIdleLocked()
		q.mu.Unlock()

		if !handled {
			return
		}
	}
}

// invoke runs the handler. A panicking handler counts as not handled so the
// item is kept.
func (q *OrderedQueue[T]) invoke(handler HandlerFunc[T], item T) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("queue handler panicked",
				slog.String("queue", q.name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			handled = false
		}
	}()
	return handler(item)
}

func (q *OrderedQueue[T]) signalLocked() {
	if q.closed {
		return
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *OrderedQueue[T]) cancelDelayedLocked() {
	if q.delayed != nil {
		q.delayed.Stop()
		q.delayed = nil
	}
}

func (q *OrderedQueue[T]) updateIdleLocked() {
	idle := (!q.active || q.closed) && !q.busy
	switch {
	case idle && !q.idleClosed:
		close(q.idle)
		q.idleClosed = true
	case !idle && q.idleClosed:
		q.idle = make(chan struct{})
		q.idleClosed = false
	}
}
