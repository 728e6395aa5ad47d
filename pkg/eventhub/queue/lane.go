package queue

import (
	"context"
	"log/slog"
	"runtime/debug"
)

// Lane is a serial executor: submitted closures run one at a time, in
// submission order, on the lane's goroutine.
type Lane struct {
	q      *OrderedQueue[func()]
	logger *slog.Logger
}

// NewLane creates and starts a lane.
func NewLane(name string, opts ...Option) *Lane {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	l := &Lane{
		q:      New[func()](name, opts...),
		logger: o.logger,
	}
	l.q.SetHandler(func(fn func()) bool {
		l.execute(fn)
		return true
	})
	l.q.Start()
	return l
}

// Name returns the lane name.
func (l *Lane) Name() string {
	return l.q.Name()
}

// Submit enqueues fn and returns immediately.
func (l *Lane) Submit(fn func()) error {
	return l.q.Push(fn)
}

// Run enqueues fn and blocks until it has executed, ctx is done, or the
// lane is closed before reaching it.
// Run must not be called from the lane itself.
func (l *Lane) Run(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	err := l.Submit(func() {
		defer close(done)
		fn()
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.q.Done():
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Pending returns the number of closures waiting to run.
func (l *Lane) Pending() int {
	return l.q.Len()
}

// Close discards pending closures and stops the lane after the running one.
func (l *Lane) Close() {
	l.q.Close()
}

// Done returns a channel closed once the lane goroutine has exited.
func (l *Lane) Done() <-chan struct{} {
	return l.q.Done()
}

// execute runs fn, containing any panic to this closure.
func (l *Lane) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("lane task panicked",
				slog.String("lane", l.q.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}
