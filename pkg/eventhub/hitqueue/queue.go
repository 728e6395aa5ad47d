package hitqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	huberrors "github.com/randalmurphal/eventhub/pkg/eventhub/errors"
	"github.com/randalmurphal/eventhub/pkg/eventhub/observability"
	"github.com/randalmurphal/eventhub/pkg/eventhub/queue"
	"github.com/randalmurphal/eventhub/pkg/eventhub/storage"
)

// ResponseFunc receives the outcome of a hit: the response body on success,
// or whatever body accompanied a permanent failure (often nil).
type ResponseFunc func(hit Hit, body []byte)

// Option configures a Queue.
type Option func(*Queue)

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Option {
	return func(q *Queue) { q.cfg = cfg }
}

// WithLogger sets the logger. Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMetrics records hit outcomes.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(q *Queue) {
		if m != nil {
			q.metrics = m
		}
	}
}

// WithSpans traces every submission attempt.
func WithSpans(s observability.SpanManager) Option {
	return func(q *Queue) {
		if s != nil {
			q.spans = s
		}
	}
}

// WithResponseHandler is called once per hit, when it leaves the queue.
func WithResponseHandler(fn ResponseFunc) Option {
	return func(q *Queue) { q.onResponse = fn }
}

// Queue delivers hits in order through a Transport.
type Queue struct {
	cfg        Config
	store      storage.DataQueue
	transport  Transport
	logger     *slog.Logger
	metrics    observability.MetricsRecorder
	spans      observability.SpanManager
	onResponse ResponseFunc

	items   *queue.OrderedQueue[Hit]
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker

	ctx    context.Context
	cancel context.CancelFunc

	// Owned by the handler goroutine.
	retry   *backoff.ExponentialBackOff
	attempt int

	// pauseMu orders a user Stop against the handler's backoff restart.
	pauseMu sync.Mutex
	paused  bool

	closeOnce sync.Once
}

// Open creates a queue backed by store and restores any hits left in it by
// a previous process. The queue starts processing immediately.
// The caller keeps ownership of store.
func Open(store storage.DataQueue, transport Transport, opts ...Option) (*Queue, error) {
	if store == nil || transport == nil {
		return nil, errors.New("hitqueue: store and transport are required")
	}

	q := &Queue{
		cfg:       DefaultConfig(),
		store:     store,
		transport: transport,
		logger:    slog.Default(),
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())

	if q.cfg.RatePerSecond > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(q.cfg.RatePerSecond), max(q.cfg.Burst, 1))
	}
	if q.cfg.BreakerFailures > 0 {
		q.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "hitqueue",
			Timeout: q.cfg.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= q.cfg.BreakerFailures
			},
			IsSuccessful: func(err error) bool {
				return err == nil || !huberrors.IsRetryable(err)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				q.logger.Info("hit circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		})
	}
	q.retry = q.newBackOff()

	q.items = queue.New[Hit]("hits", queue.WithLogger(q.logger))
	q.items.SetHandler(q.process)

	if err := q.restore(); err != nil {
		q.items.Close()
		q.cancel()
		return nil, err
	}
	q.items.Start()
	return q, nil
}

func (q *Queue) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.cfg.RetryInitial
	b.MaxInterval = q.cfg.RetryMax
	b.MaxElapsedTime = q.cfg.RetryGiveUp
	b.Reset()
	return b
}

func (q *Queue) restore() error {
	n, err := q.store.Count()
	if err != nil {
		return fmt.Errorf("count stored hits: %w", err)
	}
	records, err := q.store.Peek(n)
	if err != nil {
		return fmt.Errorf("load stored hits: %w", err)
	}

	for _, rec := range records {
		var hit Hit
		if err := json.Unmarshal(rec.Data, &hit); err != nil {
			observability.LogStorageError(q.logger, "decode_hit", err)
			_ = q.store.Remove(rec.ID)
			continue
		}
		if err := q.items.Push(hit); err != nil {
			return err
		}
	}
	if len(records) > 0 {
		q.logger.Info("hits restored", slog.Int("count", len(records)))
	}
	return nil
}

// Add persists hit and queues it behind any hits already waiting.
func (q *Queue) Add(hit Hit) error {
	if hit.ID == "" {
		return storage.ErrInvalidRecord
	}
	data, err := json.Marshal(hit)
	if err != nil {
		return fmt.Errorf("encode hit: %w", err)
	}
	if err := q.store.Add(storage.Record{ID: hit.ID, Timestamp: hit.Timestamp, Data: data}); err != nil {
		return fmt.Errorf("persist hit: %w", err)
	}
	if err := q.items.Push(hit); err != nil {
		_ = q.store.Remove(hit.ID)
		return err
	}
	return nil
}

// Start resumes processing, retrying the head hit immediately.
func (q *Queue) Start() {
	q.pauseMu.Lock()
	defer q.pauseMu.Unlock()
	q.paused = false
	q.items.Start()
}

// Stop pauses processing until Start. Hits keep being accepted, and a
// retry delay running at the time does not resume the queue.
func (q *Queue) Stop() {
	q.pauseMu.Lock()
	defer q.pauseMu.Unlock()
	q.paused = true
	q.items.Stop()
}

// Count returns the number of hits waiting, including one in flight.
func (q *Queue) Count() int {
	return q.items.Len()
}

// Clear drops every waiting hit without calling the response handler.
func (q *Queue) Clear() error {
	q.items.Clear()
	if err := q.store.Clear(); err != nil {
		return fmt.Errorf("clear stored hits: %w", err)
	}
	return nil
}

// Close stops processing and waits for an in-flight submission to return.
// Stored hits are kept for the next Open.
func (q *Queue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() {
		q.cancel()
		q.items.Close()
	})
	select {
	case <-q.items.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// process submits the head hit. A transient failure keeps the hit at the
// head and pauses the queue for the next backoff interval.
func (q *Queue) process(hit Hit) bool {
	if q.limiter != nil {
		if err := q.limiter.Wait(q.ctx); err != nil {
			return false
		}
	}

	q.attempt++
	body, err := q.submit(hit)
	if err == nil {
		q.metrics.RecordHit(q.ctx, observability.HitSent)
		q.finish(hit, body)
		return true
	}

	if q.ctx.Err() != nil {
		return false
	}

	if q.retryable(err) {
		if delay := q.retry.NextBackOff(); delay != backoff.Stop {
			observability.LogHitRetry(q.logger, hit.ID, q.attempt, delay, err)
			q.metrics.RecordHit(q.ctx, observability.HitRetry)
			q.pauseFor(delay)
			return false
		}
	}

	observability.LogHitDropped(q.logger, hit.ID, err)
	q.metrics.RecordHit(q.ctx, observability.HitDropped)
	var httpErr *huberrors.HTTPError
	if errors.As(err, &httpErr) {
		body = httpErr.Body
	}
	q.finish(hit, body)
	return true
}

// pauseFor stops the queue and restarts it after delay, unless the user
// has paused it.
func (q *Queue) pauseFor(delay time.Duration) {
	q.pauseMu.Lock()
	defer q.pauseMu.Unlock()
	q.items.Stop()
	if !q.paused {
		q.items.StartAfter(delay)
	}
}

func (q *Queue) submit(hit Hit) ([]byte, error) {
	ctx, span := q.spans.StartHitSpan(q.ctx, hit.ID, q.attempt)
	if q.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.SubmitTimeout)
		defer cancel()
	}

	done := observability.TimedOperation()
	var (
		body []byte
		err  error
	)
	if q.breaker != nil {
		var out any
		out, err = q.breaker.Execute(func() (any, error) {
			return q.transport.Submit(ctx, hit)
		})
		body, _ = out.([]byte)
	} else {
		body, err = q.transport.Submit(ctx, hit)
	}
	q.spans.EndSpanWithError(span, err)

	if err == nil {
		observability.LogHitSent(q.logger, hit.ID, done())
	}
	return body, err
}

func (q *Queue) retryable(err error) bool {
	return huberrors.IsRetryable(err) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}

// finish removes hit from storage and reports its outcome.
func (q *Queue) finish(hit Hit, body []byte) {
	q.attempt = 0
	q.retry.Reset()
	if err := q.store.Remove(hit.ID); err != nil {
		observability.LogStorageError(q.logger, "remove_hit", err)
	}
	if q.onResponse != nil {
		q.onResponse(hit, body)
	}
}
