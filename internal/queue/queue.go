// Package queue provides a dependency-aware admission queue. Work is tagged
// with the resource keys it will touch (market ids, user ids); units whose
// keys do not overlap any in-flight unit run concurrently, while conflicting
// units execute strictly in enqueue order. Pending work that waits longer
// than the queue's TTL is evicted with ErrTooBusy as backpressure.
//
// All queue bookkeeping is funnelled through one mutex, so the scheduling
// pass itself never races with the asynchronous work it admits.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTooBusy rejects work evicted from the queue before it could run. It
// signals resource contention, not a data error: callers should surface it
// as "too many requests, try again later" and may retry.
var ErrTooBusy = errors.New("queue: too many requests, try again later")

type item struct {
	id       string
	keys     []string
	enqueued time.Time
	expire   *time.Timer
	run      func() (any, error)

	done   chan struct{}
	result any
	err    error
}

// finish resolves the item exactly once. Safe to call under the queue mutex;
// waiters are signalled through the done channel.
func (it *item) finish(result any, err error) {
	it.result = result
	it.err = err
	if it.expire != nil {
		it.expire.Stop()
	}
	close(it.done)
}

// Queue admits work units whose resource keys do not conflict with any
// active or earlier-pending unit. A single process typically owns several
// named queues (bets, markets) scheduled independently of one another;
// instances are owned by the application context, never package globals.
type Queue struct {
	name    string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending []*item
	active  map[string]*item
}

// New creates a queue. timeout is the maximum time a unit may wait before
// being evicted with ErrTooBusy; name is diagnostic only.
func New(name string, timeout time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		name:    name,
		timeout: timeout,
		logger:  logger.With(slog.String("queue", name)),
		active:  make(map[string]*item),
	}
}

// Do enqueues fn tagged with the given resource keys and blocks until it has
// run. fn executes at most once; its result or error is returned unchanged.
// If ctx is cancelled while waiting, Do returns ctx.Err() but the unit stays
// queued and will still run when admitted — active work is never cancelled
// mid-flight.
func Do[T any](ctx context.Context, q *Queue, keys []string, fn func(context.Context) (T, error)) (T, error) {
	return wait[T](ctx, q.enqueue(ctx, keys, false, wrap(ctx, fn)))
}

// DoFirst is Do with head insertion: the unit wins ties against other
// pending units that become eligible at the same time. It does not pre-empt
// work that is already active.
func DoFirst[T any](ctx context.Context, q *Queue, keys []string, fn func(context.Context) (T, error)) (T, error) {
	return wait[T](ctx, q.enqueue(ctx, keys, true, wrap(ctx, fn)))
}

func wrap[T any](ctx context.Context, fn func(context.Context) (T, error)) func() (any, error) {
	return func() (any, error) {
		return fn(ctx)
	}
}

func wait[T any](ctx context.Context, it *item) (T, error) {
	var zero T
	select {
	case <-it.done:
		if it.err != nil {
			return zero, it.err
		}
		return it.result.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (q *Queue) enqueue(ctx context.Context, keys []string, first bool, run func() (any, error)) *item {
	it := &item{
		id:       uuid.New().String(),
		keys:     keys,
		enqueued: time.Now(),
		run:      run,
		done:     make(chan struct{}),
	}

	q.mu.Lock()
	if first {
		q.pending = append([]*item{it}, q.pending...)
	} else {
		q.pending = append(q.pending, it)
	}
	// Guarantee a scheduling pass at expiry even if no other queue activity
	// occurs, so TTL eviction does not depend on later enqueues.
	it.expire = time.AfterFunc(q.timeout, q.schedule)
	q.mu.Unlock()

	q.schedule()
	return it
}

// schedule runs one scheduling pass: evict the over-age prefix of the
// pending list, then admit every pending unit whose keys are disjoint from
// all active units and all earlier pending units. An earlier pending unit
// reserves its keys for its queue position even before it runs.
func (q *Queue) schedule() {
	q.mu.Lock()

	now := time.Now()
	cut := 0
	for cut < len(q.pending) && now.Sub(q.pending[cut].enqueued) >= q.timeout {
		cut++
	}
	expired := q.pending[:cut:cut]
	q.pending = q.pending[cut:]

	blocked := make(map[string]struct{}, len(q.active)*2)
	for _, it := range q.active {
		for _, k := range it.keys {
			blocked[k] = struct{}{}
		}
	}

	var runnable, waiting []*item
	for _, it := range q.pending {
		if overlaps(it.keys, blocked) {
			waiting = append(waiting, it)
		} else {
			runnable = append(runnable, it)
		}
		for _, k := range it.keys {
			blocked[k] = struct{}{}
		}
	}
	q.pending = waiting

	for _, it := range runnable {
		q.active[it.id] = it
	}
	q.mu.Unlock()

	for _, it := range expired {
		q.logger.Warn("evicting expired work unit",
			slog.String("id", it.id),
			slog.Duration("waited", now.Sub(it.enqueued)),
		)
		it.finish(nil, ErrTooBusy)
	}

	for _, it := range runnable {
		go q.execute(it)
	}
}

func (q *Queue) execute(it *item) {
	result, err := it.run()

	q.mu.Lock()
	delete(q.active, it.id)
	q.mu.Unlock()

	it.finish(result, err)

	// Completion may have unblocked units sharing this unit's keys.
	q.schedule()
}

func overlaps(keys []string, set map[string]struct{}) bool {
	for _, k := range keys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

// Len reports the number of pending and active units, for diagnostics.
func (q *Queue) Len() (pending, active int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.active)
}
