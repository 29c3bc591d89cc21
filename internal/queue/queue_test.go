package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// window records one work unit's observed execution interval.
type window struct {
	start, end time.Time
}

func (w window) overlapsWith(o window) bool {
	return w.start.Before(o.end) && o.start.Before(w.end)
}

func TestDisjointKeysRunInParallel(t *testing.T) {
	q := New("test", time.Minute, testLogger())
	ctx := context.Background()

	var mu sync.Mutex
	windows := map[string]window{}
	work := func(name string) func(context.Context) (string, error) {
		return func(context.Context) (string, error) {
			start := time.Now()
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			windows[name] = window{start: start, end: time.Now()}
			mu.Unlock()
			return name, nil
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		out, err := Do(ctx, q, []string{"market-a"}, work("a"))
		assert.NoError(t, err)
		assert.Equal(t, "a", out)
	}()
	go func() {
		defer wg.Done()
		out, err := Do(ctx, q, []string{"market-b"}, work("b"))
		assert.NoError(t, err)
		assert.Equal(t, "b", out)
	}()
	wg.Wait()

	require.Len(t, windows, 2)
	assert.True(t, windows["a"].overlapsWith(windows["b"]),
		"disjoint-key units should have overlapping execution windows")
}

func TestSharedKeyRunsSerially(t *testing.T) {
	q := New("test", time.Minute, testLogger())
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	windows := map[string]window{}

	started := make(chan struct{})
	first := func(context.Context) (struct{}, error) {
		close(started)
		start := time.Now()
		time.Sleep(40 * time.Millisecond)
		mu.Lock()
		order = append(order, "first")
		windows["first"] = window{start: start, end: time.Now()}
		mu.Unlock()
		return struct{}{}, nil
	}
	second := func(context.Context) (struct{}, error) {
		start := time.Now()
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		order = append(order, "second")
		windows["second"] = window{start: start, end: time.Now()}
		mu.Unlock()
		return struct{}{}, nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := Do(ctx, q, []string{"user-1", "market-a"}, first)
		assert.NoError(t, err)
	}()
	<-started // ensure the first unit is active before enqueueing the second
	go func() {
		defer wg.Done()
		_, err := Do(ctx, q, []string{"market-a"}, second)
		assert.NoError(t, err)
	}()
	wg.Wait()

	assert.Equal(t, []string{"first", "second"}, order)
	assert.False(t, windows["first"].overlapsWith(windows["second"]),
		"shared-key units must never execute concurrently")
	assert.False(t, windows["second"].start.Before(windows["first"].end))
}

func TestTTLEvictionRejectsWithBackpressure(t *testing.T) {
	q := New("test", 50*time.Millisecond, testLogger())
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _ = Do(ctx, q, []string{"x"}, func(context.Context) (struct{}, error) {
			close(started)
			<-release
			return struct{}{}, nil
		})
	}()
	<-started

	// B shares A's key and can never be admitted while A blocks; after the
	// TTL it must reject with the backpressure error while A stays active.
	start := time.Now()
	_, err := Do(ctx, q, []string{"x"}, func(context.Context) (struct{}, error) {
		return struct{}{}, nil
	})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTooBusy)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)

	_, active := q.Len()
	assert.Equal(t, 1, active, "the blocked unit must remain active")
	close(release)
}

func TestPendingItemReservesItsKeys(t *testing.T) {
	// C shares a key with B but not with A. While A runs, B waits on A; C
	// must wait for B's queue position even though B has not started.
	q := New("test", time.Minute, testLogger())
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	record := func(name string, d time.Duration) func(context.Context) (struct{}, error) {
		return func(context.Context) (struct{}, error) {
			time.Sleep(d)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return struct{}{}, nil
		}
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		_, _ = Do(ctx, q, []string{"a"}, func(context.Context) (struct{}, error) {
			close(started)
			<-release
			mu.Lock()
			order = append(order, "A")
			mu.Unlock()
			return struct{}{}, nil
		})
	}()
	<-started
	go func() {
		defer wg.Done()
		_, _ = Do(ctx, q, []string{"a", "b"}, record("B", 10*time.Millisecond))
	}()
	time.Sleep(20 * time.Millisecond) // B is pending behind A
	go func() {
		defer wg.Done()
		_, _ = Do(ctx, q, []string{"b"}, record("C", 0))
	}()
	time.Sleep(20 * time.Millisecond)

	// C shares no key with the only active unit, but B reserved "b" first.
	pending, active := q.Len()
	assert.Equal(t, 2, pending)
	assert.Equal(t, 1, active)

	close(release)
	wg.Wait()
	assert.Equal(t, []string{"A", "B", "C"}, order)
}

func TestDoFirstWinsTieBreak(t *testing.T) {
	q := New("test", time.Minute, testLogger())
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	record := func(name string) func(context.Context) (struct{}, error) {
		return func(context.Context) (struct{}, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return struct{}{}, nil
		}
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		_, _ = Do(ctx, q, []string{"k"}, func(context.Context) (struct{}, error) {
			close(started)
			<-release
			return struct{}{}, nil
		})
	}()
	<-started
	go func() {
		defer wg.Done()
		_, _ = Do(ctx, q, []string{"k"}, record("tail"))
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		defer wg.Done()
		_, _ = DoFirst(ctx, q, []string{"k"}, record("head"))
	}()
	time.Sleep(10 * time.Millisecond)

	close(release)
	wg.Wait()
	assert.Equal(t, []string{"head", "tail"}, order)
}

func TestActionErrorPropagates(t *testing.T) {
	q := New("test", time.Minute, testLogger())
	boom := errors.New("boom")

	_, err := Do(context.Background(), q, []string{"k"}, func(context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	// A failure releases the keys like any completion.
	out, err := Do(context.Background(), q, []string{"k"}, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
}

func TestResultRoundTrip(t *testing.T) {
	q := New("test", time.Minute, testLogger())

	type payout struct{ amount float64 }
	out, err := Do(context.Background(), q, []string{"m"}, func(context.Context) (payout, error) {
		return payout{amount: 12.5}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, payout{amount: 12.5}, out)
}
