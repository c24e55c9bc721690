package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSub is a minimal bus.Subscription[int] for exercising the drain/flush
// loop without a real bus implementation.
type fakeSub struct {
	mu     sync.Mutex
	queued []int
	closed bool
}

func (f *fakeSub) push(v int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, v)
}

func (f *fakeSub) TryReceive() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queued) == 0 {
		return 0, false
	}
	v := f.queued[0]
	f.queued = f.queued[1:]
	return v, true
}

func (f *fakeSub) Receive(ctx context.Context) (int, error) {
	for {
		if v, ok := f.TryReceive(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *fakeSub) Ack(int) {}

func (f *fakeSub) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func TestSinkFlushesDrainedBatch(t *testing.T) {
	sub := &fakeSub{}
	sub.push(1)
	sub.push(2)
	sub.push(3)

	var flushed []int
	var mu sync.Mutex
	done := make(chan struct{})

	s := New("test", sub, func(ctx context.Context, records []int) error {
		mu.Lock()
		flushed = append(flushed, records...)
		mu.Unlock()
		close(done)
		return nil
	}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go s.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flush never called")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(flushed) != 3 {
		t.Fatalf("flushed %d records, want 3", len(flushed))
	}
}

func TestSinkRetriesTransientFlushFailure(t *testing.T) {
	sub := &fakeSub{}
	sub.push(42)

	var attempts int
	var mu sync.Mutex
	done := make(chan struct{})

	s := New("test", sub, func(ctx context.Context, records []int) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go s.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("flush never succeeded after retry")
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts < 2 {
		t.Fatalf("attempts = %d, want at least 2", attempts)
	}
}

func TestSinkReturnsFatalErrorOnFlushExhaustion(t *testing.T) {
	sub := &fakeSub{}
	sub.push(7)

	s := New("test", sub, func(ctx context.Context, records []int) error {
		return errors.New("permanent failure")
	}, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrFlushExhausted) {
			t.Fatalf("err = %v, want ErrFlushExhausted", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after exhausting flush attempts")
	}
}

func TestSinkReturnsContextErrorOnCancel(t *testing.T) {
	sub := &fakeSub{}
	s := New("test", sub, func(ctx context.Context, records []int) error { return nil }, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
