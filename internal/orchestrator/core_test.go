package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cryptoagg/fireagg/internal/bus"
)

type fakeWorker struct {
	ran   chan struct{}
	block chan struct{}
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{ran: make(chan struct{}), block: make(chan struct{})}
}

func (f *fakeWorker) Run(ctx context.Context) error {
	close(f.ran)
	select {
	case <-f.block:
	case <-ctx.Done():
	}
	return nil
}

func TestCoreLaunchesQueuedWorkers(t *testing.T) {
	c := New(bus.NewInProcessBus(), 2)
	w := newFakeWorker()
	defer close(w.block)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Run(ctx)
	c.PutWorker(w)

	select {
	case <-w.ran:
	case <-time.After(time.Second):
		t.Fatal("worker was never launched")
	}
}

func TestCoreRunReturnsAfterWorkersStop(t *testing.T) {
	c := New(bus.NewInProcessBus(), 1)
	w := newFakeWorker()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	c.PutWorker(w)
	<-w.ran

	cancel()
	close(w.block)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel and worker exit")
	}
}

func TestQueueFIFO(t *testing.T) {
	q := newWorkerQueue()
	var order int32

	w1 := newFakeWorker()
	w2 := newFakeWorker()
	q.Put(w1)
	q.Put(w2)

	ctx := context.Background()
	first, _ := q.Get(ctx)
	second, _ := q.Get(ctx)

	if first != Worker(w1) || second != Worker(w2) {
		t.Fatal("queue did not preserve FIFO order")
	}
	atomic.AddInt32(&order, 1)
}

func TestQueueGetBlocksUntilPut(t *testing.T) {
	q := newWorkerQueue()
	w := newFakeWorker()

	resultCh := make(chan Worker, 1)
	go func() {
		got, _ := q.Get(context.Background())
		resultCh <- got
	}()

	time.Sleep(20 * time.Millisecond)
	q.Put(w)

	select {
	case got := <-resultCh:
		if got != Worker(w) {
			t.Fatal("Get returned the wrong worker")
		}
	case <-time.After(time.Second):
		t.Fatal("Get never returned after Put")
	}
}

func TestQueueGetContextCancel(t *testing.T) {
	q := newWorkerQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Get(ctx)
	if err == nil {
		t.Fatal("Get should return an error when ctx is already done")
	}
}
