// Package sink implements the DB Sink: one worker per persisted topic,
// batching messages off a dedicated single-connection pool. Each sink
// drains everything currently queued, warns if a drain or flush phase
// runs long, logs periodic throughput, and treats a dead subscription as
// fatal rather than retrying internally.
package sink

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/cryptoagg/fireagg/internal/bus"
	"github.com/cryptoagg/fireagg/internal/metrics"
)

// ErrConsumerExited is returned by Run when its subscription has been
// closed underneath it. Fatal: the sink does not retry itself.
var ErrConsumerExited = errors.New("sink: consumer exited")

// ErrFlushExhausted is returned by Run when a batch fails to flush
// maxFlushAttempts consecutive times. Fatal: the batch was already pulled
// off the subscription, so dropping it silently would lose data, and the
// orchestrator must restart the sink rather than have it spin forever.
var ErrFlushExhausted = errors.New("sink: flush failed after max attempts")

// warnThreshold bounds how long a drain or flush phase may run before it
// is logged as slow.
const warnThreshold = 1 * time.Second

// DefaultMaxFlushAttempts is used when a Sink is constructed with
// maxFlushAttempts <= 0.
const DefaultMaxFlushAttempts = 5

// idleSleep is the pause between empty drain attempts, avoiding a busy
// loop.
const idleSleep = 20 * time.Millisecond

const throughputLogInterval = 5 * time.Second

// Sink drains T messages off a bus subscription and flushes them in
// batches via flushFn.
type Sink[T any] struct {
	Name string

	sub     bus.Subscription[T]
	flushFn func(ctx context.Context, records []T) error

	// maxFlushAttempts is the caller-configured ceiling on consecutive
	// flush failures for one batch before Run surfaces a fatal error.
	maxFlushAttempts int

	mu                sync.Mutex
	throughputCounter int
}

// New constructs a Sink bound to an already-open subscription. The caller
// is responsible for closing the dedicated priority pool flushFn writes
// through. maxFlushAttempts <= 0 falls back to DefaultMaxFlushAttempts.
func New[T any](name string, sub bus.Subscription[T], flushFn func(ctx context.Context, records []T) error, maxFlushAttempts int) *Sink[T] {
	if maxFlushAttempts <= 0 {
		maxFlushAttempts = DefaultMaxFlushAttempts
	}
	return &Sink[T]{Name: name, sub: sub, flushFn: flushFn, maxFlushAttempts: maxFlushAttempts}
}

// Run drains and flushes until ctx is cancelled, the subscription ends, or
// a batch exhausts its flush attempts. Always returns a non-nil error:
// ctx.Err() on a clean shutdown request, ErrConsumerExited if the
// subscription ended unexpectedly, or ErrFlushExhausted if a batch could
// not be written after maxFlushAttempts tries.
func (s *Sink[T]) Run(ctx context.Context) error {
	defer s.sub.Close()

	stopThroughput := make(chan struct{})
	defer close(stopThroughput)
	go s.runThroughputMonitor(stopThroughput)

	log.Printf("sink[%s]: live", s.Name)

	for {
		records, err := s.drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrConsumerExited, err)
		}

		if len(records) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleSleep):
			}
			continue
		}

		start := time.Now()
		if err := s.flushWithRetry(ctx, records); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("sink[%s]: flush failed after %d attempts, escalating: %v", s.Name, s.maxFlushAttempts, err)
			return fmt.Errorf("%w: %v", ErrFlushExhausted, err)
		}
		if d := time.Since(start); d > warnThreshold {
			log.Printf("sink[%s]: waited %.2fs for flush!", s.Name, d.Seconds())
		}

		s.mu.Lock()
		s.throughputCounter += len(records)
		s.mu.Unlock()
		metrics.DBInserts.WithLabelValues(s.Name, s.Name).Add(float64(len(records)))
	}
}

// drain collects every message currently buffered without blocking. If
// none is buffered it waits up to idleSleep for a first one, which is also
// how a closed subscription is detected (bus.ErrSubscriptionClosed is
// returned). A drain that takes longer than warnThreshold is logged.
func (s *Sink[T]) drain(ctx context.Context) ([]T, error) {
	start := time.Now()
	var records []T

	for {
		msg, ok := s.sub.TryReceive()
		if !ok {
			break
		}
		records = append(records, msg)
	}

	if len(records) == 0 {
		waitCtx, cancel := context.WithTimeout(ctx, idleSleep)
		msg, err := s.sub.Receive(waitCtx)
		cancel()
		if errors.Is(err, bus.ErrSubscriptionClosed) {
			return nil, err
		}
		if err == nil {
			records = append(records, msg)
		}
	}

	if d := time.Since(start); d > warnThreshold {
		log.Printf("sink[%s]: waited %.2fs for messages!", s.Name, d.Seconds())
	}
	return records, nil
}

// flushWithRetry retries the same batch on a transient failure instead of
// dropping it.
func (s *Sink[T]) flushWithRetry(ctx context.Context, records []T) error {
	backoff := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < s.maxFlushAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err := s.flushFn(ctx, records); err != nil {
			lastErr = err
			log.Printf("sink[%s]: flush attempt %d failed: %v", s.Name, attempt+1, err)
			continue
		}
		return nil
	}
	return lastErr
}

func (s *Sink[T]) runThroughputMonitor(stop <-chan struct{}) {
	ticker := time.NewTicker(throughputLogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			n := s.throughputCounter
			s.throughputCounter = 0
			s.mu.Unlock()
			if n == 0 {
				log.Printf("sink[%s]: processed no records in the last %v", s.Name, throughputLogInterval)
			} else {
				log.Printf("sink[%s]: processed %d records in the last %v", s.Name, n, throughputLogInterval)
			}
		}
	}
}
