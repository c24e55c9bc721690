package bus

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/cryptoagg/fireagg/internal/metrics"
)

// DefaultQueueCapacity bounds each subscriber's private queue at around
// 100,000 messages; publishes beyond that drop rather than block, since
// the in-process bus's publish contract forbids failing.
const DefaultQueueCapacity = 100_000

// InProcessBus is the single-node message bus variant: one unbounded (in
// practice, capped) multi-subscriber queue per topic, with a buffered
// per-subscriber channel and a non-blocking send that drops and counts on
// overflow.
type InProcessBus struct {
	trades     *inprocTopic[Trade]
	spreads    *inprocTopic[Spread]
	weights    *inprocTopic[WeightAdjust]
	truePrices *inprocTopic[TrueMidPrice]
}

// NewInProcessBus creates an in-process bus with the default per-subscriber
// queue capacity.
func NewInProcessBus() *InProcessBus {
	return &InProcessBus{
		trades:     newInprocTopic[Trade](TopicTrades),
		spreads:    newInprocTopic[Spread](TopicSpreads),
		weights:    newInprocTopic[WeightAdjust](TopicWeights),
		truePrices: newInprocTopic[TrueMidPrice](TopicTruePrices),
	}
}

func (b *InProcessBus) Trades() Topic[Trade]               { return b.trades }
func (b *InProcessBus) Spreads() Topic[Spread]              { return b.spreads }
func (b *InProcessBus) Weights() Topic[WeightAdjust]        { return b.weights }
func (b *InProcessBus) TruePrices() Topic[TrueMidPrice]     { return b.truePrices }
func (b *InProcessBus) Init(ctx context.Context) error      { return nil }
func (b *InProcessBus) Close(ctx context.Context) error     { return nil }

type inprocTopic[T any] struct {
	name    string
	mu      sync.Mutex
	subs    map[uint64]*inprocSub[T]
	nextID  uint64
	dropped uint64
}

func newInprocTopic[T any](name string) *inprocTopic[T] {
	return &inprocTopic[T]{name: name, subs: make(map[uint64]*inprocSub[T])}
}

// Publish fans msg out to every live subscriber, counting one "ok" for
// the publish itself plus one "dropped" per subscriber whose queue was
// full. Never returns an error: a full subscriber queue drops that
// subscriber's copy rather than failing the publish.
func (t *inprocTopic[T]) Publish(ctx context.Context, msg T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.subs {
		select {
		case s.ch <- msg:
		default:
			atomic.AddUint64(&t.dropped, 1)
			metrics.BusPublishes.WithLabelValues(t.name, "dropped").Inc()
			log.Printf("bus: subscriber queue full, dropping message")
		}
	}
	metrics.BusPublishes.WithLabelValues(t.name, "ok").Inc()
	return nil
}

func (t *inprocTopic[T]) Subscribe() Subscription[T] {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	s := &inprocSub[T]{
		id:    t.nextID,
		topic: t,
		ch:    make(chan T, DefaultQueueCapacity),
		done:  make(chan struct{}),
	}
	t.subs[s.id] = s
	return s
}

func (t *inprocTopic[T]) unregister(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}

type inprocSub[T any] struct {
	id        uint64
	topic     *inprocTopic[T]
	ch        chan T
	done      chan struct{}
	closeOnce sync.Once
}

func (s *inprocSub[T]) TryReceive() (T, bool) {
	select {
	case msg := <-s.ch:
		return msg, true
	default:
		var zero T
		return zero, false
	}
}

func (s *inprocSub[T]) Receive(ctx context.Context) (T, error) {
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.done:
		var zero T
		return zero, ErrSubscriptionClosed
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (s *inprocSub[T]) Ack(T) {}

func (s *inprocSub[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.topic.unregister(s.id)
	})
}
