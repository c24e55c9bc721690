package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cryptoagg/fireagg/internal/metrics"
)

// blockTimeout is the XREAD block duration for each stream poll.
const blockTimeout = 200 * time.Millisecond

// dataField is the single stream field every message is stored under.
const dataField = "json"

// RedisStreamsBus is the distributed message bus variant: each topic is a
// Redis stream, written with XADD and read with XREAD BLOCK against cursor
// "$" so a new subscriber starts from the latest entry, not the beginning.
type RedisStreamsBus struct {
	client *redis.Client

	trades     *redisTopic[Trade]
	spreads    *redisTopic[Spread]
	weights    *redisTopic[WeightAdjust]
	truePrices *redisTopic[TrueMidPrice]
}

// NewRedisStreamsBus wraps an existing Redis client, one stream per topic.
func NewRedisStreamsBus(client *redis.Client) *RedisStreamsBus {
	return &RedisStreamsBus{
		client:     client,
		trades:     newRedisTopic[Trade](client, TopicTrades),
		spreads:    newRedisTopic[Spread](client, TopicSpreads),
		weights:    newRedisTopic[WeightAdjust](client, TopicWeights),
		truePrices: newRedisTopic[TrueMidPrice](client, TopicTruePrices),
	}
}

func (b *RedisStreamsBus) Trades() Topic[Trade]           { return b.trades }
func (b *RedisStreamsBus) Spreads() Topic[Spread]          { return b.spreads }
func (b *RedisStreamsBus) Weights() Topic[WeightAdjust]    { return b.weights }
func (b *RedisStreamsBus) TruePrices() Topic[TrueMidPrice] { return b.truePrices }

// Init pings Redis to fail fast on misconfiguration. Readers are started
// per-subscription, not here: each Subscribe call gets its own background
// reader rather than sharing one reader per topic (see DESIGN.md).
func (b *RedisStreamsBus) Init(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return &FatalBusError{Err: fmt.Errorf("redis ping: %w", err)}
	}
	return nil
}

func (b *RedisStreamsBus) Close(ctx context.Context) error {
	b.trades.closeAll()
	b.spreads.closeAll()
	b.weights.closeAll()
	b.truePrices.closeAll()
	return b.client.Close()
}

type redisTopic[T any] struct {
	client    *redis.Client
	streamKey string

	mu     sync.Mutex
	subs   map[uint64]*redisSub[T]
	nextID uint64
}

func newRedisTopic[T any](client *redis.Client, streamKey string) *redisTopic[T] {
	return &redisTopic[T]{client: client, streamKey: streamKey, subs: make(map[uint64]*redisSub[T])}
}

func (t *redisTopic[T]) Publish(ctx context.Context, msg T) error {
	data, err := json.Marshal(msg)
	if err != nil {
		metrics.BusPublishes.WithLabelValues(t.streamKey, "error").Inc()
		return &FatalBusError{Err: fmt.Errorf("marshal message: %w", err)}
	}

	err = t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.streamKey,
		Values: map[string]any{dataField: data},
	}).Err()
	if err == nil {
		metrics.BusPublishes.WithLabelValues(t.streamKey, "ok").Inc()
		return nil
	}

	metrics.BusPublishes.WithLabelValues(t.streamKey, "error").Inc()
	if ctx.Err() != nil {
		return &FatalBusError{Err: err}
	}
	return &TransientBusError{Err: err}
}

func (t *redisTopic[T]) Subscribe() Subscription[T] {
	readerCtx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	t.nextID++
	s := &redisSub[T]{
		id:     t.nextID,
		topic:  t,
		ch:     make(chan T, DefaultQueueCapacity),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	t.subs[s.id] = s
	t.mu.Unlock()

	go s.run(readerCtx)
	return s
}

func (t *redisTopic[T]) unregister(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}

func (t *redisTopic[T]) closeAll() {
	t.mu.Lock()
	subs := make([]*redisSub[T], 0, len(t.subs))
	for _, s := range t.subs {
		subs = append(subs, s)
	}
	t.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

type redisSub[T any] struct {
	id        uint64
	topic     *redisTopic[T]
	ch        chan T
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// run polls the stream from "latest" (no replay) and forwards decoded
// messages into the subscriber's local queue.
func (s *redisSub[T]) run(ctx context.Context) {
	lastID := "$"
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := s.topic.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.topic.streamKey, lastID},
			Block:   blockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("bus: redis stream reader error on %s: %v", s.topic.streamKey, err)
			continue
		}

		for _, stream := range res {
			for _, entry := range stream.Messages {
				lastID = entry.ID
				raw, ok := entry.Values[dataField]
				if !ok {
					continue
				}
				data, ok := raw.(string)
				if !ok {
					continue
				}
				var msg T
				if err := json.Unmarshal([]byte(data), &msg); err != nil {
					log.Printf("bus: decode message on %s: %v", s.topic.streamKey, err)
					continue
				}
				select {
				case s.ch <- msg:
				default:
					metrics.BusPublishes.WithLabelValues(s.topic.streamKey, "dropped").Inc()
					log.Printf("bus: subscriber queue full on %s, dropping message", s.topic.streamKey)
				}
			}
		}
	}
}

func (s *redisSub[T]) TryReceive() (T, bool) {
	select {
	case msg := <-s.ch:
		return msg, true
	default:
		var zero T
		return zero, false
	}
}

func (s *redisSub[T]) Receive(ctx context.Context) (T, error) {
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

func (s *redisSub[T]) Ack(T) {}

func (s *redisSub[T]) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.done)
		s.topic.unregister(s.id)
	})
}

// NewRedisClient is a thin constructor wrapper around redis.NewClient.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}
