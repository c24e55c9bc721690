// Package producer implements the per-(exchange, symbol, stream-kind)
// Producer: a self-healing state machine around one exchange feed,
// with an explicit STARTING/STREAMING/DEAD health-counter machine that
// retries transient errors. It terminates when init fails, when the
// adapter reports ErrNotSupported, or (unless RetryForever is set) when
// the health counter is exhausted.
package producer

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoagg/fireagg/internal/bus"
	"github.com/cryptoagg/fireagg/internal/exchange"
	"github.com/cryptoagg/fireagg/internal/metrics"
	"github.com/cryptoagg/fireagg/internal/registry"
)

// Kind distinguishes the two producer roles sharing this state machine.
type Kind int

const (
	KindTrades Kind = iota
	KindSpreads
)

func (k Kind) String() string {
	if k == KindTrades {
		return "trades"
	}
	return "spreads"
}

// State is the producer's position in its health-tracking state machine.
type State int

const (
	StateStarting State = iota
	StateStreaming
	StateDead
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	default:
		return "dead"
	}
}

// HealthCounterMax is the number of consecutive stream errors tolerated
// before a producer transitions to DEAD.
const HealthCounterMax = 3

// tradeFreshnessLimit drops trades whose event_ts_ms is older than this,
// guarding against an exchange replaying history on reconnect.
const tradeFreshnessLimit = 300 * time.Second

// weightRefreshInterval is how often the secondary task re-queries 24h
// volume and republishes a WeightAdjust.
const weightRefreshInterval = 500 * time.Second

// errMsgTruncateLen caps a logged error message at 200 characters.
const errMsgTruncateLen = 200

// SplitSymbol breaks a logical ticker like "BTC/USD" into base/quote, used
// when seeding the registry on a missing mapping.
type SplitSymbol func(logicalSymbol string) (base, quote string)

// Producer drives one (exchange, logical symbol, kind) feed.
type Producer struct {
	Exchange      string
	LogicalSymbol string
	Kind          Kind
	RetryForever  bool

	adapter  exchange.Adapter
	registry *registry.Registry
	bus      bus.MessageBus
	split    SplitSymbol

	state         State
	healthCounter int
	symbolID      int64
	nativeSymbol  string
	isLive        bool

	// lastSpread holds the previous published (best_bid, best_ask) for
	// coalescing; nil until the first spread is published.
	lastSpread *coalesceKey
}

type coalesceKey struct {
	bid, ask decimal.Decimal
}

// New constructs a Producer. retryForever, when true, means health
// exhaustion never forces DEAD — only an ErrNotSupported from the adapter
// does.
func New(exch string, logicalSymbol string, kind Kind, adapter exchange.Adapter, reg *registry.Registry, b bus.MessageBus, split SplitSymbol, retryForever bool) *Producer {
	return &Producer{
		Exchange:      exch,
		LogicalSymbol: logicalSymbol,
		Kind:          kind,
		RetryForever:  retryForever,
		adapter:       adapter,
		registry:      reg,
		bus:           b,
		split:         split,
		state:         StateStarting,
		healthCounter: HealthCounterMax,
	}
}

// Run executes the full init sequence then the STARTING→STREAMING→DEAD
// state machine until ctx is cancelled or the producer reaches DEAD.
// Returns nil on a clean shutdown (ctx cancelled) or on DEAD — a dead
// producer terminates only itself, not the owning process.
func (p *Producer) Run(ctx context.Context) error {
	if err := p.init(ctx); err != nil {
		p.transition(StateDead)
		log.Printf("producer[%s/%s/%s]: init failed: %s", p.Exchange, p.LogicalSymbol, p.Kind, truncate(err.Error()))
		return nil
	}

	refreshCtx, cancelRefresh := context.WithCancel(ctx)
	go p.runWeightRefresh(refreshCtx)
	defer cancelRefresh()

	p.transition(StateStreaming)

	for p.state == StateStreaming {
		err := p.streamOnce(ctx)
		if err == nil {
			// ctx cancelled cleanly mid-stream.
			break
		}

		if errors.Is(err, exchange.ErrNotSupported) {
			log.Printf("producer[%s/%s/%s]: unsupported, disabling mapping", p.Exchange, p.LogicalSymbol, p.Kind)
			if mErr := p.registry.MarkUnavailable(ctx, p.symbolID, p.Exchange, true); mErr != nil {
				log.Printf("producer[%s/%s/%s]: mark unavailable failed: %v", p.Exchange, p.LogicalSymbol, p.Kind, mErr)
			}
			p.transition(StateDead)
			break
		}

		log.Printf("producer[%s/%s/%s]: %s", p.Exchange, p.LogicalSymbol, p.Kind, truncate(err.Error()))
		p.healthCounter--
		if p.healthCounter <= 0 && !p.RetryForever {
			log.Printf("producer[%s/%s/%s]: health exhausted, terminating", p.Exchange, p.LogicalSymbol, p.Kind)
			p.transition(StateDead)
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff(p.healthCounter)):
		}
	}

	cancelRefresh()
	p.publishFinalWeight(ctx)
	return nil
}

// backoff grows as the health counter is depleted, clamped to [1s, 5s].
func backoff(healthCounter int) time.Duration {
	secs := HealthCounterMax - healthCounter + 1
	if secs < 1 {
		secs = 1
	}
	if secs > 5 {
		secs = 5
	}
	return time.Duration(secs) * time.Second
}

func (p *Producer) transition(to State) {
	metrics.ProducerHealthTransitions.WithLabelValues(p.Exchange, p.Kind.String(), to.String()).Inc()
	p.state = to
}

func truncate(s string) string {
	if len(s) > errMsgTruncateLen {
		return s[:errMsgTruncateLen] + "..."
	}
	return s
}

// init resolves the exchange mapping (seeding on demand), runs the
// adapter's one-shot initializer, and publishes the starting WeightAdjust.
func (p *Producer) init(ctx context.Context) error {
	mapping, err := p.registry.SeedAndGetMapping(ctx, p.adapter, p.Exchange, p.LogicalSymbol, p.split)
	if err != nil {
		return err
	}
	p.symbolID = mapping.SymbolID
	p.nativeSymbol = mapping.ExchangeSymbol

	if err := p.adapter.Init(ctx); err != nil {
		return err
	}

	return p.refreshWeight(ctx)
}

func (p *Producer) refreshWeight(ctx context.Context) error {
	stats, err := p.adapter.GetMarket(ctx, p.nativeSymbol)
	if err != nil {
		return err
	}
	weight, _ := stats.Volume24h.Float64()
	w := bus.NewWeightAdjust(p.Exchange, p.symbolID, weight)
	return p.bus.Weights().Publish(ctx, w)
}

// runWeightRefresh republishes a WeightAdjust every weightRefreshInterval,
// cancelled when the producer leaves STREAMING.
func (p *Producer) runWeightRefresh(ctx context.Context) {
	ticker := time.NewTicker(weightRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.refreshWeight(ctx); err != nil {
				log.Printf("producer[%s/%s/%s]: weight refresh failed: %s", p.Exchange, p.LogicalSymbol, p.Kind, truncate(err.Error()))
			}
		}
	}
}

// publishFinalWeight zeroes this exchange's contribution on shutdown so
// the aggregator excludes it.
func (p *Producer) publishFinalWeight(ctx context.Context) {
	w := bus.NewWeightAdjust(p.Exchange, p.symbolID, 0)
	if err := p.bus.Weights().Publish(context.Background(), w); err != nil {
		log.Printf("producer[%s/%s/%s]: publish final weight=0 failed: %v", p.Exchange, p.LogicalSymbol, p.Kind, err)
	}
}
