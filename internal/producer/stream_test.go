package producer

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoagg/fireagg/internal/bus"
	"github.com/cryptoagg/fireagg/internal/exchange"
)

// fakeAdapter streams a fixed, scripted sequence of trade/spread events.
type fakeAdapter struct {
	trades  []exchange.TradeEvent
	spreads []exchange.SpreadEvent
}

func (f *fakeAdapter) ListMarkets(ctx context.Context) (map[string]exchange.MarketMapping, error) {
	return nil, nil
}
func (f *fakeAdapter) Init(ctx context.Context) error { return nil }

func (f *fakeAdapter) WatchTrades(ctx context.Context, nativeSymbol string) (<-chan exchange.TradeEvent, <-chan error, error) {
	out := make(chan exchange.TradeEvent, len(f.trades))
	errCh := make(chan error, 1)
	for _, tr := range f.trades {
		out <- tr
	}
	close(out)
	errCh <- nil
	return out, errCh, nil
}

func (f *fakeAdapter) WatchSpreads(ctx context.Context, nativeSymbol string) (<-chan exchange.SpreadEvent, <-chan error, error) {
	out := make(chan exchange.SpreadEvent, len(f.spreads))
	errCh := make(chan error, 1)
	for _, sp := range f.spreads {
		out <- sp
	}
	close(out)
	errCh <- nil
	return out, errCh, nil
}

func (f *fakeAdapter) GetMarket(ctx context.Context, nativeSymbol string) (exchange.MarketStats, error) {
	return exchange.MarketStats{Close: decimal.NewFromInt(1), Volume24h: decimal.NewFromInt(1000)}, nil
}

func newTestProducer(kind Kind, adapter exchange.Adapter) (*Producer, bus.MessageBus) {
	b := bus.NewInProcessBus()
	p := New("kraken", "BTC/USD", kind, adapter, nil, b, nil, false)
	p.symbolID = 1
	p.nativeSymbol = "XBT/USD"
	return p, b
}

func lvl(price string) decimal.Decimal {
	d, _ := decimal.NewFromString(price)
	return d
}

func TestStreamTradesDropsStaleAndZeroTimestamp(t *testing.T) {
	old := bus.NowMs() - (400 * time.Second).Milliseconds()
	adapter := &fakeAdapter{trades: []exchange.TradeEvent{
		{EventTsMs: 0, Price: lvl("100"), Amount: lvl("1")},
		{EventTsMs: old, Price: lvl("100"), Amount: lvl("1")},
		{EventTsMs: bus.NowMs(), Price: lvl("101"), Amount: lvl("2"), IsBuy: true},
	}}
	p, b := newTestProducer(KindTrades, adapter)

	sub := b.Trades().Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.streamTrades(ctx)

	tr, ok := sub.TryReceive()
	if !ok {
		t.Fatal("expected exactly one accepted trade")
	}
	if !tr.Price.Equal(lvl("101")) {
		t.Fatalf("price = %s, want 101", tr.Price)
	}
	if _, ok := sub.TryReceive(); ok {
		t.Fatal("expected only one trade to survive filtering")
	}
}

func TestStreamSpreadsCoalescesIdenticalLevels(t *testing.T) {
	now := bus.NowMs()
	mkSpread := func(bid, ask string) exchange.SpreadEvent {
		return exchange.SpreadEvent{
			EventTsMs: now,
			Bids:      []exchange.PriceLevel{{Price: lvl(bid), Amount: lvl("1")}},
			Asks:      []exchange.PriceLevel{{Price: lvl(ask), Amount: lvl("1")}},
		}
	}
	adapter := &fakeAdapter{spreads: []exchange.SpreadEvent{
		mkSpread("100", "101"),
		mkSpread("100", "101"), // identical, should be coalesced away
		mkSpread("102", "103"), // changed, should publish
	}}
	p, b := newTestProducer(KindSpreads, adapter)

	sub := b.Spreads().Subscribe()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = p.streamSpreads(ctx)

	first, ok := sub.TryReceive()
	if !ok {
		t.Fatal("expected the first spread to publish")
	}
	if !first.BestBid.Equal(lvl("100")) {
		t.Fatalf("first best_bid = %s, want 100", first.BestBid)
	}

	second, ok := sub.TryReceive()
	if !ok {
		t.Fatal("expected the changed spread to publish")
	}
	if !second.BestBid.Equal(lvl("102")) {
		t.Fatalf("second best_bid = %s, want 102", second.BestBid)
	}

	if _, ok := sub.TryReceive(); ok {
		t.Fatal("expected exactly two published spreads")
	}
}

func TestMarkLiveResetsHealthCounter(t *testing.T) {
	p, _ := newTestProducer(KindTrades, &fakeAdapter{})
	p.healthCounter = 0
	p.markLive()
	if p.healthCounter != HealthCounterMax {
		t.Fatalf("healthCounter = %d, want %d", p.healthCounter, HealthCounterMax)
	}
	if !p.isLive {
		t.Fatal("isLive should be true after markLive")
	}
}

func TestBackoffBounds(t *testing.T) {
	if d := backoff(HealthCounterMax); d > 5*time.Second || d < time.Second {
		t.Fatalf("backoff(%d) = %v, out of [1s,5s]", HealthCounterMax, d)
	}
	if d := backoff(0); d > 5*time.Second || d < time.Second {
		t.Fatalf("backoff(0) = %v, out of [1s,5s]", d)
	}
}
