package simulated

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cryptoagg/fireagg/internal/exchange"
)

func TestListMarketsCoversAllPairs(t *testing.T) {
	a := NewAdapter(1)
	markets, err := a.ListMarkets(context.Background())
	if err != nil {
		t.Fatalf("ListMarkets: %v", err)
	}
	for _, p := range pairs() {
		if _, ok := markets[p.Ticker]; !ok {
			t.Errorf("ListMarkets missing %s", p.Ticker)
		}
	}
}

func TestGetMarketUnknownSymbol(t *testing.T) {
	a := NewAdapter(1)
	_, err := a.GetMarket(context.Background(), "NOPE/USD")
	if !errors.Is(err, exchange.ErrNotSupported) {
		t.Fatalf("err = %v, want ErrNotSupported", err)
	}
}

func TestWatchTradesUnknownSymbol(t *testing.T) {
	a := NewAdapter(1)
	_, _, err := a.WatchTrades(context.Background(), "NOPE/USD")
	if !errors.Is(err, exchange.ErrNotSupported) {
		t.Fatalf("err = %v, want ErrNotSupported", err)
	}
}

func TestWatchTradesEmits(t *testing.T) {
	a := NewAdapter(1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	trades, _, err := a.WatchTrades(ctx, "BTC/USD")
	if err != nil {
		t.Fatalf("WatchTrades: %v", err)
	}

	select {
	case tr := <-trades:
		if tr.Price.IsZero() {
			t.Fatal("trade price should not be zero")
		}
		if tr.Amount.IsNegative() || tr.Amount.IsZero() {
			t.Fatal("trade amount should be positive")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a trade")
	}
}

func TestWatchSpreadsInvariant(t *testing.T) {
	a := NewAdapter(1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	spreads, _, err := a.WatchSpreads(ctx, "ETH/USD")
	if err != nil {
		t.Fatalf("WatchSpreads: %v", err)
	}

	select {
	case sp := <-spreads:
		if len(sp.Bids) == 0 || len(sp.Asks) == 0 {
			t.Fatal("spread should carry at least one level per side")
		}
		if sp.Bids[0].Price.GreaterThan(sp.Asks[0].Price) {
			t.Fatalf("best bid %s should not exceed best ask %s", sp.Bids[0].Price, sp.Asks[0].Price)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a spread")
	}
}
