package simulated

import (
	"math"
	"testing"
)

func newTestMarket() *marketEngine {
	return newMarketEngine(newRNG(42), pairs())
}

func TestInitialPrices(t *testing.T) {
	m := newTestMarket()
	for _, p := range pairs() {
		if got := m.prices[p.Ticker]; got != p.BasePrice {
			t.Errorf("%s: initial price = %f, want %f", p.Ticker, got, p.BasePrice)
		}
	}
}

func TestPricePositivityOver10kTicks(t *testing.T) {
	m := newTestMarket()
	ps := pairs()
	for i := 0; i < 10000; i++ {
		for _, p := range ps {
			got := m.tick(p.Ticker)
			if got <= 0 {
				t.Fatalf("%s: price went non-positive at tick %d: %f", p.Ticker, i, got)
			}
		}
	}
}

func TestTickSizeSnapping(t *testing.T) {
	m := newTestMarket()
	ps := pairs()
	for i := 0; i < 1000; i++ {
		for _, p := range ps {
			got := m.tick(p.Ticker)
			remainder := math.Mod(got, p.TickSize)
			if remainder > p.TickSize/10 && remainder < p.TickSize-p.TickSize/10 {
				t.Fatalf("%s: price %f not snapped to tick size %f", p.Ticker, got, p.TickSize)
			}
		}
	}
}

func TestTickUnknownTicker(t *testing.T) {
	m := newTestMarket()
	if got := m.tick("NOPE/USD"); got != 0 {
		t.Fatalf("tick on unknown ticker = %f, want 0", got)
	}
}

func TestSpreadBidBelowAsk(t *testing.T) {
	m := newTestMarket()
	for i := 0; i < 1000; i++ {
		mid := m.tick("BTC/USD")
		bid, ask := m.spread("BTC/USD", mid)
		if bid >= ask {
			t.Fatalf("spread: bid %f >= ask %f", bid, ask)
		}
	}
}

func TestSpreadUnknownTicker(t *testing.T) {
	m := newTestMarket()
	bid, ask := m.spread("NOPE/USD", 100)
	if bid != 100 || ask != 100 {
		t.Fatalf("spread on unknown ticker = (%f, %f), want (100, 100)", bid, ask)
	}
}
