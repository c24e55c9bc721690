// Package simulated is a concrete exchange.Adapter for local development
// and tests: a synthetic crypto market driven by correlated-free GBM price
// walks and a sine/random-walk stress controller. It intentionally does
// not model order book depth beyond one synthetic best bid/ask level.
package simulated

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoagg/fireagg/internal/exchange"
)

func init() {
	exchange.Register("simulated", func() exchange.Adapter { return NewAdapter(0) })
}

// Adapter streams synthetic trades and spreads for a fixed universe of
// crypto pairs.
type Adapter struct {
	rng    *rng
	market *marketEngine
	pairs  map[string]pair
}

// NewAdapter creates a simulated adapter. seed 0 derives a seed from the
// current time.
func NewAdapter(seed int64) *Adapter {
	r := newRNG(seed)
	ps := pairs()
	byName := make(map[string]pair, len(ps))
	for _, p := range ps {
		byName[p.Ticker] = p
	}
	return &Adapter{rng: r, market: newMarketEngine(r, ps), pairs: byName}
}

func (a *Adapter) Init(ctx context.Context) error { return nil }

func (a *Adapter) ListMarkets(ctx context.Context) (map[string]exchange.MarketMapping, error) {
	out := make(map[string]exchange.MarketMapping, len(a.pairs))
	for ticker := range a.pairs {
		out[ticker] = exchange.MarketMapping{NativeSymbol: ticker}
	}
	return out, nil
}

func (a *Adapter) GetMarket(ctx context.Context, nativeSymbol string) (exchange.MarketStats, error) {
	p, ok := a.pairs[nativeSymbol]
	if !ok {
		return exchange.MarketStats{}, exchange.ErrNotSupported
	}
	close := a.market.price(nativeSymbol)
	if close == 0 {
		close = p.BasePrice
	}
	// Synthetic 24h volume: a roughly fixed notional turnover converted to
	// base-asset units, so cheaper coins show a plausible larger unit volume.
	volume := (500_000 + a.rng.Float64()*2_000_000) / p.BasePrice
	return exchange.MarketStats{
		Close:     decimal.NewFromFloat(close),
		Volume24h: decimal.NewFromFloat(volume),
	}, nil
}

func (a *Adapter) WatchTrades(ctx context.Context, nativeSymbol string) (<-chan exchange.TradeEvent, <-chan error, error) {
	p, ok := a.pairs[nativeSymbol]
	if !ok {
		return nil, nil, exchange.ErrNotSupported
	}

	out := make(chan exchange.TradeEvent, 64)
	errCh := make(chan error, 1)
	sc := newStressController(a.rng, defaultStressConfig())

	go func() {
		defer close(out)
		for {
			wait := sc.next()
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(wait):
			}

			price := a.market.tick(p.Ticker)
			amount := 0.001 + a.rng.Float64()*2.0
			ev := exchange.TradeEvent{
				EventTsMs: time.Now().UnixMilli(),
				Price:     decimal.NewFromFloat(price),
				Amount:    decimal.NewFromFloat(amount),
				IsBuy:     a.rng.Float64() < 0.5,
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh, nil
}

func (a *Adapter) WatchSpreads(ctx context.Context, nativeSymbol string) (<-chan exchange.SpreadEvent, <-chan error, error) {
	p, ok := a.pairs[nativeSymbol]
	if !ok {
		return nil, nil, exchange.ErrNotSupported
	}

	out := make(chan exchange.SpreadEvent, 64)
	errCh := make(chan error, 1)
	sc := newStressController(a.rng, defaultStressConfig())

	go func() {
		defer close(out)
		for {
			wait := sc.next()
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(wait):
			}

			mid := a.market.price(p.Ticker)
			if mid == 0 {
				mid = p.BasePrice
			}
			bid, ask := a.market.spread(p.Ticker, mid)
			ev := exchange.SpreadEvent{
				EventTsMs: time.Now().UnixMilli(),
				Bids:      []exchange.PriceLevel{{Price: decimal.NewFromFloat(bid), Amount: decimal.NewFromFloat(1)}},
				Asks:      []exchange.PriceLevel{{Price: decimal.NewFromFloat(ask), Amount: decimal.NewFromFloat(1)}},
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}
	}()

	return out, errCh, nil
}
