package producer

import (
	"context"

	"github.com/cryptoagg/fireagg/internal/bus"
)

// streamOnce opens one watch handle on the adapter's feed and consumes it
// until the feed errs or ctx is cancelled. Returns nil only on a clean ctx
// cancellation; any other return is an error for Run's state machine to
// classify.
func (p *Producer) streamOnce(ctx context.Context) error {
	if p.Kind == KindTrades {
		return p.streamTrades(ctx)
	}
	return p.streamSpreads(ctx)
}

func (p *Producer) streamTrades(ctx context.Context) error {
	events, errCh, err := p.adapter.WatchTrades(ctx, p.nativeSymbol)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return <-errCh
			}
			if ev.EventTsMs == 0 || isStale(ev.EventTsMs) {
				continue
			}

			p.markLive()
			tr := bus.NewTrade(p.Exchange, p.symbolID, ev.EventTsMs, bus.NowMs(), ev.Price, ev.Amount, ev.IsBuy)
			if err := p.bus.Trades().Publish(ctx, tr); err != nil {
				return err
			}
		}
	}
}

func (p *Producer) streamSpreads(ctx context.Context) error {
	events, errCh, err := p.adapter.WatchSpreads(ctx, p.nativeSymbol)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return <-errCh
			}
			if ev.EventTsMs == 0 || len(ev.Bids) == 0 || len(ev.Asks) == 0 {
				continue
			}

			bid, ask := ev.Bids[0].Price, ev.Asks[0].Price
			key := coalesceKey{bid: bid, ask: ask}
			if p.lastSpread != nil && p.lastSpread.bid.Equal(bid) && p.lastSpread.ask.Equal(ask) {
				continue
			}
			p.lastSpread = &key

			p.markLive()
			sp := bus.NewSpread(p.Exchange, p.symbolID, ev.EventTsMs, bus.NowMs(), bid, ask)
			if err := p.bus.Spreads().Publish(ctx, sp); err != nil {
				return err
			}
		}
	}
}

// markLive resets the health counter on the first (and every subsequent)
// successfully delivered event.
func (p *Producer) markLive() {
	p.healthCounter = HealthCounterMax
	if !p.isLive {
		p.isLive = true
	}
}

func isStale(eventTsMs int64) bool {
	return bus.NowMs()-eventTsMs > tradeFreshnessLimit.Milliseconds()
}
