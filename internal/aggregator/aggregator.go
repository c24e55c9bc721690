// Package aggregator implements the True-Mid Aggregator: a per-symbol
// weighted consensus across exchanges, emitted only when it changes.
// Per-symbol state lives in a plain Go map; the handful of exchanges
// contributing to any one symbol never warrants a dataframe-style join.
package aggregator

import (
	"context"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cryptoagg/fireagg/internal/bus"
)

// weightScale is the minimum number of significant digits a weight
// fraction (float) keeps when converted into decimal before the dot
// product. PredictIfChanged converts with decimal.NewFromFloat, which keeps
// the float's shortest exact form (up to 17 significant digits), so no
// rounding to weightScale is applied.
const weightScale = 12

// Aggregator subscribes to spreads and weights and maintains one
// SymbolProcessor per symbol_id.
type Aggregator struct {
	b bus.MessageBus

	mu      sync.Mutex
	symbols map[int64]*SymbolProcessor
}

func New(b bus.MessageBus) *Aggregator {
	return &Aggregator{b: b, symbols: make(map[int64]*SymbolProcessor)}
}

// Run subscribes to both topics and blocks until ctx is cancelled: one
// goroutine for spreads, one for weights, sharing per-symbol state behind
// a per-symbol lock (the SymbolProcessor's own mutex). Satisfies
// orchestrator.Worker.
func (a *Aggregator) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		a.runSpreads(ctx)
	}()
	go func() {
		defer wg.Done()
		a.runWeights(ctx)
	}()

	wg.Wait()
	return ctx.Err()
}

func (a *Aggregator) runSpreads(ctx context.Context) {
	sub := a.b.Spreads().Subscribe()
	defer sub.Close()

	for {
		spread, err := sub.Receive(ctx)
		if err != nil {
			return
		}

		a.mu.Lock()
		proc := a.symbols[spread.SymbolID]
		a.mu.Unlock()
		if proc == nil {
			// No WeightAdjust has arrived for this symbol yet; only the
			// weight handler creates processors.
			continue
		}

		mid := spread.BestBid.Add(spread.BestAsk).Div(decimal.NewFromInt(2))
		truePrice, changed := proc.PredictIfChanged(spread.Exchange, mid)
		if !changed {
			continue
		}

		out := bus.NewTrueMidPrice(spread.SymbolID, bus.NowMs(), truePrice, spread.ID)
		if err := a.b.TruePrices().Publish(ctx, out); err != nil {
			log.Printf("aggregator: publish true_mid_price for symbol %d: %v", spread.SymbolID, err)
		}
	}
}

func (a *Aggregator) runWeights(ctx context.Context) {
	sub := a.b.Weights().Subscribe()
	defer sub.Close()

	for {
		w, err := sub.Receive(ctx)
		if err != nil {
			return
		}

		a.mu.Lock()
		proc, ok := a.symbols[w.SymbolID]
		if !ok {
			proc = newSymbolProcessor(w.SymbolID)
			a.symbols[w.SymbolID] = proc
		}
		a.mu.Unlock()

		proc.SetWeight(w.Exchange, w.Weight)
	}
}
