package aggregator

import (
	"sync"

	"github.com/shopspring/decimal"
)

// SymbolProcessor holds one symbol's per-exchange weight and last-observed
// mid price, and computes the weighted consensus on each spread update.
type SymbolProcessor struct {
	symbolID int64

	mu           sync.Mutex
	weight       map[string]float64
	lastMid      map[string]decimal.Decimal
	lastEmitted  decimal.Decimal
	hasEmitted   bool
}

// scale returns d's number of digits after the decimal point.
func scale(d decimal.Decimal) int32 {
	exp := d.Exponent()
	if exp >= 0 {
		return 0
	}
	return -exp
}

func newSymbolProcessor(symbolID int64) *SymbolProcessor {
	return &SymbolProcessor{
		symbolID: symbolID,
		weight:   make(map[string]float64),
		lastMid:  make(map[string]decimal.Decimal),
	}
}

// SetWeight records the latest weight for exchange. Never emits; the next
// spread recomputes the consensus.
func (p *SymbolProcessor) SetWeight(exchange string, weight float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.weight[exchange] = weight
}

// PredictIfChanged updates the last-observed mid for exchange and
// recomputes the weighted consensus across every exchange with a known mid.
// Returns (price, true) only when the consensus differs from the last
// emitted value; an undefined consensus (total weight zero) never changes
// the emitted state.
func (p *SymbolProcessor) PredictIfChanged(exchange string, mid decimal.Decimal) (decimal.Decimal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastMid[exchange] = mid

	totalWeight := 0.0
	for e := range p.lastMid {
		totalWeight += p.weight[e] // zero-fill missing weight entries
	}
	if totalWeight == 0 {
		return decimal.Decimal{}, false
	}

	consensus := decimal.Zero
	var maxScale int32
	for e, m := range p.lastMid {
		fraction := p.weight[e] / totalWeight
		consensus = consensus.Add(decimal.NewFromFloat(fraction).Mul(m))
		if s := scale(m); s > maxScale {
			maxScale = s
		}
	}
	consensus = consensus.Round(maxScale)

	if p.hasEmitted && consensus.Equal(p.lastEmitted) {
		return decimal.Decimal{}, false
	}
	p.lastEmitted = consensus
	p.hasEmitted = true
	return consensus, true
}
