package aggregator

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestPredictIfChangedSkipsWithoutWeight(t *testing.T) {
	p := newSymbolProcessor(1)
	_, changed := p.PredictIfChanged("kraken", dec("100"))
	if changed {
		t.Fatal("should not emit when total weight is zero")
	}
}

func TestPredictIfChangedEmitsWeightedAverage(t *testing.T) {
	p := newSymbolProcessor(1)
	p.SetWeight("kraken", 1)
	p.SetWeight("coinbase", 1)

	p.PredictIfChanged("kraken", dec("100"))
	price, changed := p.PredictIfChanged("coinbase", dec("200"))
	if !changed {
		t.Fatal("should emit once both exchanges have a mid")
	}
	if !price.Equal(dec("150")) {
		t.Fatalf("price = %s, want 150", price)
	}
}

func TestPredictIfChangedNoChangeNoEmit(t *testing.T) {
	p := newSymbolProcessor(1)
	p.SetWeight("kraken", 1)

	_, first := p.PredictIfChanged("kraken", dec("100"))
	if !first {
		t.Fatal("first update should emit")
	}
	_, second := p.PredictIfChanged("kraken", dec("100"))
	if second {
		t.Fatal("identical mid should not re-emit")
	}
}

func TestPredictIfChangedZeroWeightExchangeExcludedFromSplit(t *testing.T) {
	p := newSymbolProcessor(1)
	p.SetWeight("kraken", 1)
	// coinbase never gets a WeightAdjust; treated as weight 0.
	p.PredictIfChanged("coinbase", dec("900"))
	price, changed := p.PredictIfChanged("kraken", dec("100"))
	if !changed {
		t.Fatal("consensus should emit once a weighted exchange has a mid")
	}
	if !price.Equal(dec("100")) {
		t.Fatalf("price = %s, want 100 (coinbase has zero weight)", price)
	}
}

func TestSetWeightDoesNotEmit(t *testing.T) {
	p := newSymbolProcessor(1)
	p.SetWeight("kraken", 5)
	if p.hasEmitted {
		t.Fatal("SetWeight must never emit directly")
	}
}
