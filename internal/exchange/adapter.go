// Package exchange defines the contract that every exchange connector must
// satisfy, and a closed factory for selecting a concrete implementation by
// name at startup.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotSupported signals that an exchange cannot serve a given symbol or
// feature, distinct from a transient failure. Producers mark the mapping
// unavailable and terminate rather than retry.
var ErrNotSupported = errors.New("exchange: not supported")

// MarketMapping is one exchange's view of a symbol: its native trading pair
// spelling and whether listing succeeded for it.
type MarketMapping struct {
	NativeSymbol string
	Unavailable  bool
}

// TradeEvent is a single normalized trade off an exchange's websocket feed.
type TradeEvent struct {
	EventTsMs int64
	Price     decimal.Decimal
	Amount    decimal.Decimal
	IsBuy     bool
}

// SpreadEvent is a top-of-book snapshot; Bids/Asks are ordered best-first,
// and only the first level is consumed by the rest of the pipeline.
type SpreadEvent struct {
	EventTsMs int64
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// PriceLevel is one level of a (possibly depth-truncated) order book side.
type PriceLevel struct {
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// MarketStats is the 24h ticker summary used to seed a connector's initial
// weight.
type MarketStats struct {
	Close      decimal.Decimal
	Volume24h  decimal.Decimal
}

// Adapter is the exchange connector contract: four operations plus Init.
// Each concrete implementation is registered with the package Factory
// under its exchange name.
type Adapter interface {
	// ListMarkets returns every symbol this exchange lists, keyed by the
	// logical ticker the caller already knows (e.g. "BTC/USD").
	ListMarkets(ctx context.Context) (map[string]MarketMapping, error)

	// Init performs one-shot setup (e.g. loading exchange metadata). Called
	// once before any Watch* or GetMarket call.
	Init(ctx context.Context) error

	// WatchTrades returns a channel of trade events for nativeSymbol. The
	// channel is closed, and never reopened, once the feed errs; the
	// returned error reports why. Returns ErrNotSupported immediately if the
	// exchange cannot stream trades for this symbol.
	WatchTrades(ctx context.Context, nativeSymbol string) (<-chan TradeEvent, <-chan error, error)

	// WatchSpreads is WatchTrades's top-of-book counterpart.
	WatchSpreads(ctx context.Context, nativeSymbol string) (<-chan SpreadEvent, <-chan error, error)

	// GetMarket fetches the 24h ticker summary used to derive an initial
	// connector weight.
	GetMarket(ctx context.Context, nativeSymbol string) (MarketStats, error)
}

// Factory constructs a named Adapter. Concrete adapters are selected at
// startup by exchange name; the set is closed and enumerated rather than
// dynamically loaded.
type Factory func() Adapter

var registry = map[string]Factory{}

// Register adds a Factory under name. Called from concrete adapter packages'
// init().
func Register(name string, f Factory) {
	registry[name] = f
}

// New constructs the named adapter, or returns ErrNotSupported if no
// Factory was registered under that name.
func New(name string) (Adapter, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: exchange %q", ErrNotSupported, name)
	}
	return f(), nil
}

// Names lists every registered exchange name, for config validation and
// help text.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	return names
}
