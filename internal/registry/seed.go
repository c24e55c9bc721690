package registry

import (
	"context"
	"fmt"

	"github.com/cryptoagg/fireagg/internal/exchange"
)

// SeedMarkets loads exchange's full market listing and upserts every
// symbol/mapping pair it reports. baseQuote splits a logical ticker like
// "BTC/USD" into its base and quote assets; callers that don't need that
// distinction can pass a splitter that returns (symbol, "").
func (r *Registry) SeedMarkets(ctx context.Context, adapter exchange.Adapter, exchangeName string, splitSymbol func(string) (base, quote string)) error {
	markets, err := adapter.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets for %s: %w", exchangeName, err)
	}

	for logicalSymbol, mapping := range markets {
		base, quote := splitSymbol(logicalSymbol)
		symbolID, err := r.UpsertSymbol(ctx, logicalSymbol, base, quote)
		if err != nil {
			return err
		}
		if err := r.UpsertMapping(ctx, symbolID, exchangeName, mapping.NativeSymbol); err != nil {
			return err
		}
		if mapping.Unavailable {
			if err := r.MarkUnavailable(ctx, symbolID, exchangeName, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// SeedAndGetMapping resolves (exchange, symbol) → Mapping, seeding the
// exchange's market listing and retrying exactly once if the mapping is
// initially absent.
func (r *Registry) SeedAndGetMapping(ctx context.Context, adapter exchange.Adapter, exchangeName, symbol string, splitSymbol func(string) (base, quote string)) (Mapping, error) {
	m, err := r.GetMapping(ctx, exchangeName, symbol)
	if err == nil {
		return m, nil
	}
	if err != ErrMappingNotFound {
		return Mapping{}, err
	}

	if err := r.SeedMarkets(ctx, adapter, exchangeName, splitSymbol); err != nil {
		return Mapping{}, fmt.Errorf("seed markets for %s: %w", exchangeName, err)
	}
	return r.GetMapping(ctx, exchangeName, symbol)
}
