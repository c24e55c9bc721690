// Package registry implements the Symbol Registry: the persistent
// mapping from a logical symbol to its id, and from (exchange, symbol) to
// that exchange's native spelling and availability.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMappingNotFound is returned by GetMapping when no row exists yet for
// (exchange, symbol). The caller is expected to seed the exchange's market
// listing and retry once.
var ErrMappingNotFound = errors.New("registry: no mapping for exchange/symbol")

// Symbol is the logical instrument row.
type Symbol struct {
	ID         int64
	Symbol     string
	BaseAsset  string
	QuoteAsset string
}

// Mapping is one exchange's view of a Symbol.
type Mapping struct {
	SymbolID       int64
	Exchange       string
	ExchangeSymbol string
	Unavailable    bool
}

// Registry is backed by the shared Postgres pool.
type Registry struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Registry {
	return &Registry{pool: pool}
}

// UpsertSymbol idempotently creates (or no-ops on) the logical symbol row.
func (r *Registry) UpsertSymbol(ctx context.Context, symbol, baseAsset, quoteAsset string) (int64, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO symbols (symbol, base_asset, quote_asset)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol) DO NOTHING`,
		symbol, baseAsset, quoteAsset)
	if err != nil {
		return 0, fmt.Errorf("upsert symbol %s: %w", symbol, err)
	}

	var id int64
	err = r.pool.QueryRow(ctx, `SELECT id FROM symbols WHERE symbol = $1`, symbol).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("read back symbol id for %s: %w", symbol, err)
	}
	return id, nil
}

// UpsertMapping idempotently creates or updates the per-exchange mapping,
// overwriting exchange_symbol on conflict.
func (r *Registry) UpsertMapping(ctx context.Context, symbolID int64, exchange, exchangeSymbol string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO symbols_map (symbol_id, exchange, exchange_symbol)
		VALUES ($1, $2, $3)
		ON CONFLICT (symbol_id, exchange) DO UPDATE SET exchange_symbol = EXCLUDED.exchange_symbol`,
		symbolID, exchange, exchangeSymbol)
	if err != nil {
		return fmt.Errorf("upsert mapping (%d, %s): %w", symbolID, exchange, err)
	}
	return nil
}

// MarkUnavailable toggles the availability flag for one (symbol, exchange)
// pair. Called when an exchange permanently rejects a symbol (NotSupported),
// and may be reset manually by an operator.
func (r *Registry) MarkUnavailable(ctx context.Context, symbolID int64, exchange string, unavailable bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE symbols_map SET is_unavailable = $3
		WHERE symbol_id = $1 AND exchange = $2`,
		symbolID, exchange, unavailable)
	if err != nil {
		return fmt.Errorf("mark unavailable (%d, %s, %v): %w", symbolID, exchange, unavailable, err)
	}
	return nil
}

// GetMapping returns the exchange-native symbol for (exchange, symbol), or
// ErrMappingNotFound if the registry has never seen it.
func (r *Registry) GetMapping(ctx context.Context, exchange, symbol string) (Mapping, error) {
	var m Mapping
	err := r.pool.QueryRow(ctx, `
		SELECT sm.symbol_id, sm.exchange, sm.exchange_symbol, sm.is_unavailable
		FROM symbols_map sm
		JOIN symbols s ON s.id = sm.symbol_id
		WHERE sm.exchange = $1 AND s.symbol = $2`,
		exchange, symbol).Scan(&m.SymbolID, &m.Exchange, &m.ExchangeSymbol, &m.Unavailable)
	if err == pgx.ErrNoRows {
		return Mapping{}, ErrMappingNotFound
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("get mapping (%s, %s): %w", exchange, symbol, err)
	}
	return m, nil
}

// ListExchangesForSymbol returns every exchange with an available mapping
// for symbol.
func (r *Registry) ListExchangesForSymbol(ctx context.Context, symbol string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT sm.exchange
		FROM symbols_map sm
		JOIN symbols s ON s.id = sm.symbol_id
		WHERE s.symbol = $1 AND sm.is_unavailable = FALSE`, symbol)
	if err != nil {
		return nil, fmt.Errorf("list exchanges for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ex string
		if err := rows.Scan(&ex); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// SymbolListing is one row of GET /symbols: a logical symbol plus the set
// of exchanges currently carrying it.
type SymbolListing struct {
	Symbol    Symbol   `json:"symbol"`
	Exchanges []string `json:"exchanges"`
}

// ListSymbols returns every logical symbol with its available exchanges,
// for the Read API's symbol listing endpoint.
func (r *Registry) ListSymbols(ctx context.Context) ([]SymbolListing, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, symbol, base_asset, quote_asset FROM symbols ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	defer rows.Close()

	var out []SymbolListing
	for rows.Next() {
		var s Symbol
		if err := rows.Scan(&s.ID, &s.Symbol, &s.BaseAsset, &s.QuoteAsset); err != nil {
			return nil, err
		}
		out = append(out, SymbolListing{Symbol: s})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		exchanges, err := r.ListExchangesForSymbol(ctx, out[i].Symbol.Symbol)
		if err != nil {
			return nil, err
		}
		out[i].Exchanges = exchanges
	}
	return out, nil
}

// GetSymbolByName returns the logical symbol row for symbol, or
// pgx.ErrNoRows if it hasn't been registered yet.
func (r *Registry) GetSymbolByName(ctx context.Context, symbol string) (Symbol, error) {
	var s Symbol
	err := r.pool.QueryRow(ctx, `SELECT id, symbol, base_asset, quote_asset FROM symbols WHERE symbol = $1`, symbol).
		Scan(&s.ID, &s.Symbol, &s.BaseAsset, &s.QuoteAsset)
	return s, err
}

// ListSymbolsForExchange returns every symbol with an available mapping on
// exchange.
func (r *Registry) ListSymbolsForExchange(ctx context.Context, exchange string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.symbol
		FROM symbols_map sm
		JOIN symbols s ON s.id = sm.symbol_id
		WHERE sm.exchange = $1 AND sm.is_unavailable = FALSE`, exchange)
	if err != nil {
		return nil, fmt.Errorf("list symbols for exchange %s: %w", exchange, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}
