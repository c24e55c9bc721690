package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TradeFilter scopes a paginated trade history query.
type TradeFilter struct {
	SymbolID int64
	Limit    int
	Offset   int
	From     *time.Time
	To       *time.Time
}

// TradeRow is one row returned by QueryTrades.
type TradeRow struct {
	Exchange string          `json:"exchange"`
	Ts       time.Time       `json:"ts"`
	Price    decimal.Decimal `json:"price"`
	Amount   decimal.Decimal `json:"amount"`
	IsBuy    bool            `json:"is_buy"`
}

// TrueMidRow is one row returned by QueryTrueMidHistory.
type TrueMidRow struct {
	Ts    time.Time       `json:"ts"`
	Price decimal.Decimal `json:"true_mid_price"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Ts     time.Time       `json:"ts"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// TradeStats is the aggregate count/volume summary for GET /stats.
type TradeStats struct {
	TotalTrades int64           `json:"total_trades"`
	TotalVolume decimal.Decimal `json:"total_volume"`
}

// ErrUnknownInterval is returned by QueryCandles for an unrecognized
// ?interval= value.
var ErrUnknownInterval = fmt.Errorf("storage: unknown candle interval")

// candleIntervals maps the API's ?interval= values to a Postgres interval
// literal usable with date_bin.
var candleIntervals = map[string]string{
	"1m":  "1 minute",
	"5m":  "5 minutes",
	"15m": "15 minutes",
	"1h":  "1 hour",
	"4h":  "4 hours",
	"1d":  "1 day",
}

// TradeReader abstracts the Read API's read-only queries against the
// trade/spread/true-mid history. PgTradeReader below is its pgx-backed
// implementation.
type TradeReader interface {
	QueryTrades(ctx context.Context, f TradeFilter) ([]TradeRow, error)
	QueryCandles(ctx context.Context, symbolID int64, interval string, limit int) ([]Candle, error)
	QueryTrueMidHistory(ctx context.Context, symbolID int64, from, to time.Time, limit int) ([]TrueMidRow, error)
	QueryTradeStats(ctx context.Context) (TradeStats, error)
}

// PgTradeReader implements TradeReader against a Postgres pool.
type PgTradeReader struct {
	pool *pgxpool.Pool
}

func NewPgTradeReader(pool *pgxpool.Pool) *PgTradeReader {
	return &PgTradeReader{pool: pool}
}

// QueryTrades returns f.Limit trades for f.SymbolID newest-first, optionally
// bounded by [From, To].
func (r *PgTradeReader) QueryTrades(ctx context.Context, f TradeFilter) ([]TradeRow, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx, `
		SELECT exchange, ts, price, amount, is_buy
		FROM symbol_trades_stream
		WHERE symbol_id = $1
		  AND ($2::timestamptz IS NULL OR ts >= $2)
		  AND ($3::timestamptz IS NULL OR ts <= $3)
		ORDER BY ts DESC
		LIMIT $4 OFFSET $5`,
		f.SymbolID, f.From, f.To, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.Exchange, &t.Ts, &t.Price, &t.Amount, &t.IsBuy); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// QueryTrueMidHistory returns the consensus price history for symbolID in
// [from, to], oldest first, capped at limit rows.
func (r *PgTradeReader) QueryTrueMidHistory(ctx context.Context, symbolID int64, from, to time.Time, limit int) ([]TrueMidRow, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	rows, err := r.pool.Query(ctx, `
		SELECT ts, true_mid_price
		FROM symbol_true_mid_price_stream
		WHERE symbol_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC
		LIMIT $4`, symbolID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query true mid history: %w", err)
	}
	defer rows.Close()

	var out []TrueMidRow
	for rows.Next() {
		var row TrueMidRow
		if err := rows.Scan(&row.Ts, &row.Price); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// QueryCandles computes OHLCV bars for symbolID over symbol_trades_stream
// using date_bin-bucketed windows.
func (r *PgTradeReader) QueryCandles(ctx context.Context, symbolID int64, interval string, limit int) ([]Candle, error) {
	pgInterval, ok := candleIntervals[interval]
	if !ok {
		return nil, ErrUnknownInterval
	}
	if limit <= 0 || limit > 2000 {
		limit = 500
	}

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		WITH bucketed AS (
			SELECT date_bin('%s', ts, TIMESTAMPTZ '2000-01-01') AS bucket,
			       price, amount, ts,
			       first_value(price) OVER w AS open,
			       last_value(price) OVER w AS close
			FROM symbol_trades_stream
			WHERE symbol_id = $1
			WINDOW w AS (PARTITION BY date_bin('%s', ts, TIMESTAMPTZ '2000-01-01') ORDER BY ts
			             ROWS BETWEEN UNBOUNDED PRECEDING AND UNBOUNDED FOLLOWING)
		)
		SELECT bucket, MIN(open), MAX(price), MIN(price), MAX(close), COALESCE(SUM(amount), 0)
		FROM bucketed
		GROUP BY bucket
		ORDER BY bucket DESC
		LIMIT $2`, pgInterval, pgInterval), symbolID, limit)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// QueryTradeStats returns lifetime trade count and total base volume.
func (r *PgTradeReader) QueryTradeStats(ctx context.Context) (TradeStats, error) {
	var ts TradeStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM symbol_trades_stream`).
		Scan(&ts.TotalTrades, &ts.TotalVolume)
	if err != nil {
		return TradeStats{}, fmt.Errorf("query trade stats: %w", err)
	}
	return ts, nil
}
