package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cryptoagg/fireagg/internal/bus"
)

// InsertTrades batch-inserts trades inside one transaction, so a partial
// failure rolls back the whole batch and the sink can safely retry it.
func InsertTrades(ctx context.Context, pool *pgxpool.Pool, trades []bus.Trade) error {
	return withTx(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, tr := range trades {
			batch.Queue(
				`INSERT INTO symbol_trades_stream (exchange, symbol_id, ts, price, amount, is_buy, fetch_ts)
				 VALUES ($1, $2, to_timestamp($3/1000.0), $4, $5, $6, to_timestamp($7/1000.0))`,
				tr.Exchange, tr.SymbolID, tr.EventTsMs, tr.Price, tr.Amount, tr.IsBuy, tr.FetchTsMs,
			)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range trades {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertSpreads batch-inserts spreads inside one transaction.
func InsertSpreads(ctx context.Context, pool *pgxpool.Pool, spreads []bus.Spread) error {
	return withTx(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, sp := range spreads {
			batch.Queue(
				`INSERT INTO symbol_spreads_stream (exchange, symbol_id, ts, best_bid, best_ask, fetch_ts)
				 VALUES ($1, $2, to_timestamp($3/1000.0), $4, $5, to_timestamp($6/1000.0))`,
				sp.Exchange, sp.SymbolID, sp.EventTsMs, sp.BestBid, sp.BestAsk, sp.FetchTsMs,
			)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range spreads {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
}

// InsertTruePrices batch-inserts true-mid-price points inside one transaction.
func InsertTruePrices(ctx context.Context, pool *pgxpool.Pool, prices []bus.TrueMidPrice) error {
	return withTx(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, p := range prices {
			batch.Queue(
				`INSERT INTO symbol_true_mid_price_stream (symbol_id, ts, true_mid_price)
				 VALUES ($1, to_timestamp($2/1000.0), $3)`,
				p.SymbolID, p.EventTsMs, p.TrueMidPrice,
			)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range prices {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// ArchiveCursor returns the last-archived timestamp for a stream table, or
// the zero time if none has been recorded yet.
func ArchiveCursor(ctx context.Context, pool *pgxpool.Pool, table string) (time.Time, error) {
	var ts time.Time
	err := pool.QueryRow(ctx, `SELECT last_ts FROM archive_cursor WHERE stream_table = $1`, table).Scan(&ts)
	if err == pgx.ErrNoRows {
		return time.Time{}, nil
	}
	return ts, err
}

// SetArchiveCursor records the last-archived timestamp for a stream table.
func SetArchiveCursor(ctx context.Context, pool *pgxpool.Pool, table string, ts time.Time) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO archive_cursor (stream_table, last_ts) VALUES ($1, $2)
		ON CONFLICT (stream_table) DO UPDATE SET last_ts = EXCLUDED.last_ts`,
		table, ts)
	return err
}

// DeleteTradesInRange deletes archived trades with ts in (after, through],
// called by the archiver once a batch has been durably written.
func DeleteTradesInRange(ctx context.Context, pool *pgxpool.Pool, after, through time.Time) error {
	_, err := pool.Exec(ctx, `DELETE FROM symbol_trades_stream WHERE ts > $1 AND ts <= $2`, after, through)
	return err
}

// ArchivableTradeRow is one row read back for S3 archival.
type ArchivableTradeRow struct {
	Exchange string          `json:"exchange"`
	SymbolID int64           `json:"symbol_id"`
	Ts       time.Time       `json:"ts"`
	Price    decimal.Decimal `json:"price"`
	Amount   decimal.Decimal `json:"amount"`
	IsBuy    bool            `json:"is_buy"`
}

// SelectTradesSince returns trades with ts in (after, now()-olderThan),
// ordered by ts, capped at limit rows. Used by the archiver to read a
// chunk of rows old enough to be safely archived.
func SelectTradesSince(ctx context.Context, pool *pgxpool.Pool, after time.Time, olderThan time.Duration, limit int) ([]ArchivableTradeRow, time.Time, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := pool.Query(ctx, `
		SELECT exchange, symbol_id, ts, price, amount, is_buy
		FROM symbol_trades_stream
		WHERE ts > $1 AND ts < $2
		ORDER BY ts ASC
		LIMIT $3`, after, cutoff, limit)
	if err != nil {
		return nil, after, err
	}
	defer rows.Close()

	var out []ArchivableTradeRow
	last := after
	for rows.Next() {
		var r ArchivableTradeRow
		if err := rows.Scan(&r.Exchange, &r.SymbolID, &r.Ts, &r.Price, &r.Amount, &r.IsBuy); err != nil {
			return nil, after, err
		}
		out = append(out, r)
		last = r.Ts
	}
	return out, last, rows.Err()
}
