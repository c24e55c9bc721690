package storage

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRetention periodically deletes stream rows older than retentionDays
// from all three append-only tables. Blocks until ctx is cancelled.
// retentionDays <= 0 disables pruning.
func RunRetention(ctx context.Context, pool *pgxpool.Pool, retentionDays int) {
	if retentionDays <= 0 {
		log.Println("stream retention disabled (keep forever)")
		return
	}

	interval := 1 * time.Hour
	log.Printf("stream retention: pruning rows older than %d days every %v", retentionDays, interval)

	prune(ctx, pool, retentionDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune(ctx, pool, retentionDays)
		}
	}
}

var retentionTables = []string{
	"symbol_trades_stream",
	"symbol_spreads_stream",
	"symbol_true_mid_price_stream",
}

func prune(ctx context.Context, pool *pgxpool.Pool, retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	for _, table := range retentionTables {
		tag, err := pool.Exec(ctx, "DELETE FROM "+table+" WHERE ts < $1", cutoff)
		if err != nil {
			log.Printf("stream retention prune error on %s: %v", table, err)
			continue
		}
		if n := tag.RowsAffected(); n > 0 {
			log.Printf("stream retention: pruned %d rows from %s older than %s", n, table, cutoff.Format(time.DateOnly))
		}
	}
}
