package sink

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cryptoagg/fireagg/internal/bus"
	"github.com/cryptoagg/fireagg/internal/storage"
)

// NewTradesSink wires a Sink[Trade] onto its own dedicated priority pool
// and a fresh subscription to the bus's trades topic. maxFlushAttempts <=
// 0 falls back to DefaultMaxFlushAttempts.
func NewTradesSink(b bus.MessageBus, pool *pgxpool.Pool, maxFlushAttempts int) *Sink[bus.Trade] {
	sub := b.Trades().Subscribe()
	return New("trades", sub, func(ctx context.Context, records []bus.Trade) error {
		return storage.InsertTrades(ctx, pool, records)
	}, maxFlushAttempts)
}

// NewSpreadsSink is NewTradesSink's spreads counterpart.
func NewSpreadsSink(b bus.MessageBus, pool *pgxpool.Pool, maxFlushAttempts int) *Sink[bus.Spread] {
	sub := b.Spreads().Subscribe()
	return New("spreads", sub, func(ctx context.Context, records []bus.Spread) error {
		return storage.InsertSpreads(ctx, pool, records)
	}, maxFlushAttempts)
}

// NewTruePricesSink is NewTradesSink's true-mid-price counterpart.
func NewTruePricesSink(b bus.MessageBus, pool *pgxpool.Pool, maxFlushAttempts int) *Sink[bus.TrueMidPrice] {
	sub := b.TruePrices().Subscribe()
	return New("true_prices", sub, func(ctx context.Context, records []bus.TrueMidPrice) error {
		return storage.InsertTruePrices(ctx, pool, records)
	}, maxFlushAttempts)
}
