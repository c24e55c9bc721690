// Package bus implements the typed multi-topic publish/subscribe message bus:
// an in-process fan-out queue for single-node runs, and a Redis
// Streams-backed variant for distributed runs.
package bus

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// Topic names double as the distributed bus's Redis stream keys.
const (
	TopicTrades     = "symbol_trades"
	TopicSpreads    = "symbol_spreads"
	TopicWeights    = "connector_weights"
	TopicTruePrices = "symbol_true_prices"
)

// Message is embedded by every bus payload type; it carries a globally
// unique, time-ordered-enough id suitable for dedup and for linking a
// TrueMidPrice back to the spread that triggered it.
type Message struct {
	ID string `json:"id"`
}

// newID is 8 big-endian bytes of the current Unix nanosecond time followed
// by 8 random bytes, hex-encoded, so ids sort by creation time.
func newID() string {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
	_, _ = rand.Read(b[8:])
	return hex.EncodeToString(b[:])
}

// NowMs returns the current time in milliseconds since epoch.
func NowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

// Trade is a single executed trade normalized from an exchange feed.
type Trade struct {
	Message
	Exchange    string          `json:"exchange"`
	SymbolID    int64           `json:"symbol_id"`
	EventTsMs   int64           `json:"event_ts_ms"`
	FetchTsMs   int64           `json:"fetch_ts_ms"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
	IsBuy       bool            `json:"is_buy"`
}

// NewTrade stamps a fresh id on a Trade.
func NewTrade(exchange string, symbolID int64, eventTsMs, fetchTsMs int64, price, amount decimal.Decimal, isBuy bool) Trade {
	return Trade{
		Message:   Message{ID: newID()},
		Exchange:  exchange,
		SymbolID:  symbolID,
		EventTsMs: eventTsMs,
		FetchTsMs: fetchTsMs,
		Price:     price,
		Amount:    amount,
		IsBuy:     isBuy,
	}
}

// Spread is a top-of-book snapshot. Invariant: BestBid <= BestAsk.
type Spread struct {
	Message
	Exchange  string          `json:"exchange"`
	SymbolID  int64           `json:"symbol_id"`
	EventTsMs int64           `json:"event_ts_ms"`
	FetchTsMs int64           `json:"fetch_ts_ms"`
	BestBid   decimal.Decimal `json:"best_bid"`
	BestAsk   decimal.Decimal `json:"best_ask"`
}

// NewSpread stamps a fresh id on a Spread.
func NewSpread(exchange string, symbolID int64, eventTsMs, fetchTsMs int64, bestBid, bestAsk decimal.Decimal) Spread {
	return Spread{
		Message:   Message{ID: newID()},
		Exchange:  exchange,
		SymbolID:  symbolID,
		EventTsMs: eventTsMs,
		FetchTsMs: fetchTsMs,
		BestBid:   bestBid,
		BestAsk:   bestAsk,
	}
}

// WeightAdjust carries a venue's contribution weight for one symbol, usually
// a recent 24h base-volume measurement. Weight 0 means "not contributing".
type WeightAdjust struct {
	Message
	Exchange string  `json:"exchange"`
	SymbolID int64   `json:"symbol_id"`
	Weight   float64 `json:"weight"`
}

// NewWeightAdjust stamps a fresh id on a WeightAdjust.
func NewWeightAdjust(exchange string, symbolID int64, weight float64) WeightAdjust {
	return WeightAdjust{
		Message:  Message{ID: newID()},
		Exchange: exchange,
		SymbolID: symbolID,
		Weight:   weight,
	}
}

// TrueMidPrice is the aggregator's consensus output, published only when the
// value changes.
type TrueMidPrice struct {
	Message
	SymbolID           int64           `json:"symbol_id"`
	EventTsMs          int64           `json:"event_ts_ms"`
	TrueMidPrice       decimal.Decimal `json:"true_mid_price"`
	TriggeringSpreadID string          `json:"triggering_spread_id"`
}

// NewTrueMidPrice stamps a fresh id on a TrueMidPrice.
func NewTrueMidPrice(symbolID int64, eventTsMs int64, price decimal.Decimal, triggeringSpreadID string) TrueMidPrice {
	return TrueMidPrice{
		Message:            Message{ID: newID()},
		SymbolID:           symbolID,
		EventTsMs:          eventTsMs,
		TrueMidPrice:       price,
		TriggeringSpreadID: triggeringSpreadID,
	}
}
