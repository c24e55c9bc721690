package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cryptoagg/fireagg/internal/registry"
	"github.com/cryptoagg/fireagg/internal/storage"
)

// --- stub SymbolLister ---

type stubSymbolLister struct {
	listing []registry.SymbolListing
	byName  map[string]registry.Symbol
}

func (s *stubSymbolLister) ListSymbols(context.Context) ([]registry.SymbolListing, error) {
	return s.listing, nil
}

func (s *stubSymbolLister) GetSymbolByName(_ context.Context, symbol string) (registry.Symbol, error) {
	sym, ok := s.byName[symbol]
	if !ok {
		return registry.Symbol{}, errors.New("not found")
	}
	return sym, nil
}

// --- stub TradeReader ---

type stubTradeReader struct {
	trades     []storage.TradeRow
	tradesErr  error
	candles    []storage.Candle
	candlesErr error
	truemid    []storage.TrueMidRow
	stats      storage.TradeStats
	statsErr   error

	lastTradeFilter storage.TradeFilter
}

func (s *stubTradeReader) QueryTrades(_ context.Context, f storage.TradeFilter) ([]storage.TradeRow, error) {
	s.lastTradeFilter = f
	return s.trades, s.tradesErr
}

func (s *stubTradeReader) QueryCandles(_ context.Context, _ int64, _ string, _ int) ([]storage.Candle, error) {
	return s.candles, s.candlesErr
}

func (s *stubTradeReader) QueryTrueMidHistory(_ context.Context, _ int64, _, _ time.Time, _ int) ([]storage.TrueMidRow, error) {
	return s.truemid, nil
}

func (s *stubTradeReader) QueryTradeStats(context.Context) (storage.TradeStats, error) {
	return s.stats, s.statsErr
}

// --- stub ClientCounter ---

type stubClientCounter struct{ n int }

func (s *stubClientCounter) ClientCount() int { return s.n }

func newTestServer(symbols *stubSymbolLister, reader *stubTradeReader) (*Server, *http.ServeMux) {
	if symbols == nil {
		symbols = &stubSymbolLister{byName: map[string]registry.Symbol{}}
	}
	if reader == nil {
		reader = &stubTradeReader{}
	}
	srv := NewServer(symbols, reader, &stubClientCounter{n: 3})
	mux := http.NewServeMux()
	srv.Register(mux)
	return srv, mux
}

func mustDecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestHandleSymbols(t *testing.T) {
	symbols := &stubSymbolLister{
		listing: []registry.SymbolListing{
			{Symbol: registry.Symbol{ID: 1, Symbol: "BTC/USD"}, Exchanges: []string{"simulated"}},
		},
	}
	_, mux := newTestServer(symbols, nil)

	req := httptest.NewRequest("GET", "/symbols", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out []registry.SymbolListing
	mustDecodeJSON(t, w.Result(), &out)
	if len(out) != 1 || out[0].Symbol.Symbol != "BTC/USD" {
		t.Fatalf("unexpected body: %+v", out)
	}
}

func TestHandleTradesSymbolNotFound(t *testing.T) {
	_, mux := newTestServer(nil, nil)
	req := httptest.NewRequest("GET", "/symbols/ZZZ/trades", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleTrades(t *testing.T) {
	symbols := &stubSymbolLister{byName: map[string]registry.Symbol{
		"BTC/USD": {ID: 7, Symbol: "BTC/USD"},
	}}
	reader := &stubTradeReader{trades: []storage.TradeRow{
		{Exchange: "simulated", Price: decimal.NewFromInt(100), Amount: decimal.NewFromInt(1)},
	}}
	_, mux := newTestServer(symbols, reader)

	req := httptest.NewRequest("GET", "/symbols/BTC%2FUSD/trades?limit=10", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if reader.lastTradeFilter.SymbolID != 7 {
		t.Fatalf("expected SymbolID 7, got %d", reader.lastTradeFilter.SymbolID)
	}
	if reader.lastTradeFilter.Limit != 10 {
		t.Fatalf("expected Limit 10, got %d", reader.lastTradeFilter.Limit)
	}
}

func TestHandleCandlesUnknownInterval(t *testing.T) {
	symbols := &stubSymbolLister{byName: map[string]registry.Symbol{"BTC/USD": {ID: 1, Symbol: "BTC/USD"}}}
	reader := &stubTradeReader{candlesErr: storage.ErrUnknownInterval}
	_, mux := newTestServer(symbols, reader)

	req := httptest.NewRequest("GET", "/symbols/BTC%2FUSD/candles?interval=7m", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandleStats(t *testing.T) {
	reader := &stubTradeReader{stats: storage.TradeStats{TotalTrades: 42, TotalVolume: decimal.NewFromInt(1000)}}
	_, mux := newTestServer(nil, reader)

	req := httptest.NewRequest("GET", "/stats", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var out statsResponse
	mustDecodeJSON(t, w.Result(), &out)
	if out.TotalTrades != 42 {
		t.Fatalf("expected TotalTrades 42, got %d", out.TotalTrades)
	}
	if out.GatewayClients != 3 {
		t.Fatalf("expected GatewayClients 3, got %d", out.GatewayClients)
	}
}

func TestHandleHealth(t *testing.T) {
	_, mux := newTestServer(nil, nil)
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
