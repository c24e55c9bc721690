// Package api implements the Read API: REST endpoints over the symbol
// registry and trade/candle/true-mid history. The Server holds its
// collaborator references directly, registers routes with mux.HandleFunc
// and Go 1.22's r.PathValue, and shares writeJSON/writeError helpers
// across handlers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cryptoagg/fireagg/internal/registry"
	"github.com/cryptoagg/fireagg/internal/storage"
)

// SymbolLister abstracts the registry lookups the API needs.
type SymbolLister interface {
	ListSymbols(ctx context.Context) ([]registry.SymbolListing, error)
	GetSymbolByName(ctx context.Context, symbol string) (registry.Symbol, error)
}

// ClientCounter reports the client gateway's live connection count.
type ClientCounter interface {
	ClientCount() int
}

// Server provides REST API endpoints over the registry and trade history.
type Server struct {
	symbols SymbolLister
	reader  storage.TradeReader
	gateway ClientCounter
	startAt time.Time
}

// NewServer creates a new API server.
func NewServer(symbols SymbolLister, reader storage.TradeReader, gateway ClientCounter) *Server {
	return &Server{
		symbols: symbols,
		reader:  reader,
		gateway: gateway,
		startAt: time.Now(),
	}
}

// Register attaches API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /symbols", s.handleSymbols)
	mux.HandleFunc("GET /symbols/{symbol}/trades", s.handleTrades)
	mux.HandleFunc("GET /symbols/{symbol}/candles", s.handleCandles)
	mux.HandleFunc("GET /symbols/{symbol}/true-mid", s.handleTrueMid)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// resolveSymbol looks up a symbol by name, writing a 404 if not found.
func (s *Server) resolveSymbol(ctx context.Context, w http.ResponseWriter, symbol string) (registry.Symbol, bool) {
	sym, err := s.symbols.GetSymbolByName(ctx, symbol)
	if err != nil {
		writeError(w, http.StatusNotFound, "symbol not found: "+symbol)
		return registry.Symbol{}, false
	}
	return sym, true
}

func parseIntParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseTimeParam(r *http.Request, key string, def time.Time) time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return def
	}
	return t
}
