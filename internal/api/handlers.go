package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cryptoagg/fireagg/internal/storage"
)

// handleSymbols returns every registered symbol with its available exchanges.
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	listing, err := s.symbols.ListSymbols(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// handleTrades returns paginated trade history for a symbol.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sym, ok := s.resolveSymbol(ctx, w, r.PathValue("symbol"))
	if !ok {
		return
	}

	f := storage.TradeFilter{
		SymbolID: sym.ID,
		Limit:    parseIntParam(r, "limit", 100),
		Offset:   parseIntParam(r, "offset", 0),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.From = &t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			f.To = &t
		}
	}

	trades, err := s.reader.QueryTrades(ctx, f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

// handleCandles returns OHLCV bars for a symbol.
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	sym, ok := s.resolveSymbol(ctx, w, r.PathValue("symbol"))
	if !ok {
		return
	}

	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}

	candles, err := s.reader.QueryCandles(ctx, sym.ID, interval, parseIntParam(r, "limit", 500))
	if err != nil {
		if err == storage.ErrUnknownInterval {
			writeError(w, http.StatusBadRequest, "unknown interval: "+interval)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, candles)
}

// handleTrueMid returns true mid price history for a symbol.
func (s *Server) handleTrueMid(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	sym, ok := s.resolveSymbol(ctx, w, r.PathValue("symbol"))
	if !ok {
		return
	}

	from := parseTimeParam(r, "from", time.Now().Add(-24*time.Hour))
	to := parseTimeParam(r, "to", time.Now())

	prices, err := s.reader.QueryTrueMidHistory(ctx, sym.ID, from, to, parseIntParam(r, "limit", 1000))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

type statsResponse struct {
	Uptime          string `json:"uptime"`
	GatewayClients  int    `json:"gateway_clients"`
	TotalTrades     int64  `json:"total_trades"`
	TotalVolume     string `json:"total_volume"`
}

// handleStats returns runtime and aggregate statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	ts, err := s.reader.QueryTradeStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	clients := 0
	if s.gateway != nil {
		clients = s.gateway.ClientCount()
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Uptime:         time.Since(s.startAt).Truncate(time.Second).String(),
		GatewayClients: clients,
		TotalTrades:    ts.TotalTrades,
		TotalVolume:    ts.TotalVolume.String(),
	})
}

// handleHealth is a liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
