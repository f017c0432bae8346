// Package api exposes a small read-only REST surface over the collector:
// health, ingest totals, the tracked symbol list, and the buffered records.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"marketshm/internal/market"
	"marketshm/internal/model"
)

// Response is the common envelope for every endpoint.
type Response struct {
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SymbolStatus is one symbol's entry in the /api/status payload.
type SymbolStatus struct {
	Symbol         string `json:"symbol"`
	Trades         uint64 `json:"trades"`
	Klines         uint64 `json:"klines"`
	Messages       uint64 `json:"messages"`
	Bytes          uint64 `json:"bytes"`
	TradesBuffered int    `json:"tradesBuffered"`
	KlinesBuffered int    `json:"klinesBuffered"`
}

// Server is the REST API server.
type Server struct {
	table   *market.Table
	logger  *zap.Logger
	mux     *http.ServeMux
	srv     *http.Server
	address string
	started time.Time
}

// NewServer creates an API server over the symbol table.
func NewServer(address string, table *market.Table, logger *zap.Logger) *Server {
	s := &Server{
		table:   table,
		logger:  logger,
		mux:     http.NewServeMux(),
		address: address,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/symbols", s.handleSymbols)
	s.mux.HandleFunc("/api/records", s.handleRecords)
}

// Run starts the HTTP server and shuts it down when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:    s.address,
		Handler: corsMiddleware(s.mux),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api_server_started", zap.String("address", s.address))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Data:      map[string]string{"status": "ok"},
		Timestamp: time.Now(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	symbols := make([]SymbolStatus, 0, len(s.table.Names()))
	for _, name := range s.table.Names() {
		sym, ok := s.table.Lookup(name)
		if !ok {
			continue
		}
		c := sym.Counters()
		st := SymbolStatus{
			Symbol:   name,
			Trades:   c.Trades.Load(),
			Klines:   c.Klines.Load(),
			Messages: c.Messages.Load(),
			Bytes:    c.Bytes.Load(),
		}
		sym.Inspect(func(trades *market.Ring[model.TradeRecord], klines *market.Ring[model.KlineRecord]) {
			st.TradesBuffered = trades.Len()
			st.KlinesBuffered = klines.Len()
		})
		symbols = append(symbols, st)
	}

	writeJSON(w, http.StatusOK, Response{
		Data: map[string]any{
			"uptimeSeconds": int(time.Since(s.started).Seconds()),
			"symbols":       symbols,
		},
		Timestamp: time.Now(),
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Data:      s.table.Names(),
		Timestamp: time.Now(),
	})
}

// handleRecords returns the buffered window for one symbol:
// GET /api/records?symbol=BTCUSDT&limit=20
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	name := strings.ToUpper(r.URL.Query().Get("symbol"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, Response{
			Error:     "symbol parameter required",
			Timestamp: time.Now(),
		})
		return
	}
	sym, ok := s.table.Lookup(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, Response{
			Error:     "unknown symbol: " + name,
			Timestamp: time.Now(),
		})
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, Response{
				Error:     "invalid limit: " + v,
				Timestamp: time.Now(),
			})
			return
		}
		limit = n
	}

	var tradeRecs []model.TradeRecord
	var klineRecs []model.KlineRecord
	sym.Inspect(func(trades *market.Ring[model.TradeRecord], klines *market.Ring[model.KlineRecord]) {
		for _, rec := range trades.All() {
			if limit > 0 && len(tradeRecs) >= limit {
				break
			}
			tradeRecs = append(tradeRecs, rec)
		}
		for _, rec := range klines.All() {
			if limit > 0 && len(klineRecs) >= limit {
				break
			}
			klineRecs = append(klineRecs, rec)
		}
	})

	writeJSON(w, http.StatusOK, Response{
		Data: map[string]any{
			"symbol": name,
			"trades": tradeRecs,
			"klines": klineRecs,
		},
		Timestamp: time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
