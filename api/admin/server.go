// Package admin serves health, metrics and book depth over HTTP.
package admin

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sugawarayuuta/sonnet"
	"go.uber.org/zap"

	"tachyon/domain/exchange"
	"tachyon/domain/orderbook"
	"tachyon/service"
)

// DepthSource is where book copies are read from. service.DepthPublisher
// implements it.
type DepthSource interface {
	Load(exchange.TickerID) (*service.BookDepth, bool)
	Tickers() int
}

type Config struct {
	Addr     string
	TickSize decimal.Decimal
}

// Server holds the admin router.
type Server struct {
	cfg       Config
	router    *mux.Router
	http      *http.Server
	depth     DepthSource
	startTime time.Time
	log       *zap.Logger
}

func New(cfg Config, depth DepthSource, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		router:    mux.NewRouter(),
		depth:     depth,
		startTime: time.Now(),
		log:       log,
	}
	s.registerRoutes(gatherer)
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/books", s.handleListBooks).Methods(http.MethodGet)
	s.router.HandleFunc("/books/{ticker:[0-9]+}", s.handleGetBook).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("admin serving", zap.Stringer("addr", lis.Addr()))
	if err := s.http.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "admin: serve")
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// -------------------- handlers --------------------

type levelView struct {
	Price  decimal.Decimal `json:"price"`
	Qty    uint64          `json:"qty"`
	Orders int             `json:"orders"`
}

type bookView struct {
	Ticker    uint32      `json:"ticker"`
	Bids      []levelView `json:"bids"`
	Asks      []levelView `json:"asks"`
	Orders    int         `json:"orders"`
	Processed uint64      `json:"processed"`
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// handleListBooks handles GET /books
func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	tickers := make([]uint32, 0, s.depth.Tickers())
	for t := 0; t < s.depth.Tickers(); t++ {
		if _, ok := s.depth.Load(exchange.TickerID(t)); ok {
			tickers = append(tickers, uint32(t))
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tickers": tickers})
}

// handleGetBook handles GET /books/{ticker}?levels=N
func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	ticker, err := strconv.ParseUint(mux.Vars(r)["ticker"], 10, 32)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid ticker")
		return
	}

	levels := 0
	if v := r.URL.Query().Get("levels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "levels must be a positive integer")
			return
		}
		levels = n
	}

	d, ok := s.depth.Load(exchange.TickerID(ticker))
	if !ok {
		respondError(w, http.StatusNotFound, "no depth for ticker "+strconv.FormatUint(ticker, 10))
		return
	}

	respondJSON(w, http.StatusOK, bookView{
		Ticker:    uint32(d.Ticker),
		Bids:      s.levels(d.Bids, levels),
		Asks:      s.levels(d.Asks, levels),
		Orders:    d.Orders,
		Processed: d.Processed,
	})
}

func (s *Server) levels(in []orderbook.LevelInfo, limit int) []levelView {
	if limit > 0 && len(in) > limit {
		in = in[:limit]
	}
	out := make([]levelView, len(in))
	for i, l := range in {
		out[i] = levelView{
			Price:  decimal.NewFromInt(int64(l.Price)).Mul(s.cfg.TickSize),
			Qty:    l.Qty,
			Orders: l.Orders,
		}
	}
	return out
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	sonnet.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}
