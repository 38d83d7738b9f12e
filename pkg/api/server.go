// Package api serves the operator surface of the bot: health, loop status,
// manual pause and resume of trading, recent orders, Prometheus metrics and
// a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/nardis556/ikon-loadGenerator/pkg/breaker"
	"github.com/nardis556/ikon-loadGenerator/pkg/controller"
	"github.com/nardis556/ikon-loadGenerator/pkg/storage"
)

// StatusSource reports the trading loop's state.
type StatusSource interface {
	Snapshot() controller.Snapshot
}

// OrderHistory serves journaled orders.
type OrderHistory interface {
	RecentOrders(wallet string, limit int) ([]storage.OrderRecord, error)
}

type Options struct {
	Breaker        *breaker.TradingState
	Status         StatusSource
	History        OrderHistory
	Gatherer       prometheus.Gatherer
	AllowedOrigins []string
	Log            *zap.SugaredLogger
}

// Server handles the operator REST API and WebSocket connections.
type Server struct {
	opts      Options
	router    *mux.Router
	hub       *Hub
	log       *zap.SugaredLogger
	startedAt time.Time
}

func NewServer(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		opts:      opts,
		router:    mux.NewRouter(),
		hub:       NewHub(log),
		log:       log,
		startedAt: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")

	trading := s.router.PathPrefix("/trading").Subrouter()
	trading.HandleFunc("/pause", s.handlePause).Methods("POST")
	trading.HandleFunc("/resume", s.handleResume).Methods("POST")

	s.router.HandleFunc("/orders/{wallet}", s.handleOrders).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// SetStatusSource attaches the loop after construction. Call it before
// Start.
func (s *Server) SetStatusSource(src StatusSource) { s.opts.Status = src }

// Hub is the event stream fed by the trading loop.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.CloseAll()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_server_starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

type statusResponse struct {
	Trading breaker.Status       `json:"trading"`
	Loop    *controller.Snapshot `json:"loop,omitempty"`
	Uptime  string               `json:"uptime"`
}

type pauseRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Uptime: time.Since(s.startedAt).Round(time.Second).String()}
	if s.opts.Breaker != nil {
		resp.Trading = s.opts.Breaker.Status()
	}
	if s.opts.Status != nil {
		snap := s.opts.Status.Snapshot()
		resp.Loop = &snap
	}
	respondJSON(w, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if s.opts.Breaker == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "no trading state")
		return
	}
	var req pauseRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}
	reason := "operator pause"
	if req.Reason != "" {
		reason = "operator pause: " + req.Reason
	}

	if s.opts.Breaker.Disable(reason) {
		s.log.Warnw("trading_paused_by_operator", "reason", reason, "remote", r.RemoteAddr)
		s.hub.Publish("trading_paused", s.opts.Breaker.Status())
	}
	respondJSON(w, s.opts.Breaker.Status())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.opts.Breaker == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "no trading state")
		return
	}
	s.opts.Breaker.Enable()
	s.log.Infow("trading_resumed_by_operator", "remote", r.RemoteAddr)
	s.hub.Publish("trading_resumed", s.opts.Breaker.Status())
	respondJSON(w, s.opts.Breaker.Status())
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		respondError(w, http.StatusNotFound, "journal disabled", "set JOURNAL_PATH to record orders")
		return
	}
	wallet := mux.Vars(r)["wallet"]

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "invalid limit", "limit must be 1..1000")
			return
		}
		limit = n
	}

	recs, err := s.opts.History.RecentOrders(wallet, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal read failed", err.Error())
		return
	}
	if recs == nil {
		recs = []storage.OrderRecord{}
	}
	respondJSON(w, recs)
}

// ==============================
// Helper Functions
// ==============================

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
