// Package httpapi exposes the voting portal as a small local HTTP API that a
// UI drives: wallet session control, founder listing, voting and winners.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Oshkosh1922/edens-gates/internal/database"
	"github.com/Oshkosh1922/edens-gates/internal/metrics"
	"github.com/Oshkosh1922/edens-gates/internal/middleware"
	"github.com/Oshkosh1922/edens-gates/internal/votes"
	"github.com/Oshkosh1922/edens-gates/internal/wallet"
	"github.com/Oshkosh1922/edens-gates/pkg/logger"
)

// Voter casts votes and owns the live tally.
type Voter interface {
	CastVote(ctx context.Context, founderID string) (*votes.Receipt, error)
	Tally() *votes.Tally
}

// Config holds the handler's collaborators.
type Config struct {
	Session  wallet.Session
	Registry *wallet.Registry
	Voter    Voter
	Repo     database.Repository
	Metrics  *metrics.Metrics
	Logger   *logger.Logger
	// Events receives wallet and vote events; nil creates a private hub.
	Events *Hub

	RateLimit   float64
	Burst       int
	CORSOrigins []string
}

type handler struct {
	session  wallet.Session
	registry *wallet.Registry
	voter    Voter
	repo     database.Repository
	hub      *Hub
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewRouter builds the routed, instrumented API handler.
func NewRouter(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	if cfg.Session == nil {
		cfg.Session = wallet.NewSession(wallet.SessionConfig{})
	}
	if cfg.Events == nil {
		cfg.Events = NewHub(log.Named("events"))
	}
	h := &handler{
		session:  cfg.Session,
		registry: cfg.Registry,
		voter:    cfg.Voter,
		repo:     cfg.Repo,
		hub:      cfg.Events,
		upgrader: newUpgrader(cfg.CORSOrigins),
		log:      log,
	}

	r := mux.NewRouter()
	r.Use(middleware.RequestID, middleware.LoggingMiddleware(log))
	if cfg.Metrics != nil {
		r.Use(middleware.MetricsMiddleware("api", cfg.Metrics))
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	if len(cfg.CORSOrigins) > 0 {
		api.Use(middleware.NewCORSMiddleware(cfg.CORSOrigins).Handler)
	}
	if cfg.RateLimit > 0 {
		api.Use(middleware.NewRateLimiter(cfg.RateLimit, cfg.Burst, log).Handler)
	}

	api.HandleFunc("/wallet", h.walletStatus).Methods(http.MethodGet)
	api.HandleFunc("/wallet/adapters", h.walletAdapters).Methods(http.MethodGet)
	api.HandleFunc("/wallet/select", h.walletSelect).Methods(http.MethodPost)
	api.HandleFunc("/wallet/connect", h.walletConnect).Methods(http.MethodPost)
	api.HandleFunc("/wallet/disconnect", h.walletDisconnect).Methods(http.MethodPost)
	api.HandleFunc("/founders", h.founders).Methods(http.MethodGet)
	api.HandleFunc("/founders/{id}/votes", h.castVote).Methods(http.MethodPost)
	api.HandleFunc("/winners", h.winners).Methods(http.MethodGet)
	api.HandleFunc("/events", h.events).Methods(http.MethodGet)
	api.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return r
}

// Server runs the API over HTTP.
type Server struct {
	srv *http.Server
	log *logger.Logger
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// Votes may wait out a full confirmation window.
			WriteTimeout: 150 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.srv.Addr).Info("HTTP API listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("HTTP API stopped")
	return nil
}
