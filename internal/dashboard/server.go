// Package dashboard serves a read-only JSON view of the ledger: decision
// records, closed trades, running statistics, and the breach trail.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/revred/odte/internal/ledger"
)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	ledger    ledger.Interface
	logger    *logrus.Logger
	addr      string
	authToken string
}

type Config struct {
	Addr      string
	AuthToken string
}

// Summary is the top-level /api/summary payload.
type Summary struct {
	Stats       ledger.Statistics `json:"stats"`
	Records     int               `json:"records"`
	Breaches    int               `json:"breaches"`
	LastUpdate  time.Time         `json:"last_update"`
	TodaysPnL   float64           `json:"todays_pnl"`
	TradesToday int               `json:"trades_today"`
}

func NewServer(cfg Config, led ledger.Interface, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		ledger:    led,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/api/summary", s.handleSummary)
	s.router.Get("/api/stats", s.handleStats)
	s.router.Get("/api/records", s.handleRecords)
	s.router.Get("/api/record/{id}", s.handleRecord)
	s.router.Get("/api/history", s.handleHistory)
	s.router.Get("/api/breaches", s.handleBreaches)
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on %s", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	today := time.Now().UTC().Format("2006-01-02")

	tradesToday := 0
	for _, pos := range s.ledger.History() {
		if pos.ClosedAt.UTC().Format("2006-01-02") == today {
			tradesToday++
		}
	}

	s.writeJSON(w, Summary{
		Stats:       s.ledger.Statistics(),
		Records:     len(s.ledger.Records()),
		Breaches:    len(s.ledger.Breaches()),
		LastUpdate:  time.Now().UTC(),
		TodaysPnL:   s.ledger.DailyPnL(today),
		TradesToday: tradesToday,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.ledger.Statistics())
}

func (s *Server) handleRecords(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.ledger.Records())
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, rec := range s.ledger.Records() {
		if rec.ID == id {
			s.writeJSON(w, rec)
			return
		}
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.ledger.History())
}

func (s *Server) handleBreaches(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.ledger.Breaches())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
