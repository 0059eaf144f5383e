// Package dashboard serves the results of a finished backtest run over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/emontero/straddle-roller/internal/analytics"
	"github.com/emontero/straddle-roller/internal/execution"
	"github.com/emontero/straddle-roller/internal/models"
	"github.com/emontero/straddle-roller/internal/report"
)

// RunData is the finished run the server exposes. It is read-only after
// construction, so handlers need no locking.
type RunData struct {
	Symbol    string
	Ledger    []models.LedgerRow
	Trades    []models.TradeEvent
	Metrics   map[string]analytics.Metrics
	Execution []execution.EventCost
	Hedge     *report.HedgeReport
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	data      RunData
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

func NewServer(cfg Config, data RunData, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		data:      data,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/", s.handleIndex)
	s.router.Get("/api/ledger", s.handleLedger)
	s.router.Get("/api/trades", s.handleTrades)
	s.router.Get("/api/metrics", s.handleMetrics)
	s.router.Get("/api/execution", s.handleExecution)
	s.router.Get("/api/hedge", s.handleHedge)
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

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting results server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Symbol}} straddle backtest</title></head>
<body>
<h1>{{.Symbol}} straddle backtest</h1>
<p>{{.Days}} ledger days, {{.Trades}} trades.</p>
<ul>
<li><a href="/api/ledger">ledger</a></li>
<li><a href="/api/trades">trades</a></li>
<li><a href="/api/metrics">metrics</a></li>
<li><a href="/api/execution">execution</a></li>
<li><a href="/api/hedge">hedge</a></li>
</ul>
</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	view := struct {
		Symbol string
		Days   int
		Trades int
	}{s.data.Symbol, len(s.data.Ledger), len(s.data.Trades)}

	if err := indexTemplate.Execute(w, view); err != nil {
		s.logger.WithError(err).Error("Failed to execute index template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (s *Server) handleLedger(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, ledgerViews(s.data.Ledger))
}

func (s *Server) handleTrades(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, tradeViews(s.data.Trades))
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, metricsViews(s.data.Metrics))
}

func (s *Server) handleExecution(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, executionViews(s.data.Execution))
}

func (s *Server) handleHedge(w http.ResponseWriter, _ *http.Request) {
	if s.data.Hedge == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, hedgeView(*s.data.Hedge))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
