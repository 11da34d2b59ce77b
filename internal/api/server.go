package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, deps Dependencies) *Server {
	handler := NewHandler(deps)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)
	router.Use(RecoverMiddleware)
	router.Use(TracingMiddleware)
	router.Use(LoggingMiddleware)
	router.Use(MetricsMiddleware(handler.metrics))
	router.Use(middleware.RealIP)
	router.Use(middleware.Compress(5))

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)
	router.Handle("/metrics", handler.metrics.Handler())

	router.Route("/api", func(r chi.Router) {
		r.Route("/fraud", func(r chi.Router) {
			r.Get("/summary", handler.FraudSummary)
			r.Get("/by-type", handler.FraudByType)
			r.Get("/by-type/breakdown", handler.FraudBreakdown)
			r.Get("/statistics", handler.FraudStatistics)
			r.Get("/suspicious", handler.Suspicious)
			r.Get("/transactions/{id}", handler.DetectFraud)

			r.Post("/predict", handler.Predict)
			r.Post("/predict/full", handler.PredictFull)
			r.Post("/predict/simple", handler.PredictSimple)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", handler.ListTransactions)
			r.Get("/types", handler.TransactionTypes)
			r.Get("/recent", handler.RecentTransactions)
			r.Post("/search", handler.SearchTransactions)
			r.Get("/by-customer/{clientID}", handler.TransactionsByCustomer)
			r.Get("/{id}", handler.GetTransaction)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/overview", handler.StatsOverview)
			r.Get("/amount-distribution", handler.AmountDistribution)
			r.Get("/by-type", handler.StatsByType)
			r.Get("/daily", handler.DailyStats)
		})

		r.Get("/client/{id}", handler.GetClient)
		r.Get("/customers", handler.ListCustomers)
		r.Get("/customers/top", handler.TopCustomers)

		r.Get("/system/health", handler.SystemHealth)
		r.Get("/system/metadata", handler.SystemMetadata)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
