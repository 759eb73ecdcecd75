// Package web provides the JSON HTTP API for the sales import service.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/JonMunkholm/saleimport/internal/config"
	"github.com/JonMunkholm/saleimport/internal/core"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/JonMunkholm/saleimport/internal/store"
	mw "github.com/JonMunkholm/saleimport/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Service is the business API the handlers call. *core.Service implements it.
type Service interface {
	Ping(ctx context.Context) error
	MaxFileSize() int64
	LimiterStatus() core.LimiterStatus
	ActiveImports() []core.ActiveImport

	RunImport(ctx context.Context, source string, reader importer.RowReader) (*importer.Result, error)
	PreviewImport(ctx context.Context, source string, reader importer.RowReader) (*importer.Preview, error)
	ImportHistory(ctx context.Context, limit int) ([]model.ImportRun, error)
	GetImportRun(ctx context.Context, id uuid.UUID) (model.ImportRun, error)

	ListCustomers(ctx context.Context, page store.Page) ([]model.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error)
	CreateCustomer(ctx context.Context, email, displayName string) (model.Customer, error)
	UpdateCustomer(ctx context.Context, id uuid.UUID, displayName string) (model.Customer, error)
	DeleteCustomer(ctx context.Context, id uuid.UUID) error

	ListProducts(ctx context.Context, page store.Page) ([]model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error)
	CreateProduct(ctx context.Context, in core.ProductInput) (model.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, in core.ProductInput) (model.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error

	ListSales(ctx context.Context, f store.SaleFilter) ([]model.Sale, error)
	GetSale(ctx context.Context, id uuid.UUID) (model.Sale, error)
	CreateSale(ctx context.Context, customerID uuid.UUID, items []store.SaleItem, date time.Time) (model.Sale, error)
	DeleteSale(ctx context.Context, id uuid.UUID) error
}

var _ Service = (*core.Service)(nil)

// Server is the HTTP server for the sales import API.
type Server struct {
	service Service
	cfg     *config.Config
	router  *chi.Mux
	server  *http.Server

	apiLimiter    *mw.RateLimiter
	importLimiter *mw.RateLimiter
}

// NewServer creates a Server with its middleware and routes.
func NewServer(service Service, cfg *config.Config) *Server {
	s := &Server{
		service: service,
		cfg:     cfg,
		router:  chi.NewRouter(),
	}
	if cfg.Rate.Enabled {
		s.apiLimiter = mw.NewRateLimiter(cfg.Rate.RequestsPerMinute)
		s.importLimiter = mw.NewRateLimiter(cfg.Rate.ImportLimit)
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(s.cfg.Security))
		if s.apiLimiter != nil {
			r.Use(s.apiLimiter.Middleware)
		}

		// Imports run under the import timeout, not the request timeout.
		r.Group(func(r chi.Router) {
			if s.importLimiter != nil {
				r.Use(s.importLimiter.Middleware)
			}
			r.Post("/imports/sales", s.handleImportSales)
			r.Post("/imports/sales/preview", s.handlePreviewImport)
		})

		r.Group(func(r chi.Router) {
			if s.cfg.Server.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
			}

			r.Get("/imports", s.handleListImports)
			r.Get("/imports/active", s.handleActiveImports)
			r.Get("/imports/{id}", s.handleGetImport)

			r.Get("/customers", s.handleListCustomers)
			r.Post("/customers", s.handleCreateCustomer)
			r.Get("/customers/{id}", s.handleGetCustomer)
			r.Put("/customers/{id}", s.handleUpdateCustomer)
			r.Delete("/customers/{id}", s.handleDeleteCustomer)

			r.Get("/products", s.handleListProducts)
			r.Post("/products", s.handleCreateProduct)
			r.Get("/products/{id}", s.handleGetProduct)
			r.Put("/products/{id}", s.handleUpdateProduct)
			r.Delete("/products/{id}", s.handleDeleteProduct)

			r.Get("/sales", s.handleListSales)
			r.Post("/sales", s.handleCreateSale)
			r.Get("/sales/{id}", s.handleGetSale)
			r.Delete("/sales/{id}", s.handleDeleteSale)
		})
	})
}

// Start begins listening for HTTP requests. It also runs the rate limiter
// cleanup until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	for _, rl := range []*mw.RateLimiter{s.apiLimiter, s.importLimiter} {
		if rl != nil {
			go rl.Cleanup(ctx)
		}
	}

	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// handleHealth reports whether the database is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		requestLogger(r).Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.LimiterStatus(),
	})
}
