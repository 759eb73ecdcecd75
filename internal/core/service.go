package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/saleimport/internal/accounts"
	"github.com/JonMunkholm/saleimport/internal/config"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/JonMunkholm/saleimport/internal/store"
	"github.com/google/uuid"
)

var (
	// ErrInvalidInput is returned when a request field is missing or out of range.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFileTooLarge is returned when an import file exceeds Import.MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")

	// ErrNoFile is returned when an import request carries no file.
	ErrNoFile = errors.New("no file provided")

	// ErrInsufficientStock is returned by CreateSale when a product runs out.
	ErrInsufficientStock = store.ErrInsufficientStock
)

// Repository is the persistence the service needs. *store.Store implements it.
type Repository interface {
	importer.Store
	accounts.Repository

	Ping(ctx context.Context) error

	ListCustomers(ctx context.Context, page store.Page) ([]model.Customer, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error)
	InsertCustomer(ctx context.Context, c model.Customer) error
	UpdateCustomerName(ctx context.Context, id uuid.UUID, displayName string) (model.Customer, error)
	DeleteCustomer(ctx context.Context, id uuid.UUID) error

	ListProducts(ctx context.Context, page store.Page) ([]model.Product, error)
	GetProduct(ctx context.Context, id uuid.UUID) (model.Product, error)
	InsertProduct(ctx context.Context, p model.Product) error
	UpdateProduct(ctx context.Context, p model.Product) (model.Product, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error

	ListSales(ctx context.Context, f store.SaleFilter) ([]model.Sale, error)
	GetSale(ctx context.Context, id uuid.UUID) (model.Sale, error)
	DeleteSale(ctx context.Context, id uuid.UUID) error
	CreateSale(ctx context.Context, customerID uuid.UUID, items []store.SaleItem, date time.Time) (model.Sale, error)

	StartImportRun(ctx context.Context, id uuid.UUID, source string, startedAt time.Time) error
	FinishImportRun(ctx context.Context, run model.ImportRun) error
	ListImportRuns(ctx context.Context, limit int) ([]model.ImportRun, error)
	GetImportRun(ctx context.Context, id uuid.UUID) (model.ImportRun, error)
	PruneImportRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

var _ Repository = (*store.Store)(nil)

// Service provides the business operations behind the HTTP API.
type Service struct {
	repo     Repository
	accounts *accounts.Service
	limiter  *ImportLimiter
	cfg      config.ImportConfig
	now      func() time.Time

	mu     sync.RWMutex
	active map[uuid.UUID]*ActiveImport
}

// NewService creates a Service.
func NewService(repo Repository, cfg *config.Config) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts.New(repo, cfg.Accounts),
		limiter:  NewImportLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		cfg:      cfg.Import,
		now:      time.Now,
		active:   make(map[uuid.UUID]*ActiveImport),
	}
}

// Ping checks the database connection.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// MaxFileSize returns the largest accepted import file in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
