package web

import (
	"context"
	"time"

	"github.com/JonMunkholm/saleimport/internal/config"
	"github.com/JonMunkholm/saleimport/internal/core"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/JonMunkholm/saleimport/internal/store"
	"github.com/google/uuid"
)

// stubService records calls and returns canned values. err, when set, is
// returned by every method that can fail.
type stubService struct {
	err     error
	pingErr error
	maxSize int64

	result   *importer.Result
	rows     []importer.RawRow
	source   string
	clientIP string

	customer model.Customer
	product  model.Product
	sale     model.Sale
	run      model.ImportRun

	gotPage     store.Page
	gotFilter   store.SaleFilter
	gotID       uuid.UUID
	gotEmail    string
	gotName     string
	gotProduct  core.ProductInput
	gotItems    []store.SaleItem
	gotDate     time.Time
	gotLimit    int
	deleteCalls int
}

func (s *stubService) Ping(context.Context) error { return s.pingErr }
func (s *stubService) MaxFileSize() int64         { return s.maxSize }
func (s *stubService) LimiterStatus() core.LimiterStatus {
	return core.LimiterStatus{MaxConcurrent: 1, Available: 1}
}
func (s *stubService) ActiveImports() []core.ActiveImport {
	return []core.ActiveImport{{ID: s.run.ID, Source: "live.csv", Phase: importer.PhaseResolving}}
}

func (s *stubService) RunImport(ctx context.Context, source string, reader importer.RowReader) (*importer.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.source = source
	s.clientIP = core.ClientIPFromContext(ctx)
	rows, err := reader.ReadRows(ctx)
	if err != nil {
		return nil, err
	}
	s.rows = rows
	if s.result != nil {
		return s.result, nil
	}
	return &importer.Result{RowsProcessed: len(rows), SalesCreated: len(rows), Errors: []importer.RowError{}}, nil
}

func (s *stubService) PreviewImport(ctx context.Context, source string, reader importer.RowReader) (*importer.Preview, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.source = source
	rows, err := reader.ReadRows(ctx)
	if err != nil {
		return nil, err
	}
	s.rows = rows
	return &importer.Preview{TotalRows: len(rows), AcceptedRows: len(rows), NewProducts: 1}, nil
}

func (s *stubService) ImportHistory(_ context.Context, limit int) ([]model.ImportRun, error) {
	s.gotLimit = limit
	return []model.ImportRun{s.run}, s.err
}

func (s *stubService) GetImportRun(_ context.Context, id uuid.UUID) (model.ImportRun, error) {
	s.gotID = id
	return s.run, s.err
}

func (s *stubService) ListCustomers(_ context.Context, page store.Page) ([]model.Customer, error) {
	s.gotPage = page
	return []model.Customer{s.customer}, s.err
}

func (s *stubService) GetCustomer(_ context.Context, id uuid.UUID) (model.Customer, error) {
	s.gotID = id
	return s.customer, s.err
}

func (s *stubService) CreateCustomer(_ context.Context, email, name string) (model.Customer, error) {
	s.gotEmail, s.gotName = email, name
	return s.customer, s.err
}

func (s *stubService) UpdateCustomer(_ context.Context, id uuid.UUID, name string) (model.Customer, error) {
	s.gotID, s.gotName = id, name
	return s.customer, s.err
}

func (s *stubService) DeleteCustomer(_ context.Context, id uuid.UUID) error {
	s.gotID = id
	s.deleteCalls++
	return s.err
}

func (s *stubService) ListProducts(_ context.Context, page store.Page) ([]model.Product, error) {
	s.gotPage = page
	return []model.Product{s.product}, s.err
}

func (s *stubService) GetProduct(_ context.Context, id uuid.UUID) (model.Product, error) {
	s.gotID = id
	return s.product, s.err
}

func (s *stubService) CreateProduct(_ context.Context, in core.ProductInput) (model.Product, error) {
	s.gotProduct = in
	return s.product, s.err
}

func (s *stubService) UpdateProduct(_ context.Context, id uuid.UUID, in core.ProductInput) (model.Product, error) {
	s.gotID, s.gotProduct = id, in
	return s.product, s.err
}

func (s *stubService) DeleteProduct(_ context.Context, id uuid.UUID) error {
	s.gotID = id
	s.deleteCalls++
	return s.err
}

func (s *stubService) ListSales(_ context.Context, f store.SaleFilter) ([]model.Sale, error) {
	s.gotFilter = f
	return []model.Sale{s.sale}, s.err
}

func (s *stubService) GetSale(_ context.Context, id uuid.UUID) (model.Sale, error) {
	s.gotID = id
	return s.sale, s.err
}

func (s *stubService) CreateSale(_ context.Context, customerID uuid.UUID, items []store.SaleItem, date time.Time) (model.Sale, error) {
	s.gotID, s.gotItems, s.gotDate = customerID, items, date
	return s.sale, s.err
}

func (s *stubService) DeleteSale(_ context.Context, id uuid.UUID) error {
	s.gotID = id
	s.deleteCalls++
	return s.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(svc *stubService) *Server {
	if svc.maxSize == 0 {
		svc.maxSize = 1 << 20
	}
	return NewServer(svc, testConfig())
}
