package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/saleimport/internal/config"
	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/JonMunkholm/saleimport/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var errInjected = errors.New("injected failure")

// memRepo is an in-memory Repository. Methods a test does not need fall
// through to the nil embedded interface and panic.
type memRepo struct {
	Repository

	mu        sync.Mutex
	accounts  map[string]model.Account
	customers map[uuid.UUID]model.Customer
	products  map[string]model.Product
	sales     []importer.MaterializedSale
	runs      map[uuid.UUID]model.ImportRun

	failStartRun bool
	pruneCutoff  time.Time
	saleCalls    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		accounts:  make(map[string]model.Account),
		customers: make(map[uuid.UUID]model.Customer),
		products:  make(map[string]model.Product),
		runs:      make(map[uuid.UUID]model.ImportRun),
	}
}

func (m *memRepo) InsertAccount(_ context.Context, a model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.Email]; ok {
		return store.ErrDuplicate
	}
	m.accounts[a.Email] = a
	return nil
}

func (m *memRepo) FindCustomersByEmail(_ context.Context, emails []string) (map[string]importer.CustomerRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]importer.CustomerRef)
	for _, e := range emails {
		a, ok := m.accounts[e]
		if !ok {
			continue
		}
		ref := importer.CustomerRef{Email: e, AccountID: a.ID, DisplayName: a.DisplayName}
		for _, c := range m.customers {
			if c.AccountID == a.ID {
				ref.CustomerID = c.ID
			}
		}
		out[e] = ref
	}
	return out, nil
}

func (m *memRepo) FindProductsByName(_ context.Context, names []string) (map[string]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uuid.UUID)
	for _, n := range names {
		if p, ok := m.products[n]; ok {
			out[n] = p.ID
		}
	}
	return out, nil
}

func (m *memRepo) CommitReferences(_ context.Context, customers []model.Customer, products []model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range customers {
		m.customers[c.ID] = c
	}
	for _, p := range products {
		m.products[p.Name] = p
	}
	return nil
}

func (m *memRepo) CommitSales(_ context.Context, sales []importer.MaterializedSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales = append(m.sales, sales...)
	return nil
}

func (m *memRepo) InsertCustomer(_ context.Context, c model.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
	return nil
}

func (m *memRepo) UpdateCustomerName(_ context.Context, id uuid.UUID, name string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return model.Customer{}, store.ErrNotFound
	}
	c.DisplayName = name
	m.customers[id] = c
	return c, nil
}

func (m *memRepo) InsertProduct(_ context.Context, p model.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.Name]; ok {
		return store.ErrDuplicate
	}
	m.products[p.Name] = p
	return nil
}

func (m *memRepo) CreateSale(_ context.Context, customerID uuid.UUID, items []store.SaleItem, date time.Time) (model.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saleCalls++
	return model.Sale{ID: uuid.New(), CustomerID: customerID, Date: date}, nil
}

func (m *memRepo) StartImportRun(_ context.Context, id uuid.UUID, source string, startedAt time.Time) error {
	if m.failStartRun {
		return errInjected
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[id] = model.ImportRun{ID: id, Source: source, StartedAt: startedAt}
	return nil
}

func (m *memRepo) FinishImportRun(_ context.Context, run model.ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return store.ErrNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *memRepo) PruneImportRuns(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCutoff = cutoff
	var n int64
	for id, r := range m.runs {
		if r.StartedAt.Before(cutoff) {
			delete(m.runs, id)
			n++
		}
	}
	return n, nil
}

// readerFunc adapts a function to importer.RowReader.
type readerFunc func(ctx context.Context) ([]importer.RawRow, error)

func (f readerFunc) ReadRows(ctx context.Context) ([]importer.RawRow, error) { return f(ctx) }

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		Import: config.ImportConfig{
			MaxConcurrent:        1,
			MaxWaitTime:          50 * time.Millisecond,
			Timeout:              time.Minute,
			HistoryRetentionDays: 30,
		},
		Accounts: config.AccountsConfig{BcryptCost: bcrypt.MinCost, CredentialLength: 12},
	}
}

func newTestService(repo *memRepo) *Service {
	s := NewService(repo, testConfig())
	s.now = func() time.Time { return fixedNow }
	return s
}
