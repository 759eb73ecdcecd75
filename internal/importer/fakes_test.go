package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store with failure injection.
type memStore struct {
	mu sync.Mutex

	accounts  map[string]model.Account  // by email
	customers map[string]model.Customer // by email
	products  map[string]model.Product  // by name
	sales     []model.Sale
	lines     []model.SaleLineItem

	findCustomerCalls int
	findProductCalls  int
	referenceCommits  int
	saleCommits       int

	failFindCustomers error
	failReferences    error
	failSales         error
}

func newMemStore() *memStore {
	return &memStore{
		accounts:  make(map[string]model.Account),
		customers: make(map[string]model.Customer),
		products:  make(map[string]model.Product),
	}
}

func (s *memStore) addCustomer(email, name string) model.Customer {
	acct := s.addAccount(email, name)
	c := model.Customer{ID: uuid.New(), AccountID: acct.ID, Email: email, DisplayName: name}
	s.customers[email] = c
	return c
}

func (s *memStore) addAccount(email, name string) model.Account {
	a := model.Account{ID: uuid.New(), Email: email, DisplayName: name}
	s.accounts[email] = a
	return a
}

func (s *memStore) addProduct(name, price string, stock int) model.Product {
	p := model.Product{ID: uuid.New(), Name: name, UnitPrice: decimal.RequireFromString(price), StockQuantity: stock}
	s.products[name] = p
	return p
}

func (s *memStore) FindCustomersByEmail(_ context.Context, emails []string) (map[string]CustomerRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCustomerCalls++
	if s.failFindCustomers != nil {
		return nil, s.failFindCustomers
	}
	out := make(map[string]CustomerRef)
	for _, email := range emails {
		acct, ok := s.accounts[email]
		if !ok {
			continue
		}
		ref := CustomerRef{Email: email, AccountID: acct.ID, DisplayName: acct.DisplayName}
		if c, ok := s.customers[email]; ok {
			ref.CustomerID = c.ID
		}
		out[email] = ref
	}
	return out, nil
}

func (s *memStore) FindProductsByName(_ context.Context, names []string) (map[string]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findProductCalls++
	out := make(map[string]uuid.UUID)
	for _, name := range names {
		if p, ok := s.products[name]; ok {
			out[name] = p.ID
		}
	}
	return out, nil
}

func (s *memStore) CommitReferences(_ context.Context, customers []model.Customer, products []model.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.referenceCommits++
	if s.failReferences != nil {
		return s.failReferences
	}
	for _, c := range customers {
		if _, dup := s.customers[c.Email]; dup {
			return fmt.Errorf("duplicate customer %s", c.Email)
		}
	}
	for _, p := range products {
		if _, dup := s.products[p.Name]; dup {
			return fmt.Errorf("duplicate product %s", p.Name)
		}
	}
	for _, c := range customers {
		s.customers[c.Email] = c
	}
	for _, p := range products {
		s.products[p.Name] = p
	}
	return nil
}

func (s *memStore) CommitSales(_ context.Context, sales []MaterializedSale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saleCommits++
	if s.failSales != nil {
		return s.failSales
	}
	for _, ms := range sales {
		s.sales = append(s.sales, ms.Sale)
		s.lines = append(s.lines, ms.Line)
	}
	return nil
}

func (s *memStore) customerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.customers)
}

func (s *memStore) productCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.products)
}

// fakeAccounts creates accounts in a memStore.
type fakeAccounts struct {
	store *memStore
	fail  map[string]error
	calls []string
	creds []string
}

func (f *fakeAccounts) CreateAccount(_ context.Context, email, displayName, credential string) (uuid.UUID, error) {
	f.calls = append(f.calls, email)
	f.creds = append(f.creds, credential)
	if err := f.fail[email]; err != nil {
		return uuid.Nil, err
	}
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if _, dup := f.store.accounts[email]; dup {
		return uuid.Nil, errors.New("account exists")
	}
	a := model.Account{ID: uuid.New(), Email: email, DisplayName: displayName, MustResetPassword: true}
	f.store.accounts[email] = a
	return a.ID, nil
}

// failingReader returns a fixed error.
type failingReader struct{ err error }

func (r failingReader) ReadRows(context.Context) ([]RawRow, error) {
	return nil, r.err
}

var fixedNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func newTestEngine(store *memStore, accts *fakeAccounts) *Engine {
	n := 0
	return New(store, accts, Options{
		DefaultStock: 0,
		NewCredential: func() (string, error) {
			n++
			return fmt.Sprintf("cred-%d", n), nil
		},
		Now: func() time.Time { return fixedNow },
	})
}

func row(idx int, email, name, product string, qty int, price string) RawRow {
	return RawRow{
		RowIndex:      idx,
		CustomerEmail: email,
		CustomerName:  name,
		ProductName:   product,
		Quantity:      qty,
		UnitPrice:     decimal.RequireFromString(price),
		SaleDate:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}
