package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Resolution maps every reference of a batch to a stored id.
//
// Keys are normalized: emails trimmed and lower-cased, product names trimmed.
// A key present in CustomerFailures or ProductFailures has no id; rows that
// reference it must be dropped.
type Resolution struct {
	Customers        map[string]uuid.UUID
	Products         map[string]uuid.UUID
	CustomersCreated int
	ProductsCreated  int

	CustomerFailures map[string]string
	ProductFailures  map[string]string
}

// Failure returns the reason a row cannot be materialized, or "" when both
// of its references resolved. The customer is reported first.
func (r *Resolution) Failure(row RawRow) string {
	email := model.NormalizeEmail(row.CustomerEmail)
	if msg, ok := r.CustomerFailures[email]; ok {
		return msg
	}
	name := model.NormalizeProductName(row.ProductName)
	if msg, ok := r.ProductFailures[name]; ok {
		return msg
	}
	return ""
}

// Resolver looks up or creates the customers and products a batch refers to.
type Resolver struct {
	Store         Store
	Accounts      AccountCreator
	DefaultStock  int
	NewCredential func() (string, error)
	Now           func() time.Time
}

// customerKey is an email seen in the batch with the first non-empty name
// given for it.
type customerKey struct {
	email string
	name  string
}

// productKey is a product name with the price of the first row naming it.
type productKey struct {
	name  string
	price decimal.Decimal
}

// Resolve resolves the references of the accepted rows with two bulk reads
// and at most one write of new profiles and products.
//
// A returned error means the batch could not be resolved at all (lookup
// failure or cancellation). Failures that affect only some keys are reported
// through the Resolution.
func (r *Resolver) Resolve(ctx context.Context, rows []RawRow) (*Resolution, error) {
	res := &Resolution{
		Customers:        make(map[string]uuid.UUID),
		Products:         make(map[string]uuid.UUID),
		CustomerFailures: make(map[string]string),
		ProductFailures:  make(map[string]string),
	}

	customers, products := collectKeys(rows)
	if len(customers) == 0 && len(products) == 0 {
		return res, nil
	}

	existingCustomers, existingProducts, err := r.fetch(ctx, customers, products)
	if err != nil {
		return nil, err
	}

	now := r.now()
	var newCustomers []model.Customer
	for _, key := range customers {
		ref, found := existingCustomers[key.email]
		if found && ref.HasProfile() {
			res.Customers[key.email] = ref.CustomerID
			continue
		}

		accountID := ref.AccountID
		displayName := ref.DisplayName
		if !found {
			displayName = displayNameFor(key)
			accountID, err = r.createAccount(ctx, key.email, displayName)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				res.CustomerFailures[key.email] = fmt.Sprintf("customer %s could not be created: %v", key.email, err)
				continue
			}
		}
		if displayName == "" {
			displayName = displayNameFor(key)
		}

		newCustomers = append(newCustomers, model.Customer{
			ID:          uuid.New(),
			AccountID:   accountID,
			Email:       key.email,
			DisplayName: displayName,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	var newProducts []model.Product
	for _, key := range products {
		if id, found := existingProducts[key.name]; found {
			res.Products[key.name] = id
			continue
		}
		newProducts = append(newProducts, model.Product{
			ID:            uuid.New(),
			Name:          key.name,
			UnitPrice:     key.price,
			StockQuantity: r.DefaultStock,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if len(newCustomers) == 0 && len(newProducts) == 0 {
		return res, nil
	}

	if err := r.Store.CommitReferences(ctx, newCustomers, newProducts); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		for _, c := range newCustomers {
			res.CustomerFailures[c.Email] = fmt.Sprintf("customer %s could not be saved: %v", c.Email, err)
		}
		for _, p := range newProducts {
			res.ProductFailures[p.Name] = fmt.Sprintf("product %q could not be saved: %v", p.Name, err)
		}
		return res, nil
	}

	for _, c := range newCustomers {
		res.Customers[c.Email] = c.ID
	}
	for _, p := range newProducts {
		res.Products[p.Name] = p.ID
	}
	res.CustomersCreated = len(newCustomers)
	res.ProductsCreated = len(newProducts)
	return res, nil
}

// fetch runs the customer and product lookups concurrently.
func (r *Resolver) fetch(ctx context.Context, customers []customerKey, products []productKey) (map[string]CustomerRef, map[string]uuid.UUID, error) {
	emails := make([]string, len(customers))
	for i, c := range customers {
		emails[i] = c.email
	}
	names := make([]string, len(products))
	for i, p := range products {
		names[i] = p.name
	}

	var (
		foundCustomers map[string]CustomerRef
		foundProducts  map[string]uuid.UUID
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		foundCustomers, err = r.Store.FindCustomersByEmail(gctx, emails)
		if err != nil {
			return fmt.Errorf("look up customers: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		foundProducts, err = r.Store.FindProductsByName(gctx, names)
		if err != nil {
			return fmt.Errorf("look up products: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		return nil, nil, err
	}
	return foundCustomers, foundProducts, nil
}

func (r *Resolver) createAccount(ctx context.Context, email, displayName string) (uuid.UUID, error) {
	if r.Accounts == nil {
		return uuid.Nil, errors.New("no account service configured")
	}
	credential := ""
	if r.NewCredential != nil {
		var err error
		if credential, err = r.NewCredential(); err != nil {
			return uuid.Nil, fmt.Errorf("generate credential: %w", err)
		}
	}
	return r.Accounts.CreateAccount(ctx, email, displayName, credential)
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// collectKeys returns the distinct customer and product keys in order of
// first appearance.
func collectKeys(rows []RawRow) ([]customerKey, []productKey) {
	var (
		customers   []customerKey
		products    []productKey
		customerIdx = make(map[string]int)
		productIdx  = make(map[string]bool)
	)
	for _, row := range rows {
		email := model.NormalizeEmail(row.CustomerEmail)
		name := strings.TrimSpace(row.CustomerName)
		if i, seen := customerIdx[email]; seen {
			if customers[i].name == "" {
				customers[i].name = name
			}
		} else {
			customerIdx[email] = len(customers)
			customers = append(customers, customerKey{email: email, name: name})
		}

		product := model.NormalizeProductName(row.ProductName)
		if !productIdx[product] {
			productIdx[product] = true
			products = append(products, productKey{name: product, price: row.UnitPrice})
		}
	}
	return customers, products
}

// displayNameFor falls back to the local part of the email when no row
// carried a name.
func displayNameFor(key customerKey) string {
	if key.name != "" {
		return key.name
	}
	local, _, _ := strings.Cut(key.email, "@")
	return local
}

func normalizedEmail(row RawRow) string {
	return model.NormalizeEmail(row.CustomerEmail)
}

func normalizedProduct(row RawRow) string {
	return model.NormalizeProductName(row.ProductName)
}
