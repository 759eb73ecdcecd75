package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrNoRows is reported when the source holds a header but no data rows.
var ErrNoRows = errors.New("file contains no data rows")

// Options configures an Engine. The zero value is usable.
type Options struct {
	// DefaultStock seeds StockQuantity of products created by an import.
	DefaultStock int

	// NewCredential returns the initial secret for accounts created by an
	// import. Those accounts are flagged for a password reset.
	NewCredential func() (string, error)

	Now     func() time.Time
	Logger  *slog.Logger
	OnPhase func(Phase)
}

// Engine runs bulk imports against a Store.
type Engine struct {
	store    Store
	accounts AccountCreator
	opts     Options
}

// New creates an engine.
func New(store Store, accounts AccountCreator, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{store: store, accounts: accounts, opts: opts}
}

// run is the state of one import.
type run struct {
	result  *Result
	log     *slog.Logger
	phase   Phase
	phaseAt time.Time
}

// Run imports every row the reader yields. If runID is uuid.Nil a new id is
// assigned. Run never fails: every problem is recorded in the result.
func (e *Engine) Run(ctx context.Context, runID uuid.UUID, reader RowReader) *Result {
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	started := e.opts.Now()
	r := &run{
		result: &Result{RunID: runID, Errors: []RowError{}, StartedAt: started},
		log:    e.opts.Logger.With("import_id", runID),
	}
	defer func() {
		r.result.FinishedAt = e.opts.Now()
		e.enter(r, PhaseDone)
		r.log.Info("import finished",
			"rows", r.result.RowsProcessed,
			"sales", r.result.SalesCreated,
			"customers_created", r.result.CustomersCreated,
			"products_created", r.result.ProductsCreated,
			"errors", len(r.result.Errors),
			"duration", r.result.FinishedAt.Sub(started),
		)
	}()

	// Reading
	e.enter(r, PhaseReading)
	rows, err := reader.ReadRows(ctx)
	if err == nil && len(rows) == 0 {
		err = ErrNoRows
	}
	if err != nil {
		if e.cancelled(ctx, r) {
			return r.result
		}
		r.result.addError(&RowError{Kind: KindFatalRead, Message: fmt.Sprintf("read failed: %v", err)})
		return r.result
	}
	r.result.RowsProcessed = len(rows)

	// Validating
	e.enter(r, PhaseValidating)
	if e.cancelled(ctx, r) {
		return r.result
	}
	accepted, rejected := validateAll(rows)
	for _, rowErr := range rejected {
		r.result.addError(rowErr)
	}
	r.log.Debug("rows validated", "accepted", len(accepted), "rejected", len(rejected))

	// Resolving
	e.enter(r, PhaseResolving)
	if e.cancelled(ctx, r) {
		return r.result
	}
	resolver := &Resolver{
		Store:         e.store,
		Accounts:      e.accounts,
		DefaultStock:  e.opts.DefaultStock,
		NewCredential: e.opts.NewCredential,
		Now:           e.opts.Now,
	}
	res, err := resolver.Resolve(ctx, accepted)
	if err != nil {
		if e.cancelled(ctx, r) {
			return r.result
		}
		r.result.addError(&RowError{
			Kind:    KindReferenceCreationFailed,
			Message: fmt.Sprintf("resolving references failed: %v", err),
		})
		return r.result
	}
	r.result.CustomersCreated = res.CustomersCreated
	r.result.ProductsCreated = res.ProductsCreated

	// Materializing
	e.enter(r, PhaseMaterializing)
	if e.cancelled(ctx, r) {
		return r.result
	}
	m := &Materializer{RunID: runID, DefaultDate: started, Now: e.opts.Now}
	sales := make([]MaterializedSale, 0, len(accepted))
	for _, row := range accepted {
		if msg := res.Failure(row); msg != "" {
			r.result.addError(&RowError{Row: row.RowIndex, Kind: KindReferenceCreationFailed, Message: msg})
			continue
		}
		sale, line := m.Materialize(row,
			res.Customers[normalizedEmail(row)],
			res.Products[normalizedProduct(row)],
		)
		sales = append(sales, MaterializedSale{Sale: sale, Line: line})
	}

	// Persisting
	e.enter(r, PhasePersisting)
	if e.cancelled(ctx, r) {
		return r.result
	}
	p := &Persister{Store: e.store}
	n, err := p.Persist(ctx, sales)
	if err != nil {
		if e.cancelled(ctx, r) {
			return r.result
		}
		r.result.addError(&RowError{
			Kind:    KindPersistenceFailed,
			Message: fmt.Sprintf("saving sales failed, no sales were imported: %v", err),
		})
		return r.result
	}
	r.result.SalesCreated = n
	return r.result
}

// enter moves the run to phase p, logging how long the previous phase took.
func (e *Engine) enter(r *run, p Phase) {
	now := e.opts.Now()
	if r.phase != "" {
		r.log.Debug("import phase complete", "phase", r.phase, "duration", now.Sub(r.phaseAt))
	}
	r.phase = p
	r.phaseAt = now
	r.log.Info("import phase", "phase", p)
	if e.opts.OnPhase != nil {
		e.opts.OnPhase(p)
	}
}

// cancelled records one aggregate error for the current phase if ctx is done.
func (e *Engine) cancelled(ctx context.Context, r *run) bool {
	err := ctx.Err()
	if err == nil {
		return false
	}
	r.log.Warn("import cancelled", "phase", r.phase, "error", err)
	r.result.addError(&RowError{
		Kind:    KindCancelled,
		Message: fmt.Sprintf("import cancelled during %s: %v", r.phase, err),
	})
	return true
}
