package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/JonMunkholm/saleimport/internal/importer"
	"github.com/JonMunkholm/saleimport/internal/logging"
	"github.com/JonMunkholm/saleimport/internal/model"
	"github.com/google/uuid"
)

// finishTimeout bounds the history write after a run, which happens even if
// the request context is gone.
const finishTimeout = 10 * time.Second

// ActiveImport describes a run in progress.
type ActiveImport struct {
	ID        uuid.UUID      `json:"id"`
	Source    string         `json:"source"`
	Phase     importer.Phase `json:"phase"`
	StartedAt time.Time      `json:"startedAt"`
}

// RunImport imports the rows of one source file. source names the file in the
// import history.
//
// The returned error is only set when the run could not start: no import
// slot came free or the history record could not be written. Everything
// that goes wrong once the engine runs is reported in the result.
func (s *Service) RunImport(ctx context.Context, source string, reader importer.RowReader) (*importer.Result, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	runID := uuid.New()
	started := s.now()
	if err := s.repo.StartImportRun(ctx, runID, source, started); err != nil {
		return nil, fmt.Errorf("record import run: %w", err)
	}

	log := logging.WithFields(ctx, "source", source, "client_ip", ClientIPFromContext(ctx))
	log.Info("import started", "import_id", runID, "user_agent", UserAgentFromContext(ctx))

	s.track(runID, source, started)
	defer s.untrack(runID)

	engine := importer.New(s.repo, s.accounts, importer.Options{
		DefaultStock:  s.cfg.DefaultStock,
		NewCredential: s.accounts.NewCredential,
		Now:           s.now,
		Logger:        log,
		OnPhase:       func(p importer.Phase) { s.setPhase(runID, p) },
	})
	result := engine.Run(ctx, runID, reader)

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	run := model.ImportRun{
		ID:               result.RunID,
		Source:           source,
		StartedAt:        started,
		FinishedAt:       result.FinishedAt,
		RowsProcessed:    result.RowsProcessed,
		SalesCreated:     result.SalesCreated,
		CustomersCreated: result.CustomersCreated,
		ProductsCreated:  result.ProductsCreated,
		Errors:           result.Messages(),
	}
	if err := s.repo.FinishImportRun(finishCtx, run); err != nil {
		log.Error("failed to record import result", "import_id", runID, "error", err)
	}

	return result, nil
}

// PreviewImport reports what RunImport would do with reader without writing
// anything. It does not take an import slot.
func (s *Service) PreviewImport(ctx context.Context, source string, reader importer.RowReader) (*importer.Preview, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	engine := importer.New(s.repo, s.accounts, importer.Options{
		Now:    s.now,
		Logger: logging.WithFields(ctx, "source", source, "client_ip", ClientIPFromContext(ctx)),
	})
	return engine.Preview(ctx, reader)
}

// ImportHistory returns the most recent runs first.
func (s *Service) ImportHistory(ctx context.Context, limit int) ([]model.ImportRun, error) {
	return s.repo.ListImportRuns(ctx, limit)
}

// GetImportRun returns one recorded run.
func (s *Service) GetImportRun(ctx context.Context, id uuid.UUID) (model.ImportRun, error) {
	return s.repo.GetImportRun(ctx, id)
}

// ActiveImports returns the runs in progress, oldest first.
func (s *Service) ActiveImports() []ActiveImport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ActiveImport, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (s *Service) track(id uuid.UUID, source string, started time.Time) {
	s.mu.Lock()
	s.active[id] = &ActiveImport{ID: id, Source: source, StartedAt: started}
	s.mu.Unlock()
}

func (s *Service) untrack(id uuid.UUID) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *Service) setPhase(id uuid.UUID, p importer.Phase) {
	s.mu.Lock()
	if a, ok := s.active[id]; ok {
		a.Phase = p
	}
	s.mu.Unlock()
}
