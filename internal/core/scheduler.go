package core

// scheduler.go runs import history maintenance in the background.
//
// Import runs older than Import.HistoryRetentionDays are deleted. Sales from
// a pruned run stay and lose their run reference. The job runs once on start
// and then every Import.PruneInterval until the context is cancelled. A
// failed pass is logged and retried on the next tick.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPruneInterval is used when Import.PruneInterval is not set.
const DefaultPruneInterval = 24 * time.Hour

// StartPruneScheduler blocks, pruning old import runs periodically, until ctx
// is cancelled. It returns immediately when retention is disabled.
func (s *Service) StartPruneScheduler(ctx context.Context) {
	if s.cfg.HistoryRetentionDays <= 0 {
		slog.Info("import history pruning disabled")
		return
	}
	interval := s.cfg.PruneInterval
	if interval <= 0 {
		interval = DefaultPruneInterval
	}

	slog.Info("prune scheduler started",
		"retention_days", s.cfg.HistoryRetentionDays,
		"interval", interval,
	)

	// Run immediately on startup
	s.runPruneJob(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("prune scheduler stopped")
			return
		case <-ticker.C:
			s.runPruneJob(ctx)
		}
	}
}

// runPruneJob performs one prune pass and returns the number of runs removed.
func (s *Service) runPruneJob(ctx context.Context) int64 {
	start := time.Now()
	cutoff := s.now().AddDate(0, 0, -s.cfg.HistoryRetentionDays)

	pruned, err := s.repo.PruneImportRuns(ctx, cutoff)
	if err != nil {
		slog.Error("prune import runs failed", "error", err)
		return 0
	}

	slog.Info("pruned import runs",
		"runs_pruned", pruned,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pruned
}
