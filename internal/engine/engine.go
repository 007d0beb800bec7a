// Package engine implements the memory prioritization and consolidation
// engine: priority scoring, retention estimation, temporal clustering,
// fuzzy deduplication, and the orchestrated consolidation pass.
package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/softfault/recall/internal/config"
	"github.com/softfault/recall/internal/store"
)

// Engine orchestrates scoring, clustering, archival, and deduplication
// over the record store.
type Engine struct {
	DB  *store.DB
	Cfg config.ConsolidationConfig
	Log *slog.Logger

	// consolidations must never interleave: an archival pass racing a
	// similarity scan over the same rows would corrupt merge bookkeeping.
	runMu  sync.Mutex
	stopCh chan struct{}
}

// New creates a new Engine.
func New(db *store.DB, cfg config.ConsolidationConfig, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		DB:     db,
		Cfg:    cfg,
		Log:    log,
		stopCh: make(chan struct{}),
	}
}

// StartConsolidationTimer runs a consolidation on startup and then on the
// configured interval. An interval of zero disables the timer.
func (e *Engine) StartConsolidationTimer() {
	interval := time.Duration(e.Cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		return
	}

	run := func() {
		report, err := e.Consolidate(Options{})
		if err != nil {
			e.Log.Error("scheduled consolidation failed",
				slog.String("failed_at", report.FailedAtStep),
				slog.Any("error", err))
			return
		}
		e.Log.Info("scheduled consolidation complete",
			slog.String("run_id", report.RunID),
			slog.Int("archived", report.ConversationsArchived),
			slog.Int("merged", report.ItemsMerged))
	}

	run()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				run()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the engine's background goroutines.
func (e *Engine) Stop() {
	close(e.stopCh)
}
