package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jumadata/warehouse-worker/internal/batch"
	"github.com/jumadata/warehouse-worker/internal/config"
	"github.com/jumadata/warehouse-worker/internal/logging"
)

// Result is the structured outcome a runner hands back to the scheduler. No
// error ever crosses the runner boundary; failures are folded into Success
// and Message.
type Result struct {
	Table   string
	Success bool
	Message string
}

// TokenSource yields a valid bearer token for the source API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Extractor pulls all pages of a service, optionally filtered to a date
// window. May return partial records together with an error.
type Extractor interface {
	Extract(ctx context.Context, token, apiName, filterField string, window *batch.DateRange) ([]map[string]any, error)
}

// Warehouse is the loader side of the target warehouse.
type Warehouse interface {
	DeleteRange(ctx context.Context, table, filterField string, start, end time.Time) error
	LoadBatch(ctx context.Context, table string, records []map[string]any, mode config.LoadMode) error
}

// Runner executes one table's full load cycle: either a single full-replace
// load, or a historical backfill over a batch plan followed by a trailing
// recent-window refresh.
type Runner struct {
	tokens      TokenSource
	extractor   Extractor
	warehouse   Warehouse
	refreshDays int

	now    func() time.Time
	logFor func(name string) *log.Logger
}

func NewRunner(tokens TokenSource, extractor Extractor, warehouse Warehouse, refreshDays int) *Runner {
	return &Runner{
		tokens:      tokens,
		extractor:   extractor,
		warehouse:   warehouse,
		refreshDays: refreshDays,
		now:         time.Now,
		logFor:      logging.ForService,
	}
}

// Run executes the load for one service. plan is the historical batch plan
// and is ignored for non-incremental services. Panics are recovered at this
// boundary and reported as a failed Result.
func (r *Runner) Run(ctx context.Context, svc config.Service, plan []batch.DateRange) (result Result) {
	logger := r.logFor(svc.Table)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Printf("PANIC during run: %v", rec)
			result = Result{Table: svc.Table, Success: false, Message: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	logger.Printf("==== Starting load for %s (API: %s) ====", svc.Table, svc.APIName)

	if !svc.Incremental() {
		return r.runFullLoad(ctx, svc, logger)
	}
	return r.runIncremental(ctx, svc, plan, logger)
}

// runFullLoad replaces the whole table from an unfiltered extraction. Unlike
// the per-range backfill, a partial extraction aborts here: truncating the
// table with an incomplete record set would lose data.
func (r *Runner) runFullLoad(ctx context.Context, svc config.Service, logger *log.Logger) Result {
	logger.Printf("Mode: full load (%s)", svc.LoadMode)

	token, err := r.tokens.Token(ctx)
	if err != nil {
		logger.Printf("Auth failed: %v", err)
		return Result{Table: svc.Table, Success: false, Message: fmt.Sprintf("auth failed: %v", err)}
	}

	records, err := r.extractor.Extract(ctx, token, svc.APIName, "", nil)
	if err != nil {
		logger.Printf("Extraction failed: %v (gathered %d records, discarding)", err, len(records))
		return Result{Table: svc.Table, Success: false, Message: fmt.Sprintf("extraction failed: %v", err)}
	}
	if len(records) == 0 {
		logger.Printf("Service returned 0 records, nothing loaded")
		return Result{Table: svc.Table, Success: true, Message: "no records"}
	}

	if err := r.warehouse.LoadBatch(ctx, svc.Table, records, svc.LoadMode); err != nil {
		logger.Printf("Load failed: %v", err)
		return Result{Table: svc.Table, Success: false, Message: fmt.Sprintf("load failed: %v", err)}
	}

	logger.Printf("Full load completed: %d records", len(records))
	return Result{Table: svc.Table, Success: true, Message: fmt.Sprintf("loaded %d records", len(records))}
}

func (r *Runner) runIncremental(ctx context.Context, svc config.Service, plan []batch.DateRange, logger *log.Logger) Result {
	logger.Printf("--- Phase: historical backfill (%d ranges) ---", len(plan))
	failed := 0
	for _, window := range plan {
		if err := r.processRange(ctx, svc, window, logger); err != nil {
			logger.Printf("Range %s..%s failed: %v",
				window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"), err)
			failed++
		}
	}

	logger.Printf("--- Phase: recent refresh ---")
	refreshErr := r.runRecentRefresh(ctx, svc, logger)
	if refreshErr != nil {
		logger.Printf("Recent refresh failed: %v", refreshErr)
	}

	logger.Printf("==== Load for %s finished (%d/%d ranges failed) ====", svc.Table, failed, len(plan))

	var notes []string
	if failed > 0 {
		notes = append(notes, fmt.Sprintf("%d/%d ranges failed", failed, len(plan)))
	}
	if refreshErr != nil {
		notes = append(notes, fmt.Sprintf("refresh failed: %v", refreshErr))
	}
	if len(notes) == 0 {
		return Result{Table: svc.Table, Success: true, Message: "completed"}
	}
	// Skipped ranges are tolerated: the next run's backfill re-covers them
	// idempotently. The run itself still counts as finished.
	return Result{Table: svc.Table, Success: true, Message: "completed with errors: " + strings.Join(notes, "; ")}
}

// processRange runs one backfill window: extract first, then, only when
// records came back, delete the exact range and append the batch. The delete
// must succeed before the load; appending after a failed delete would
// duplicate rows on re-runs.
func (r *Runner) processRange(ctx context.Context, svc config.Service, window batch.DateRange, logger *log.Logger) error {
	logger.Printf("Processing range %s..%s",
		window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))

	token, err := r.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("auth failed: %w", err)
	}

	records, xerr := r.extractor.Extract(ctx, token, svc.APIName, svc.FilterField, &window)
	if len(records) == 0 {
		if xerr != nil {
			return fmt.Errorf("extraction failed: %w", xerr)
		}
		logger.Printf("No records for range, proceeding")
		return nil
	}
	if xerr != nil {
		logger.Printf("Partial extraction (%d records): %v", len(records), xerr)
	}

	if err := r.warehouse.DeleteRange(ctx, svc.Table, svc.FilterField, window.Start, window.End); err != nil {
		return fmt.Errorf("delete failed, skipping load: %w", err)
	}
	if err := r.warehouse.LoadBatch(ctx, svc.Table, records, config.LoadAppend); err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	if xerr != nil {
		return fmt.Errorf("loaded partial batch: %w", xerr)
	}
	return nil
}

// runRecentRefresh recomputes the trailing window of the last N days ending
// today: today-N through today inclusive, one delete and one extract+append
// over the whole window. Catches late-arriving or updated source rows without
// touching full history.
func (r *Runner) runRecentRefresh(ctx context.Context, svc config.Service, logger *log.Logger) error {
	if r.refreshDays <= 0 {
		logger.Printf("Recent refresh disabled")
		return nil
	}

	now := r.now()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	window := batch.DateRange{Start: end.AddDate(0, 0, -r.refreshDays), End: end}

	logger.Printf("Refresh window: %s..%s",
		window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"))

	return r.processRange(ctx, svc, window, logger)
}
