// Package scheduler fans the per-table runners out over a bounded worker
// pool, tracks live status for every table and gold materialization, and
// fires downstream materializations when their trigger table succeeds.
package scheduler

import (
	"context"
	"log"
	"sync"

	"github.com/jumadata/warehouse-worker/internal/batch"
	"github.com/jumadata/warehouse-worker/internal/config"
	"github.com/jumadata/warehouse-worker/internal/service"
	"github.com/jumadata/warehouse-worker/internal/warehouse"
)

// Status is the lifecycle of one table load or one gold materialization.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// TableRunner executes a single table end-to-end and never returns an error:
// failures arrive folded into the Result.
type TableRunner interface {
	Run(ctx context.Context, svc config.Service, plan []batch.DateRange) service.Result
}

// Materializer rebuilds one gold table from its view.
type Materializer interface {
	Materialize(ctx context.Context, viewName string) error
}

// RunRecorder persists run outcomes. Optional; a nil recorder disables
// history.
type RunRecorder interface {
	Start(ctx context.Context, table string) (string, error)
	Finish(ctx context.Context, runID string, success bool, message string) error
}

// Observer is notified after every status transition. Keep it cheap: it runs
// on worker goroutines.
type Observer func(kind, name string, status Status)

// Scheduler owns table and gold statuses. Statuses mutate only inside the
// scheduler; the presentation side reads them through Snapshot or an
// Observer.
type Scheduler struct {
	cfg      *config.Config
	services []config.Service
	triggers map[string]string
	runner   TableRunner
	mat      Materializer
	recorder RunRecorder
	observer Observer

	mu     sync.Mutex
	tables map[string]Status
	gold   map[string]Status

	// serializes trigger handling so no two materializations run at once
	matMu sync.Mutex
}

// New builds a scheduler over the given services and trigger map. recorder
// may be nil.
func New(cfg *config.Config, services []config.Service, triggers map[string]string, runner TableRunner, mat Materializer, recorder RunRecorder) *Scheduler {
	s := &Scheduler{
		cfg:      cfg,
		services: services,
		triggers: triggers,
		runner:   runner,
		mat:      mat,
		recorder: recorder,
		tables:   make(map[string]Status, len(services)),
		gold:     make(map[string]Status, len(triggers)),
	}
	for _, svc := range services {
		s.tables[svc.Table] = StatusPending
	}
	for _, view := range triggers {
		s.gold[warehouse.MaterializedTableName(view)] = StatusPending
	}
	return s
}

// SetObserver registers the status-change callback. Call before RunAll.
func (s *Scheduler) SetObserver(obs Observer) {
	s.observer = obs
}

// Snapshot returns copies of the current table and gold statuses.
func (s *Scheduler) Snapshot() (map[string]Status, map[string]Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := make(map[string]Status, len(s.tables))
	for k, v := range s.tables {
		tables[k] = v
	}
	gold := make(map[string]Status, len(s.gold))
	for k, v := range s.gold {
		gold[k] = v
	}
	return tables, gold
}

// RunAll loads every configured table across at most cfg.Workers concurrent
// workers and returns the terminal result per table. One table's failure
// never cancels the others.
func (s *Scheduler) RunAll(ctx context.Context) map[string]service.Result {
	jobs := make(chan config.Service)

	workers := s.cfg.Workers
	if workers > len(s.services) {
		workers = len(s.services)
	}
	if workers < 1 {
		workers = 1
	}

	log.Printf("Scheduling %d tables across %d workers", len(s.services), workers)

	var (
		wg      sync.WaitGroup
		resMu   sync.Mutex
		results = make(map[string]service.Result, len(s.services))
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for svc := range jobs {
				res := s.runTable(ctx, svc)
				resMu.Lock()
				results[svc.Table] = res
				resMu.Unlock()
			}
		}()
	}

	for _, svc := range s.services {
		jobs <- svc
	}
	close(jobs)
	wg.Wait()

	return results
}

// RunOne loads a single table (and fires its trigger, if any). Used by the
// single-table CLI mode.
func (s *Scheduler) RunOne(ctx context.Context, table string) (service.Result, bool) {
	for _, svc := range s.services {
		if svc.Table == table {
			return s.runTable(ctx, svc), true
		}
	}
	return service.Result{}, false
}

func (s *Scheduler) runTable(ctx context.Context, svc config.Service) service.Result {
	s.setTableStatus(svc.Table, StatusRunning)

	runID := s.recordStart(ctx, svc.Table)

	var plan []batch.DateRange
	if svc.Incremental() {
		plan = batch.Plan(svc.RangePolicy, s.cfg.HistoricalStart, s.cfg.HistoricalEnd, svc.BatchDays)
	}

	res := s.runner.Run(ctx, svc, plan)

	if res.Success {
		s.setTableStatus(svc.Table, StatusSuccess)
	} else {
		s.setTableStatus(svc.Table, StatusError)
	}
	s.recordFinish(ctx, runID, res)

	if res.Success {
		s.fireTrigger(ctx, svc.Table)
	}
	return res
}

// fireTrigger materializes the gold view mapped to table, if any. Runs
// synchronously on the completing worker's goroutine; matMu serializes it
// against trigger handling from other workers.
func (s *Scheduler) fireTrigger(ctx context.Context, table string) {
	view, ok := s.triggers[table]
	if !ok {
		return
	}

	s.matMu.Lock()
	defer s.matMu.Unlock()

	target := warehouse.MaterializedTableName(view)
	s.setGoldStatus(target, StatusRunning)

	if err := s.mat.Materialize(ctx, view); err != nil {
		log.Printf("Materialization of %s failed: %v", target, err)
		s.setGoldStatus(target, StatusError)
		return
	}
	s.setGoldStatus(target, StatusSuccess)
}

func (s *Scheduler) setTableStatus(name string, status Status) {
	s.mu.Lock()
	s.tables[name] = status
	s.mu.Unlock()

	if s.observer != nil {
		s.observer("table", name, status)
	}
}

func (s *Scheduler) setGoldStatus(name string, status Status) {
	s.mu.Lock()
	s.gold[name] = status
	s.mu.Unlock()

	if s.observer != nil {
		s.observer("gold", name, status)
	}
}

func (s *Scheduler) recordStart(ctx context.Context, table string) string {
	if s.recorder == nil {
		return ""
	}
	runID, err := s.recorder.Start(ctx, table)
	if err != nil {
		log.Printf("Warning: failed to record run start for %s: %v", table, err)
		return ""
	}
	return runID
}

func (s *Scheduler) recordFinish(ctx context.Context, runID string, res service.Result) {
	if s.recorder == nil || runID == "" {
		return
	}
	if err := s.recorder.Finish(ctx, runID, res.Success, res.Message); err != nil {
		log.Printf("Warning: failed to record run finish for %s: %v", res.Table, err)
	}
}
