package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jumadata/warehouse-worker/internal/batch"
	"github.com/jumadata/warehouse-worker/internal/config"
	"github.com/jumadata/warehouse-worker/internal/service"
)

type fakeRunner struct {
	runFunc func(svc config.Service, plan []batch.DateRange) service.Result

	mu      sync.Mutex
	running int
	maxSeen int
	plans   map[string][]batch.DateRange
}

func (f *fakeRunner) Run(ctx context.Context, svc config.Service, plan []batch.DateRange) service.Result {
	f.mu.Lock()
	f.running++
	if f.running > f.maxSeen {
		f.maxSeen = f.running
	}
	if f.plans == nil {
		f.plans = make(map[string][]batch.DateRange)
	}
	f.plans[svc.Table] = plan
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond) // keep workers overlapping

	f.mu.Lock()
	f.running--
	f.mu.Unlock()

	if f.runFunc != nil {
		return f.runFunc(svc, plan)
	}
	return service.Result{Table: svc.Table, Success: true, Message: "completed"}
}

type fakeMaterializer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeMaterializer) Materialize(ctx context.Context, viewName string) error {
	f.mu.Lock()
	f.calls = append(f.calls, viewName)
	f.mu.Unlock()
	return f.err
}

func testConfig(workers int) *config.Config {
	return &config.Config{
		Workers:         workers,
		HistoricalStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		HistoricalEnd:   time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func fiveServices() []config.Service {
	services := make([]config.Service, 0, 5)
	for i := 1; i <= 5; i++ {
		services = append(services, config.Service{
			Table:   fmt.Sprintf("TABLE_%d", i),
			APIName: fmt.Sprintf("table_%d", i),
		})
	}
	return services
}

func TestRunAll_BoundedConcurrency(t *testing.T) {
	runner := &fakeRunner{}
	s := New(testConfig(2), fiveServices(), nil, runner, &fakeMaterializer{}, nil)

	results := s.RunAll(context.Background())

	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d", len(results))
	}
	if runner.maxSeen > 2 {
		t.Errorf("expected at most 2 concurrent runs, observed %d", runner.maxSeen)
	}

	tables, _ := s.Snapshot()
	for name, status := range tables {
		if status != StatusSuccess {
			t.Errorf("table %s: expected success, got %s", name, status)
		}
	}
}

func TestRunAll_ErrorDoesNotBlockOthers(t *testing.T) {
	runner := &fakeRunner{runFunc: func(svc config.Service, _ []batch.DateRange) service.Result {
		if svc.Table == "TABLE_3" {
			return service.Result{Table: svc.Table, Success: false, Message: "auth failed"}
		}
		return service.Result{Table: svc.Table, Success: true, Message: "completed"}
	}}
	s := New(testConfig(2), fiveServices(), nil, runner, &fakeMaterializer{}, nil)

	results := s.RunAll(context.Background())

	if len(results) != 5 {
		t.Fatalf("expected all 5 tables to reach a terminal state, got %d", len(results))
	}

	tables, _ := s.Snapshot()
	if tables["TABLE_3"] != StatusError {
		t.Errorf("expected TABLE_3 to be error, got %s", tables["TABLE_3"])
	}
	for _, name := range []string{"TABLE_1", "TABLE_2", "TABLE_4", "TABLE_5"} {
		if tables[name] != StatusSuccess {
			t.Errorf("expected %s to be success, got %s", name, tables[name])
		}
	}
}

func TestRunAll_TriggerFiresExactlyOnce(t *testing.T) {
	triggers := map[string]string{"TABLE_1": "VW_ITENS_SAIDA"}
	mat := &fakeMaterializer{}

	var transitions []string
	var transMu sync.Mutex

	s := New(testConfig(2), fiveServices(), triggers, &fakeRunner{}, mat, nil)
	s.SetObserver(func(kind, name string, status Status) {
		if kind == "gold" {
			transMu.Lock()
			transitions = append(transitions, string(status))
			transMu.Unlock()
		}
	})

	s.RunAll(context.Background())

	if len(mat.calls) != 1 || mat.calls[0] != "VW_ITENS_SAIDA" {
		t.Fatalf("expected exactly one materialization of VW_ITENS_SAIDA, got %v", mat.calls)
	}
	if len(transitions) != 2 || transitions[0] != "running" || transitions[1] != "success" {
		t.Errorf("expected gold transitions [running success], got %v", transitions)
	}

	_, gold := s.Snapshot()
	if gold["T_ITENS_SAIDA"] != StatusSuccess {
		t.Errorf("expected T_ITENS_SAIDA success, got %s", gold["T_ITENS_SAIDA"])
	}
}

func TestRunAll_NoTriggerForFailedTable(t *testing.T) {
	triggers := map[string]string{"TABLE_1": "VW_NF_SAIDAS"}
	runner := &fakeRunner{runFunc: func(svc config.Service, _ []batch.DateRange) service.Result {
		return service.Result{Table: svc.Table, Success: svc.Table != "TABLE_1"}
	}}
	mat := &fakeMaterializer{}

	s := New(testConfig(2), fiveServices(), triggers, runner, mat, nil)
	s.RunAll(context.Background())

	if len(mat.calls) != 0 {
		t.Errorf("a failed trigger table must not materialize, got %v", mat.calls)
	}
	_, gold := s.Snapshot()
	if gold["T_NF_SAIDAS"] != StatusPending {
		t.Errorf("expected T_NF_SAIDAS to stay pending, got %s", gold["T_NF_SAIDAS"])
	}
}

func TestRunAll_NonTriggerTableHasNoDownstreamEffect(t *testing.T) {
	mat := &fakeMaterializer{}
	s := New(testConfig(2), fiveServices(), map[string]string{}, &fakeRunner{}, mat, nil)

	s.RunAll(context.Background())

	if len(mat.calls) != 0 {
		t.Errorf("no trigger entries, no materializations expected, got %v", mat.calls)
	}
}

func TestRunAll_MaterializationErrorIsIsolated(t *testing.T) {
	triggers := map[string]string{"TABLE_2": "VW_ITENS_ENTRADA"}
	mat := &fakeMaterializer{err: fmt.Errorf("create failed")}

	s := New(testConfig(2), fiveServices(), triggers, &fakeRunner{}, mat, nil)
	results := s.RunAll(context.Background())

	tables, gold := s.Snapshot()
	if gold["T_ITENS_ENTRADA"] != StatusError {
		t.Errorf("expected gold error status, got %s", gold["T_ITENS_ENTRADA"])
	}
	// The trigger table itself still succeeded.
	if tables["TABLE_2"] != StatusSuccess {
		t.Errorf("materialization failure must not flip the table status, got %s", tables["TABLE_2"])
	}
	if !results["TABLE_2"].Success {
		t.Error("table result must stay successful")
	}
}

func TestRunAll_PlansOnlyForIncrementalServices(t *testing.T) {
	services := []config.Service{
		{Table: "CAD_LOJAS", APIName: "cad_lojas", LoadMode: config.LoadTruncate},
		{Table: "DOCS", APIName: "docs", FilterField: "dtmovimento", LoadMode: config.LoadAppend, RangePolicy: batch.PolicyMonthly},
	}
	runner := &fakeRunner{}

	s := New(testConfig(1), services, nil, runner, &fakeMaterializer{}, nil)
	s.RunAll(context.Background())

	if plan := runner.plans["CAD_LOJAS"]; plan != nil {
		t.Errorf("full-load service must get no plan, got %v", plan)
	}
	// Jan..Mar monthly backfill: exactly three ranges.
	if plan := runner.plans["DOCS"]; len(plan) != 3 {
		t.Errorf("expected 3 monthly ranges for DOCS, got %v", plan)
	}
}

func TestRunOne(t *testing.T) {
	triggers := map[string]string{"TABLE_1": "VW_ITENS_SAIDA"}
	mat := &fakeMaterializer{}
	s := New(testConfig(1), fiveServices(), triggers, &fakeRunner{}, mat, nil)

	res, ok := s.RunOne(context.Background(), "TABLE_1")
	if !ok || !res.Success {
		t.Fatalf("expected successful single run, got ok=%t res=%+v", ok, res)
	}
	if len(mat.calls) != 1 {
		t.Errorf("single-table mode must still fire the trigger, got %v", mat.calls)
	}

	if _, ok := s.RunOne(context.Background(), "UNKNOWN"); ok {
		t.Error("expected unknown table to be rejected")
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []string
	finished map[string]string // runID -> message
}

func (f *fakeRecorder) Start(ctx context.Context, table string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, table)
	return "run-" + table, nil
}

func (f *fakeRecorder) Finish(ctx context.Context, runID string, success bool, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finished == nil {
		f.finished = make(map[string]string)
	}
	f.finished[runID] = message
	return nil
}

func TestRunAll_RecordsRunHistory(t *testing.T) {
	rec := &fakeRecorder{}
	s := New(testConfig(2), fiveServices(), nil, &fakeRunner{}, &fakeMaterializer{}, rec)

	s.RunAll(context.Background())

	if len(rec.started) != 5 {
		t.Fatalf("expected 5 run starts, got %d", len(rec.started))
	}
	if len(rec.finished) != 5 {
		t.Fatalf("expected 5 run finishes, got %d", len(rec.finished))
	}
	if msg, ok := rec.finished["run-TABLE_1"]; !ok || msg != "completed" {
		t.Errorf("expected finish for run-TABLE_1 with message, got %q ok=%t", msg, ok)
	}
}
