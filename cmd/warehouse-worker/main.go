package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/jumadata/warehouse-worker/internal/cissapi"
	"github.com/jumadata/warehouse-worker/internal/config"
	"github.com/jumadata/warehouse-worker/internal/database"
	"github.com/jumadata/warehouse-worker/internal/repository"
	"github.com/jumadata/warehouse-worker/internal/scheduler"
	"github.com/jumadata/warehouse-worker/internal/service"
	"github.com/jumadata/warehouse-worker/internal/warehouse"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	tableFlag := flag.String("table", "", "run a single table by name")
	allFlag := flag.Bool("all", false, "run every configured table in parallel")
	goldFlag := flag.Bool("gold", false, "run every gold materialization in sequence")
	workersFlag := flag.Int("workers", 0, "override the worker count")
	flag.Parse()

	if *tableFlag == "" && !*allFlag && !*goldFlag {
		flag.Usage()
		return nil
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *workersFlag > 0 {
		cfg.Workers = *workersFlag
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Connect to the warehouse
	wh, err := warehouse.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	// Optional run-history store
	var recorder scheduler.RunRecorder
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close(db)

		log.Println("Running database migrations...")
		if err := database.RunMigrations(db); err != nil {
			return err
		}
		recorder = repository.NewRunRepository(db)
	}

	// Source API clients
	tokens := cissapi.NewTokenCache(cfg.AuthURL, cfg.ClientID, cfg.ClientSecret, cfg.Username, cfg.Password, cfg.TokenTTL)
	extractor := cissapi.NewClient(cfg.ServiceURL)

	runner := service.NewRunner(tokens, extractor, wh, cfg.RefreshDays)

	sched := scheduler.New(cfg, config.AllServices(), config.TriggerMap, runner, wh, recorder)
	sched.SetObserver(func(kind, name string, status scheduler.Status) {
		log.Printf("[%s] %s -> %s", kind, name, status)
	})

	switch {
	case *tableFlag != "":
		return runSingleTable(ctx, sched, *tableFlag)
	case *goldFlag:
		return runAllGold(ctx, wh)
	default:
		return runAllTables(ctx, cfg, sched)
	}
}

func runSingleTable(ctx context.Context, sched *scheduler.Scheduler, table string) error {
	name := strings.ToUpper(table)
	log.Printf("Single-table mode: %s", name)

	res, ok := sched.RunOne(ctx, name)
	if !ok {
		return fmt.Errorf("table %s is not configured", name)
	}
	if !res.Success {
		return fmt.Errorf("load of %s failed: %s", name, res.Message)
	}

	log.Printf("Load of %s completed: %s", name, res.Message)
	return nil
}

func runAllTables(ctx context.Context, cfg *config.Config, sched *scheduler.Scheduler) error {
	log.Printf("Parallel mode: %d workers, historical window %s..%s",
		cfg.Workers,
		cfg.HistoricalStart.Format("2006-01-02"),
		cfg.HistoricalEnd.Format("2006-01-02"))

	results := sched.RunAll(ctx)

	failed := 0
	tables := make([]string, 0, len(results))
	for name := range results {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	for _, name := range tables {
		res := results[name]
		if res.Success {
			log.Printf("OK    %-40s %s", name, res.Message)
		} else {
			log.Printf("ERROR %-40s %s", name, res.Message)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tables failed", failed, len(results))
	}
	log.Println("All tables completed")
	return nil
}

func runAllGold(ctx context.Context, wh *warehouse.Client) error {
	views := make([]string, 0, len(config.GoldTables))
	for view := range config.GoldTables {
		views = append(views, view)
	}
	sort.Strings(views)

	failed := 0
	for _, view := range views {
		target := warehouse.MaterializedTableName(view)
		log.Printf("Materializing %s...", target)
		if err := wh.Materialize(ctx, view); err != nil {
			log.Printf("ERROR %s: %v", target, err)
			failed++
			continue
		}
		log.Printf("OK    %s", target)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d materializations failed", failed, len(views))
	}
	return nil
}
