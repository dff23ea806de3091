package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creatoros-backend/internal/config"
	"creatoros-backend/internal/events"
	"creatoros-backend/internal/events/kafka"
	"creatoros-backend/internal/jobs"
	"creatoros-backend/internal/logger"
	"creatoros-backend/internal/repository/postgres"
	"creatoros-backend/internal/scheduler"
	"creatoros-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.Bool("run-once", false, "Reconcile all balances once and exit non-zero on drift")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting CreatorOS balance reconciler...", "log_level", cfg.Log.Level)

	if cfg.Store.Type != config.StoreTypePostgres {
		log.Fatalf("Reconciler requires the postgres store, got %q", cfg.Store.Type)
	}

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := postgres.Open(cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize Repositories
	store := postgres.NewStore(db)

	// Initialize event publisher. The only writes are re-applied signup grants.
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Events.KafkaBrokers) > 0 {
		publisher = kafka.NewPublisher(cfg.Events.KafkaBrokers)
	}
	defer publisher.Close()

	// Initialize Services
	ledgerService := service.NewLedgerService(store.OrganizationRepository, store.LedgerRepository, publisher,
		service.LedgerOptions{EventsTopic: cfg.Events.Topic})
	orgService := service.NewOrganizationService(store.OrganizationRepository, ledgerService, service.PlanGrants(cfg.Ledger.SignupGrants))

	jobServices := &jobs.Services{
		Ledger: ledgerService,
		Org:    orgService,
	}

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(jobServices, cfg)

	if *runOnce {
		code := reconcileOnce(jobRunner)
		publisher.Close()
		db.Close()
		os.Exit(code)
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(jobRunner)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Reconciler scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down reconciler scheduler...")
	cronScheduler.Stop()
	logger.Info("Reconciler scheduler stopped. Goodbye!")
}

// reconcileOnce returns the process exit code: 0 when consistent, 2 on drift.
func reconcileOnce(jobRunner *jobs.JobRunner) int {
	logger.Info("Running reconciliation once")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	inconsistent, err := jobRunner.ReconcileAll(ctx)
	if err != nil {
		logger.Error("Reconciliation failed", "error", err)
		return 1
	}
	if len(inconsistent) > 0 {
		return 2
	}
	logger.Info("All balances consistent")
	return 0
}
