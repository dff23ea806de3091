package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "creatoros-backend/internal/api/http"
	"creatoros-backend/internal/config"
	"creatoros-backend/internal/events"
	"creatoros-backend/internal/events/kafka"
	"creatoros-backend/internal/logger"
	"creatoros-backend/internal/repository"
	"creatoros-backend/internal/repository/memory"
	"creatoros-backend/internal/repository/postgres"
	"creatoros-backend/internal/security"
	"creatoros-backend/internal/service"

	"github.com/jmoiron/sqlx"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting CreatorOS credit ledger...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "store", cfg.Store.Type)

	// Initialize Repositories
	orgRepo, ledgerRepo, db, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to initialize store", "error", err)
		log.Fatalf("Failed to initialize store: %v", err)
	}
	if db != nil {
		defer db.Close()
	}

	// Initialize event publisher
	var publisher events.Publisher = events.NoopPublisher{}
	if len(cfg.Events.KafkaBrokers) > 0 {
		logger.Info("Publishing ledger events to Kafka", "brokers", cfg.Events.KafkaBrokers, "topic", cfg.Events.Topic)
		publisher = events.NewAsyncPublisher(kafka.NewPublisher(cfg.Events.KafkaBrokers), events.AsyncOptions{
			Workers:   cfg.Events.Workers,
			QueueSize: cfg.Events.QueueSize,
			Timeout:   time.Duration(cfg.Events.PublishTimeoutMs) * time.Millisecond,
		})
	} else {
		logger.Info("No Kafka brokers configured, ledger events are dropped")
	}
	defer publisher.Close()

	// Initialize Services
	ledgerSvc := service.NewLedgerService(orgRepo, ledgerRepo, publisher, ledgerOptions(cfg))
	orgSvc := service.NewOrganizationService(orgRepo, ledgerSvc, service.PlanGrants(cfg.Ledger.SignupGrants))

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer)

	var limiter *httpapi.RateLimiter
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	if cfg.Server.RateLimitRPS > 0 {
		limiter = httpapi.NewRateLimiter(float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst)
		limiter.StartCleanup(time.Minute, stopCleanup)
	}

	router := httpapi.NewRouter(httpapi.RouterDeps{
		TokenManager:   tokenManager,
		LedgerService:  ledgerSvc,
		OrgService:     orgSvc,
		RateLimiter:    limiter,
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("HTTP server stopped. Goodbye!")
}

// openStore returns the configured repositories. db is nil for the memory store.
func openStore(cfg *config.Config) (repository.OrganizationRepository, repository.LedgerRepository, *sqlx.DB, error) {
	if cfg.Store.Type == config.StoreTypeMemory {
		logger.Warn("Using in-memory store, balances are lost on restart")
		store := memory.NewStore()
		return store, store, nil, nil
	}

	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	db, err := postgres.Open(cfg.GetDatabaseConnectionString())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		logger.Info("Database migrations applied")
	}

	store := postgres.NewStore(db)
	return store.OrganizationRepository, store.LedgerRepository, db, nil
}

func ledgerOptions(cfg *config.Config) service.LedgerOptions {
	return service.LedgerOptions{
		MaxAttempts:          cfg.Ledger.MaxAttempts,
		RetryInitialInterval: time.Duration(cfg.Ledger.RetryInitialIntervalMs) * time.Millisecond,
		RetryMaxInterval:     time.Duration(cfg.Ledger.RetryMaxIntervalMs) * time.Millisecond,
		HistoryDefaultLimit:  cfg.Ledger.HistoryDefaultLimit,
		HistoryMaxLimit:      cfg.Ledger.HistoryMaxLimit,
		EventsTopic:          cfg.Events.Topic,
	}
}
