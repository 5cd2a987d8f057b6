package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ndewijer/networth-tracker/internal/api"
	"github.com/ndewijer/networth-tracker/internal/config"
	"github.com/ndewijer/networth-tracker/internal/database"
	"github.com/ndewijer/networth-tracker/internal/logging"
	"github.com/ndewijer/networth-tracker/internal/market"
	"github.com/ndewijer/networth-tracker/internal/repository"
	"github.com/ndewijer/networth-tracker/internal/service"
	"github.com/ndewijer/networth-tracker/internal/yahoo"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	entry := logger.WithComponent("server")

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		entry.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
	err = database.Migrate(migrateCtx, db)
	cancelMigrate()
	if err != nil {
		entry.WithError(err).Fatal("failed to migrate database")
	}
	entry.WithFields(logging.Fields{"path": cfg.Database.Path}).Info("connected to database")

	// Create repositories
	rateRepo := repository.NewRateRepository(db)
	assetRepo := repository.NewAssetRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	valuationRepo := repository.NewManualValuationRepository(db)

	// Quote provider
	monitor := market.NewMonitor()
	provider := yahoo.NewFinanceClient(cfg.Market.ProviderURL, cfg.Market)
	fetcher := market.NewFetcher(provider, cfg.Market, monitor, logger.WithComponent("fetcher"))

	// Create services
	marketService := service.NewMarketDataService(rateRepo, fetcher, market.NewKeyedLocks(), cfg.Market, logger)
	loader := service.NewDataLoaderService(assetRepo, transactionRepo, valuationRepo)
	portfolioService := service.NewPortfolioService(loader, marketService, cfg.Portfolio, logger)
	compactionService := service.NewCompactionService(rateRepo, cfg.Compaction, logger)
	backfillService := service.NewBackfillService(
		marketService,
		rateRepo,
		assetRepo,
		transactionRepo,
		cfg.Backfill,
		cfg.Portfolio,
		logger,
	)
	systemService := service.NewSystemService(db, monitor, fetcher.BackoffUntil, marketService)

	// Background agents
	runner := service.NewAgentRunner(logger)
	service.RegisterAgents(runner, compactionService, backfillService, marketService, loader, cfg.Portfolio)

	scheduler := service.NewScheduler(runner, logger)
	if cfg.Schedule.Enabled {
		for name, spec := range map[string]string{
			service.AgentCompaction:   cfg.Schedule.Compaction,
			service.AgentPriceRefresh: cfg.Schedule.PriceRefresh,
			service.AgentBackfill:     cfg.Schedule.Backfill,
		} {
			if err := scheduler.Schedule(name, spec); err != nil {
				entry.WithError(err).WithFields(logging.Fields{"agent": name, "spec": spec}).Fatal("invalid schedule")
			}
		}
		scheduler.Start()
	}

	// Create router
	router := api.NewRouter(api.Services{
		System:    systemService,
		Market:    marketService,
		Portfolio: portfolioService,
		Agents:    runner,
	}, cfg, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		entry.WithFields(logging.Fields{"addr": cfg.Server.Addr}).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			entry.WithError(err).Fatal("server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	entry.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		entry.WithError(err).Error("server forced to shutdown")
	}

	// Stop triggering new runs, then cancel and wait for the running ones.
	<-scheduler.Stop().Done()
	runner.Shutdown()

	entry.Info("server exited")
}
