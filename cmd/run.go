package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"lender/api"
	"lender/config"
	"lender/database"
	"lender/events"
	"lender/models"
	"lender/oracle"
	"lender/repository"
	"lender/service"

	log "github.com/sirupsen/logrus"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Info("Starting lending ledger...")

	// Load configuration
	cfg := config.Get()

	// Build the asset registry from config
	assets := make([]models.Asset, 0, len(cfg.Assets))
	for _, a := range cfg.Assets {
		assets = append(assets, models.Asset{ID: a.ID, FeedID: a.FeedID})
	}
	registry, err := models.NewAssetRegistry(assets)
	if err != nil {
		return fmt.Errorf("invalid asset configuration: %w", err)
	}

	// Initialize database connection
	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	// Ensure market and accrual state rows exist for the configured assets
	if err := repository.EnsureLedgerState(ctx, db, registry, time.Now()); err != nil {
		return fmt.Errorf("failed to ensure ledger state: %w", err)
	}

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize unit of work factory
	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)

	// Price oracle
	priceOracle := oracle.NewFeedClient(cfg.PriceFeedURL, cfg.PriceMaxAge)

	// Initialize services. The shared mutex serializes every ledger mutation
	// across the ledger, accrual, and liquidation services.
	log.Info("Initializing services...")
	var ledgerMu sync.Mutex
	ledgerService := service.NewLedgerService(uowFactory, registry, priceOracle, &ledgerMu)
	valuationService := service.NewValuationService(uowFactory, registry, priceOracle)
	accrualService := service.NewAccrualService(uowFactory, cfg.AccrualInterval, &ledgerMu)
	liquidationService := service.NewLiquidationService(uowFactory, registry, priceOracle, cfg.OperatorIDs, &ledgerMu)
	log.Info("Services initialized successfully")

	// HTTP API
	server := api.NewServer(ledgerService, valuationService, accrualService, liquidationService, registry)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("HTTP API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Accrual poller: the scheduler itself holds no timers, so a goroutine
	// polls it and applies interest when a pass comes due
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		runAccrualPoller(ctx, accrualService)
	}()

	log.WithField("environment", cfg.Environment).Info("Lending ledger is running")

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	// Cleanup resources
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	<-pollerDone
	log.Info("Shutdown completed")

	return nil
}

// runAccrualPoller drives the accrual scheduler until the context is
// cancelled. Polling is deliberately more frequent than the accrual interval
// so a due pass is applied promptly.
func runAccrualPoller(ctx context.Context, accrual service.AccrualService) {
	poll := accrual.Interval() / 4
	if poll < time.Second {
		poll = time.Second
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()

			due, err := accrual.CheckDue(ctx, now)
			if err != nil {
				log.WithError(err).Error("Accrual due check failed")
				continue
			}
			if !due {
				continue
			}

			if err := accrual.PerformAccrual(ctx, now); err != nil {
				// Another poller may have won the race; not due is expected
				if errors.Is(err, models.ErrAccrualNotDue) {
					continue
				}
				log.WithError(err).Error("Accrual pass failed")
			}
		}
	}
}
