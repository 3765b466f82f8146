package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/api"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/config"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/cache"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/db"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/memory"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/messaging"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/metrics"
	outboxinfra "github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/outbox"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/infrastructure/worker"
	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/logger"
)

// store is a transaction scope that also exposes its outbox to the dispatcher.
type store interface {
	domain.TransactionScope
	Outbox() domain.OutboxRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Reservation service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting reservation service",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("store", cfg.Store.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scope, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var availabilityCache application.AvailabilityCache
	if cfg.Redis.Enabled {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		availabilityCache = cache.NewRedisAvailabilityCache(client,
			cache.WithTTL(cfg.Redis.TTL),
			cache.WithLogger(log))
		log.Info("Availability cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Application services
	availability := application.NewAvailabilityService(scope, availabilityCache, log)
	holds := application.NewHoldService(scope, availabilityCache, application.HoldConfig{
		SoftHoldTTL:      cfg.Hold.SoftTTL,
		DefaultExtension: cfg.Hold.DefaultExtension,
	}, log)
	packages := application.NewPackageService(scope, availability, holds, log)
	catalog := application.NewCatalogService(scope, availabilityCache, log)
	sweeper := application.NewExpirySweeper(scope, availabilityCache, application.SweeperConfig{
		BatchSize: cfg.Hold.SweepBatchSize,
	}, log)

	m := metrics.New()

	var workers []<-chan struct{}
	workers = append(workers, worker.NewTicker("expiry-sweeper", cfg.Hold.SweepInterval,
		m.InstrumentJob("expiry-sweeper", func(ctx context.Context) (int, error) {
			stats, err := sweeper.SweepExpired(ctx)
			return stats.Released, err
		}), log).Start(ctx))

	if cfg.RabbitMQ.Enabled {
		buses := messaging.NewBuses(messaging.BusOptions{
			URI:          cfg.RabbitMQ.URI,
			QueuePrefix:  cfg.RabbitMQ.QueuePrefix,
			Prefetch:     cfg.RabbitMQ.Prefetch,
			RetryDelayMs: cfg.RabbitMQ.RetryDelayMs,
		})

		dispatcher := outboxinfra.NewDispatcher(scope.Outbox(), outboxinfra.NewBusPublisher(buses.Producer),
			outboxinfra.DispatcherConfig{
				MaxRetry:        cfg.Outbox.MaxRetry,
				BatchSize:       cfg.Outbox.BatchSize,
				BreakerFailures: uint32(cfg.Outbox.BreakerFailures),
				BreakerCooldown: cfg.Outbox.BreakerCooldown,
			}, log)
		workers = append(workers,
			worker.NewTicker("outbox-dispatcher", cfg.Outbox.Interval,
				m.InstrumentJob("outbox-dispatcher", dispatcher.DispatchOnce), log).Start(ctx))

		err := messaging.RegisterSubscriptions(ctx, buses, messaging.Handlers{
			ProductUpserted:  application.NewProductUpsertedHandler(catalog, log),
			PackageUpserted:  application.NewPackageUpsertedHandler(catalog, log),
			CheckoutStarted:  application.NewCheckoutStartedHandler(holds, log),
			PaymentSucceeded: application.NewPaymentSucceededHandler(holds, log),
			OrderClosed:      application.NewOrderClosedHandler(holds, log),
			OrderReturned:    application.NewOrderReturnedHandler(holds, log),
			CartCleared:      application.NewCartClearedHandler(holds, log),
		}, log)
		if err != nil {
			return err
		}
	} else {
		log.Warn("RabbitMQ disabled: events stay in the outbox and no upstream events are consumed")
	}

	// HTTP API
	apiServer := api.NewServer(api.Services{
		Availability: availability,
		Holds:        holds,
		Packages:     packages,
		Catalog:      catalog,
		Sweeper:      sweeper,
	}, cfg.HTTP.RequestTimeout, log, api.WithMetrics(m))

	httpSrv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      apiServer.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down reservation service")
	case err := <-serveErr:
		stop()
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}
	for _, done := range workers {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			log.Warn("Background worker did not stop in time")
		}
	}
	return nil
}

// openStore builds the configured storage backend and returns its cleanup.
func openStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (store, func(), error) {
	if cfg.Driver == config.StoreDriverMemory {
		log.Warn("Using in-memory store: reservations are lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	conn, err := db.Open(ctx, db.PoolConfig{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	closeConn := func() { closeDB(conn, log) }

	if cfg.RunMigrations {
		if err := db.RunMigrations(conn, log); err != nil {
			closeConn()
			return nil, nil, err
		}
	}
	return db.NewTransactionScope(conn, cfg.LockTimeout), closeConn, nil
}

func closeDB(conn *sql.DB, log *zap.Logger) {
	if err := conn.Close(); err != nil {
		log.Warn("Failed to close postgres", zap.Error(err))
	}
}
