package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"meli_sync/internal/api"
	"meli_sync/internal/config"
	"meli_sync/internal/domain"
	"meli_sync/internal/publisher"
	"meli_sync/internal/scheduler"
	"meli_sync/internal/service"
	"meli_sync/internal/source/meli"
	"meli_sync/internal/storage/postgres"
	"meli_sync/internal/token"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// The publisher is optional: sync runs and the API work without a
	// broker.
	var syncPublisher service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		syncPublisher = rabbitMQ
	}

	orderStore := postgres.NewOrderStore(db, cfg.Sync.BatchSize)
	productStore := postgres.NewProductStore(db)
	syncControlStore := postgres.NewSyncControlStore(db)
	tokenStore := postgres.NewTokenStore(db)
	txManager := postgres.NewTransactionManager(db)

	tokenManager := token.NewManager(token.Config{
		BaseURL:   cfg.Meli.BaseURL,
		AppID:     cfg.Meli.AppID,
		SecretKey: cfg.Meli.SecretKey,
		Timeout:   cfg.Meli.Timeout,
	}, tokenStore, logger)

	meliClient := meli.NewClient(meli.Config{
		BaseURL:        cfg.Meli.BaseURL,
		PageSize:       cfg.Meli.PageSize,
		Timeout:        cfg.Meli.Timeout,
		MaxConcurrent:  cfg.Meli.MaxConcurrent,
		MaxAttempts:    cfg.Meli.Retry.MaxAttempts,
		InitialBackoff: cfg.Meli.Retry.InitialBackoff,
		MaxBackoff:     cfg.Meli.Retry.MaxBackoff,
		DateFrom:       cfg.Meli.DateFrom,
	}, tokenManager, logger)

	ordersService := service.NewOrdersSyncService(
		meliClient,
		orderStore,
		syncControlStore,
		txManager,
		syncPublisher,
		logger,
	)
	productsService := service.NewProductsSyncService(
		meliClient,
		productStore,
		syncControlStore,
		syncPublisher,
		logger,
	)

	ordersScheduler := scheduler.NewScheduler(ordersService, syncControlStore, scheduler.Config{
		SyncType:     domain.SyncTypeOrders,
		Interval:     cfg.Sync.Interval,
		PollInterval: cfg.Sync.PollInterval,
		Warmup:       cfg.Sync.OrdersWarmup,
	}, logger)
	productsScheduler := scheduler.NewScheduler(productsService, syncControlStore, scheduler.Config{
		SyncType:     domain.SyncTypeProducts,
		Interval:     cfg.Sync.Interval,
		PollInterval: cfg.Sync.PollInterval,
		Warmup:       cfg.Sync.ProductsWarmup,
	}, logger)

	server := api.NewServer(ordersService, productsService, meliClient, tokenManager, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Handler(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	go func() {
		if err := ordersScheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("orders scheduler error", "error", err)
		}
	}()
	go func() {
		if err := productsScheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("products scheduler error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting server",
		"addr", cfg.Server.Addr,
		"sync_interval", cfg.Sync.Interval,
	)

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
