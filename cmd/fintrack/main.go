package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/auth"
	"fintrack/internal/config"
	"fintrack/internal/httpapi"
	"fintrack/internal/log"
	"fintrack/internal/remote"
	"fintrack/internal/services"
	"fintrack/internal/state"
	"fintrack/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The durable queue always lives in SQLite; the storage backend
	// only selects what backs the state containers.
	sqlStore, err := storage.NewSQLiteStore(cfg.SQLiteDBPath, cfg.SyncQueueLimit)
	if err != nil {
		logger.Error("Failed to initialize SQLite store", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer sqlStore.Close()

	var kv storage.KV = sqlStore
	if cfg.StorageBackend == "memory" {
		kv = storage.NewMemoryKV()
		logger.Info("Using in-memory state storage", "backend", cfg.StorageBackend)
	}

	var tokens *auth.TokenService
	if cfg.JWTSecret != "" {
		tokens = auth.NewTokenService(cfg.JWTSecret, 24*time.Hour)
	} else {
		logger.Warn("JWT_SECRET not set, persisted sessions are restored unverified")
	}

	store := state.New(kv, tokens, logger.WithComponent(log.ComponentState))
	if err := store.Hydrate(ctx); err != nil {
		logger.Warn("State hydration incomplete", log.FieldError, err)
	}

	gateway := remote.NewClient(cfg.RemoteBaseURL, cfg.RemoteTimeout, cfg.SyncMaxRetries,
		logger.WithComponent(log.ComponentRemote))
	if session := store.Auth.State(); session.IsAuthenticated {
		gateway.SetAuthToken(session.Token)
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("AMQP publisher initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, poll processor drains the queue alone")
	}

	ledger := services.NewLedgerService(store, sqlStore, publisher, logger.WithComponent(log.ComponentApp))

	summary := services.NewSummaryService(store, 30*time.Second, logger.WithComponent(log.ComponentSummary))
	defer summary.Close()

	processorConfig := services.DefaultSyncProcessorConfig()
	processorConfig.PollInterval = cfg.SyncPollInterval
	processorConfig.BatchSize = cfg.SyncBatchSize
	processorConfig.MaxRetries = cfg.SyncMaxRetries

	processor := services.NewSyncProcessor(store, sqlStore, gateway, processorConfig,
		logger.WithComponent(log.ComponentProcessor))

	if cfg.RemoteBaseURL != "" {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start sync processor", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("REMOTE_BASE_URL not set, remote sync disabled")
	}

	srv := httpapi.NewServer(":"+cfg.Port, store, ledger, summary, processor,
		logger.WithComponent(log.ComponentHTTP))

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Sync processor shutdown error", log.FieldError, err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"backend", cfg.StorageBackend,
		"remote", cfg.RemoteBaseURL != "")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
