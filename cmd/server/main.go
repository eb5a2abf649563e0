// Package main runs the PharmaTrace HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/api"
	"github.com/pharmatrace-server/internal/cache"
	"github.com/pharmatrace-server/internal/config"
	"github.com/pharmatrace-server/internal/extractor"
	"github.com/pharmatrace-server/internal/service"
	"github.com/pharmatrace-server/internal/storage"
	"github.com/pharmatrace-server/internal/telemetry"
)

const version = "1.0.0"

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Tracing, version)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialise tracing")
	}
	defer flush(logger, shutdownTracer)

	databaseURL := configManager.GetDatabaseURL()
	stores, err := storage.Open(ctx, cfg, databaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open record stores")
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to close record stores")
		}
	}()

	ledger, err := storage.OpenLedger(cfg, databaseURL, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open consent ledger")
	}
	defer ledger.Close()

	deps := api.Dependencies{
		Stores:  stores,
		Filter:  service.NewCandidateFilter(logger, stores.Profiles, stores.Trials, stores.Matches, cfg.Search),
		Trials:  service.NewTrialService(logger, stores.Trials),
		Consent: service.NewConsentService(logger, stores.Matches, ledger, nil),
		Ledger:  ledger,
	}

	if cfg.AI.APIKey != "" {
		analyzer, err := extractor.New(logger, cfg.AI)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create record extractor")
		}

		var redisCache *cache.RedisCache
		if cfg.Cache.RedisURL != "" {
			redisCache, err = cache.NewRedisCache(ctx, cfg.Cache)
			if err != nil {
				logger.WithError(err).Warn("Redis unavailable, caching extractions in memory only")
				redisCache = nil
			}
		}
		extractions := cache.NewExtractionCache(logger, cache.NewMemoryCache(cfg.Cache.MemorySize, cfg.Cache.MemoryTTL), redisCache)
		defer extractions.Close()

		deps.Intake = service.NewIntakeService(logger, stores.Profiles, stores.Trials, stores.Matches, analyzer, extractions, cfg.Intake)
		deps.Batch = service.NewBatchRunner(logger, deps.Intake, cfg.Intake)
	} else {
		logger.Warn("No AI API key configured, record upload is disabled")
	}

	logger.WithFields(logrus.Fields{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"storage": cfg.Storage.Driver,
		"consent": cfg.Consent.Driver,
	}).Info("Starting PharmaTrace server")

	server := api.NewServer(logger, cfg, deps)
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}

	if deps.Batch != nil {
		deps.Batch.Wait()
	}
	logger.Info("Server stopped")
}

func flush(logger *logrus.Logger, shutdown telemetry.ShutdownFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}
}
