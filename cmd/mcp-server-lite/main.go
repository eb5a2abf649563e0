// Package main runs the find_candidates MCP tool without a config file. The memory driver
// starts from <data dir>/seed.json.
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/config"
	"github.com/pharmatrace-server/internal/docstore"
	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/mcp"
	"github.com/pharmatrace-server/internal/memstore"
	"github.com/pharmatrace-server/internal/service"
	"github.com/pharmatrace-server/internal/setup"
)

func main() {
	cfg := config.LoadLiteConfig()

	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.NewCLI(cfg.DataDir).Run(os.Args[2:]); err != nil {
			log.Fatalf("Setup failed: %v", err)
		}
		return
	}

	logger := config.NewLogger(cfg.LoggingConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open record stores")
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to close record stores")
		}
	}()

	filter := service.NewCandidateFilter(logger, stores.Profiles, stores.Trials, stores.Matches, cfg.SearchConfig())
	server := mcp.NewServer(logger, domain.MCPConfig{}, filter)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("MCP server failed")
	}

	logger.Info("MCP server (lite) stopped")
}

func openStores(ctx context.Context, cfg *config.LiteConfig, logger *logrus.Logger) (*domain.Stores, error) {
	logger.WithFields(logrus.Fields{
		"driver":   cfg.StorageDriver,
		"data_dir": cfg.DataDir,
	}).Info("Opening record stores")

	if cfg.StorageDriver == domain.StorageMongo {
		db, err := docstore.Connect(ctx, domain.MongoConfig{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
		if err != nil {
			return nil, err
		}
		return db.Stores(), nil
	}

	store := memstore.New()
	err := store.LoadSeedFile(cfg.SeedPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.WithField("seed", cfg.SeedPath()).Warn("No seed file, starting with empty stores")
	case err != nil:
		return nil, err
	}
	return store.Stores(), nil
}
