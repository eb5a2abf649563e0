// Package main runs the find_candidates MCP tool over stdio against the configured stores.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pharmatrace-server/internal/config"
	"github.com/pharmatrace-server/internal/mcp"
	"github.com/pharmatrace-server/internal/service"
	"github.com/pharmatrace-server/internal/storage"
)

func main() {
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	// stdout carries the protocol.
	cfg.Logging.Output = "stderr"
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	stores, err := storage.Open(ctx, cfg, configManager.GetDatabaseURL(), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open record stores")
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to close record stores")
		}
	}()

	filter := service.NewCandidateFilter(logger, stores.Profiles, stores.Trials, stores.Matches, cfg.Search)
	server := mcp.NewServer(logger, cfg.MCP, filter)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("MCP server failed")
	}

	logger.Info("MCP server stopped")
}
