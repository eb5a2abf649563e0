// Package storage opens the configured record stores and consent ledger.
package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/consent"
	"github.com/pharmatrace-server/internal/database"
	"github.com/pharmatrace-server/internal/docstore"
	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/memstore"
	"github.com/pharmatrace-server/internal/repository"
)

// Open connects the profile, trial and match stores for cfg.Storage.Driver. databaseURL is
// only used by the postgres driver to run migrations.
func Open(ctx context.Context, cfg *domain.Config, databaseURL string, logger *logrus.Logger) (*domain.Stores, error) {
	logger.WithField("driver", cfg.Storage.Driver).Info("Opening record stores")

	switch cfg.Storage.Driver {
	case domain.StorageMongo:
		db, err := docstore.Connect(ctx, cfg.Mongo, logger)
		if err != nil {
			return nil, err
		}
		return db.Stores(), nil

	case domain.StoragePostgres:
		if cfg.Database.AutoMigrate {
			if err := migrate(ctx, databaseURL, cfg.Database.MigrationsPath, logger); err != nil {
				return nil, err
			}
		}
		db, err := database.NewConnection(ctx, database.ConfigFromDomain(cfg.Database), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return repository.NewStores(db, logger), nil

	case domain.StorageMemory:
		return memstore.New().Stores(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Storage.Driver)
	}
}

func migrate(ctx context.Context, databaseURL, path string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, path, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close migration runner")
		}
	}()
	return runner.Up(ctx)
}

// OpenLedger opens the consent ledger for cfg.Consent.Driver. The postgres ledger expects
// the consent_records table created by the migrations.
func OpenLedger(cfg *domain.Config, databaseURL string, logger *logrus.Logger) (consent.Store, error) {
	logger.WithField("driver", cfg.Consent.Driver).Info("Opening consent ledger")

	var (
		ledger consent.Store
		err    error
	)
	switch cfg.Consent.Driver {
	case domain.ConsentSQLite:
		ledger, err = consent.NewSQLiteStore(cfg.Consent.SQLitePath)
	case domain.ConsentPostgres:
		ledger, err = consent.NewPostgresStoreFromURL(databaseURL)
	default:
		return nil, fmt.Errorf("unknown consent driver: %q", cfg.Consent.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open consent ledger: %w", err)
	}
	return ledger, nil
}
