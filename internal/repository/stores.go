// Package repository persists profiles, trials and match records in PostgreSQL through pgx.
package repository

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/database"
	"github.com/pharmatrace-server/internal/domain"
)

// NewStores bundles the three repositories over one pool.
func NewStores(db *database.DB, logger *logrus.Logger) *domain.Stores {
	return &domain.Stores{
		Profiles: NewProfileRepository(db.Pool, logger),
		Trials:   NewTrialRepository(db.Pool, logger),
		Matches:  NewMatchRepository(db.Pool, logger),
		Ping:     db.Health,
		Close: func(context.Context) error {
			db.Close()
			return nil
		},
	}
}
