// Package docstore persists profiles, trials and match records in MongoDB.
package docstore

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pharmatrace-server/internal/domain"
)

// Collection names.
const (
	ProfilesCollection = "patients"
	TrialsCollection   = "trials"
	MatchesCollection  = "matches"
)

// DB represents a MongoDB connection with its database handle
type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
	log      *logrus.Logger
}

// Connect dials MongoDB, verifies the connection and ensures the unique indexes exist.
func Connect(ctx context.Context, cfg domain.MongoConfig, logger *logrus.Logger) (*DB, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := &DB{Client: client, Database: client.Database(cfg.Database), log: logger}
	if err := db.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"database":      cfg.Database,
		"max_pool_size": cfg.MaxPoolSize,
	}).Info("MongoDB connection established")

	return db, nil
}

// EnsureIndexes creates the unique keys backing the duplicate-key invariants and the index
// used by candidate search.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		ProfilesCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		TrialsCollection: {
			{Keys: bson.D{{Key: "trial_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		MatchesCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "trial_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "trial_id", Value: 1}, {Key: "match_score", Value: -1}}},
		},
	}
	for coll, models := range specs {
		if _, err := db.Database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// Health checks if the deployment is reachable
func (db *DB) Health(ctx context.Context) error {
	return db.Client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client
func (db *DB) Close(ctx context.Context) error {
	db.log.Info("Closing MongoDB connection")
	return db.Client.Disconnect(ctx)
}

// Stores returns the profile, trial and match stores backed by this database.
func (db *DB) Stores() *domain.Stores {
	return &domain.Stores{
		Profiles: NewProfileStore(db.Database.Collection(ProfilesCollection), db.log),
		Trials:   NewTrialStore(db.Database.Collection(TrialsCollection), db.log),
		Matches:  NewMatchStore(db.Database.Collection(MatchesCollection), db.log),
		Ping:     db.Health,
		Close:    db.Close,
	}
}
