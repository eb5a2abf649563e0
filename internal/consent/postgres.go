package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lib/pq"

	"github.com/pharmatrace-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL consent store.
// It expects the consent_records table to exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL consent store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Save appends a consent record.
func (s *PostgresStore) Save(ctx context.Context, r *Record) error {
	query := `
		INSERT INTO consent_records (
			user_id, trial_id, wallet_address, agreement_hash, signature,
			tx_signature, chain, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, query,
		r.UserID, r.TrialID, r.WalletAddress, r.AgreementHash, r.Signature,
		r.TxSignature, string(r.Chain), now,
	).Scan(&r.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("consent %s/%s: %w", r.UserID, r.TrialID, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to save consent: %w", err)
	}

	r.CreatedAt = now
	return nil
}

// Get retrieves the consent for a user and trial.
func (s *PostgresStore) Get(ctx context.Context, userID, trialID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM consent_records WHERE user_id = $1 AND trial_id = $2`,
		userID, trialID)

	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consent %s/%s: %w", userID, trialID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}
	return r, nil
}

// ListByUser returns a user's consents, oldest first.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM consent_records WHERE user_id = $1 ORDER BY id`, userID)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list consents: %w", err)
	}
	defer rows.Close()

	result := []*Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// Count returns the total number of consents.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM consent_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count consents: %w", err)
	}
	return count, nil
}

// ExportJSON exports the full ledger to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.list(ctx, `SELECT `+recordColumns+` FROM consent_records ORDER BY id`)
	if err != nil {
		return err
	}
	return writeExport(writer, all)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
