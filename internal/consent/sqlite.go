package consent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pharmatrace-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens the ledger at dbPath, creating the file and schema if needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const recordColumns = `id, user_id, trial_id, wallet_address, agreement_hash, signature,
	tx_signature, chain, created_at`

func scanRecord(s scanner) (*Record, error) {
	r := &Record{}
	var chain string
	err := s.Scan(
		&r.ID, &r.UserID, &r.TrialID, &r.WalletAddress, &r.AgreementHash,
		&r.Signature, &r.TxSignature, &chain, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Chain = Chain(chain)
	return r, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS consent_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		trial_id TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		agreement_hash TEXT NOT NULL,
		signature TEXT NOT NULL,
		tx_signature TEXT NOT NULL DEFAULT '',
		chain TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(user_id, trial_id)
	);

	CREATE INDEX IF NOT EXISTS idx_consent_user ON consent_records(user_id);
	`

	_, err := db.Exec(schema)
	return err
}

// Save appends a consent record.
func (s *SQLiteStore) Save(ctx context.Context, r *Record) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO consent_records (
			user_id, trial_id, wallet_address, agreement_hash, signature,
			tx_signature, chain, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.UserID, r.TrialID, r.WalletAddress, r.AgreementHash, r.Signature,
		r.TxSignature, string(r.Chain), now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("consent %s/%s: %w", r.UserID, r.TrialID, domain.ErrDuplicate)
		}
		return fmt.Errorf("failed to save consent: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get consent id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	return nil
}

// Get retrieves the consent for a user and trial.
func (s *SQLiteStore) Get(ctx context.Context, userID, trialID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM consent_records WHERE user_id = ? AND trial_id = ?`,
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
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string) ([]*Record, error) {
	return s.list(ctx, `SELECT `+recordColumns+` FROM consent_records WHERE user_id = ? ORDER BY id`, userID)
}

func (s *SQLiteStore) list(ctx context.Context, query string, args ...interface{}) ([]*Record, error) {
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
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM consent_records").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count consents: %w", err)
	}
	return count, nil
}

// ExportJSON exports the full ledger to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.list(ctx, `SELECT `+recordColumns+` FROM consent_records ORDER BY id`)
	if err != nil {
		return err
	}
	return writeExport(writer, all)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func writeExport(writer io.Writer, records []*Record) error {
	export := &LedgerExport{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Consents:   records,
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}
