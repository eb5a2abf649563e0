package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/domain"
)

// MatchRepository handles match record persistence
type MatchRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *pgxpool.Pool, logger *logrus.Logger) *MatchRepository {
	return &MatchRepository{
		db:  db,
		log: logger,
	}
}

const matchColumns = `user_id, trial_id, match_score, match_reasoning, enrollment_status,
	solana_tx_sig, created_at, updated_at`

// matchOrder gives every backend the same total order, independent of database collation.
const matchOrder = `ORDER BY match_score DESC, user_id COLLATE "C", trial_id COLLATE "C"`

// Create inserts the record for a (user, trial) pair. An existing pair is left untouched.
func (r *MatchRepository) Create(ctx context.Context, m *domain.MatchRecord) error {
	query := `
		INSERT INTO match_records (user_id, trial_id, match_score, match_reasoning, enrollment_status, solana_tx_sig)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		m.UserID,
		m.TrialID,
		m.MatchScore,
		m.MatchReasoning,
		string(m.EnrollmentStatus),
		m.SolanaTxSig,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("match %s/%s: %w", m.UserID, m.TrialID, domain.ErrDuplicate)
		}
		r.log.WithFields(logrus.Fields{
			"user_id":  m.UserID,
			"trial_id": m.TrialID,
			"error":    err,
		}).Error("Failed to create match record")
		return fmt.Errorf("creating match record: %w", err)
	}
	return nil
}

// Get retrieves the record for a (user, trial) pair
func (r *MatchRepository) Get(ctx context.Context, userID, trialID string) (*domain.MatchRecord, error) {
	query := `SELECT ` + matchColumns + ` FROM match_records WHERE user_id = $1 AND trial_id = $2`

	m, err := scanMatch(r.db.QueryRow(ctx, query, userID, trialID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("match %s/%s: %w", userID, trialID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting match record: %w", err)
	}
	return m, nil
}

// ListByUser returns a patient's match records, best first
func (r *MatchRepository) ListByUser(ctx context.Context, userID string) ([]*domain.MatchRecord, error) {
	query := `SELECT ` + matchColumns + ` FROM match_records WHERE user_id = $1 ` + matchOrder
	return r.query(ctx, query, userID)
}

// FindForTrials returns match records for the trials at or above the score floor, best
// first, capped at q.Limit
func (r *MatchRepository) FindForTrials(ctx context.Context, q domain.MatchQuery) ([]*domain.MatchRecord, error) {
	if len(q.TrialIDs) == 0 {
		return []*domain.MatchRecord{}, nil
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}
	query := `
		SELECT ` + matchColumns + `
		FROM match_records
		WHERE trial_id = ANY($1) AND match_score >= $2
		` + matchOrder + `
		LIMIT $3`
	return r.query(ctx, query, q.TrialIDs, q.MinScore, limit)
}

// UpdateEnrollment sets the enrollment status and transaction signature of one record
func (r *MatchRepository) UpdateEnrollment(ctx context.Context, userID, trialID string, status domain.EnrollmentStatus, txSig string) error {
	query := `
		UPDATE match_records
		SET enrollment_status = $3, solana_tx_sig = $4, updated_at = NOW()
		WHERE user_id = $1 AND trial_id = $2`

	tag, err := r.db.Exec(ctx, query, userID, trialID, string(status), txSig)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"user_id":  userID,
			"trial_id": trialID,
			"error":    err,
		}).Error("Failed to update enrollment")
		return fmt.Errorf("updating enrollment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %s/%s: %w", userID, trialID, domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"trial_id": trialID,
		"status":   status,
	}).Info("Enrollment status updated")
	return nil
}

func (r *MatchRepository) query(ctx context.Context, query string, args ...any) ([]*domain.MatchRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to query match records")
		return nil, fmt.Errorf("querying match records: %w", err)
	}
	defer rows.Close()

	recs := []*domain.MatchRecord{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning match row: %w", err)
		}
		recs = append(recs, m)
	}
	return recs, rows.Err()
}

func scanMatch(row pgx.Row) (*domain.MatchRecord, error) {
	var m domain.MatchRecord
	var status string
	err := row.Scan(
		&m.UserID,
		&m.TrialID,
		&m.MatchScore,
		&m.MatchReasoning,
		&status,
		&m.SolanaTxSig,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.EnrollmentStatus = domain.EnrollmentStatus(status)
	return &m, nil
}
