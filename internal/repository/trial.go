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

// TrialRepository handles trial metadata persistence
type TrialRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewTrialRepository creates a new trial repository
func NewTrialRepository(db *pgxpool.Pool, logger *logrus.Logger) *TrialRepository {
	return &TrialRepository{
		db:  db,
		log: logger,
	}
}

const trialColumns = `trial_id, title, sponsor, location, min_age, max_age,
	required_conditions, excluded_conditions, reward_amount, status`

// Create inserts a new trial
func (r *TrialRepository) Create(ctx context.Context, t *domain.Trial) error {
	query := `
		INSERT INTO trials (` + trialColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ec := t.EligibilityCriteria
	_, err := r.db.Exec(ctx, query,
		t.TrialID,
		t.Title,
		t.Sponsor,
		t.Location,
		ec.MinAge,
		ec.MaxAge,
		nonNil(ec.RequiredConditions),
		nonNil(ec.ExcludedConditions),
		t.RewardAmount,
		string(t.Status),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("trial %s: %w", t.TrialID, domain.ErrDuplicate)
		}
		r.log.WithFields(logrus.Fields{
			"trial_id": t.TrialID,
			"error":    err,
		}).Error("Failed to create trial")
		return fmt.Errorf("creating trial: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"trial_id": t.TrialID,
		"status":   t.Status,
	}).Info("Trial created successfully")
	return nil
}

// Get retrieves a trial by ID
func (r *TrialRepository) Get(ctx context.Context, trialID string) (*domain.Trial, error) {
	query := `SELECT ` + trialColumns + ` FROM trials WHERE trial_id = $1`

	t, err := scanTrial(r.db.QueryRow(ctx, query, trialID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("trial %s: %w", trialID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting trial: %w", err)
	}
	return t, nil
}

// List returns trials in the given statuses, all trials when none are given
func (r *TrialRepository) List(ctx context.Context, statuses []domain.TrialStatus) ([]*domain.Trial, error) {
	if len(statuses) == 0 {
		return r.query(ctx, `SELECT `+trialColumns+` FROM trials ORDER BY trial_id COLLATE "C"`)
	}
	return r.query(ctx,
		`SELECT `+trialColumns+` FROM trials WHERE status = ANY($1) ORDER BY trial_id COLLATE "C"`,
		statusStrings(statuses))
}

// FindByCondition returns trials whose title or any required condition matches the pattern
// case-insensitively
func (r *TrialRepository) FindByCondition(ctx context.Context, q domain.TrialQuery) ([]*domain.Trial, error) {
	query := `
		SELECT ` + trialColumns + `
		FROM trials
		WHERE ($1::text[] IS NULL OR status = ANY($1))
		  AND (title ~* $2 OR EXISTS (
			SELECT 1 FROM unnest(required_conditions) AS rc WHERE rc ~* $2))
		ORDER BY trial_id COLLATE "C"`

	var statuses []string
	if len(q.Statuses) > 0 {
		statuses = statusStrings(q.Statuses)
	}
	return r.query(ctx, query, statuses, q.Pattern)
}

func (r *TrialRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Trial, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).Error("Failed to query trials")
		return nil, fmt.Errorf("querying trials: %w", err)
	}
	defer rows.Close()

	trials := []*domain.Trial{}
	for rows.Next() {
		t, err := scanTrial(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning trial row: %w", err)
		}
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

func scanTrial(row pgx.Row) (*domain.Trial, error) {
	var t domain.Trial
	var status string
	err := row.Scan(
		&t.TrialID,
		&t.Title,
		&t.Sponsor,
		&t.Location,
		&t.EligibilityCriteria.MinAge,
		&t.EligibilityCriteria.MaxAge,
		&t.EligibilityCriteria.RequiredConditions,
		&t.EligibilityCriteria.ExcludedConditions,
		&t.RewardAmount,
		&status,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TrialStatus(status)
	return &t, nil
}

func statusStrings(statuses []domain.TrialStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
