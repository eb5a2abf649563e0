package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/domain"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ProfileRepository handles patient profile persistence
type ProfileRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *pgxpool.Pool, logger *logrus.Logger) *ProfileRepository {
	return &ProfileRepository{
		db:  db,
		log: logger,
	}
}

const profileColumns = `user_id, age_group, ethnicity, gender, medical_conditions, current_medications,
	bmi, blood_pressure, last_hba1c_level, anonymized_at`

// Create inserts a new profile; a second insert for the same user fails with ErrDuplicate
func (r *ProfileRepository) Create(ctx context.Context, p *domain.PatientProfile) error {
	if p.AnonymizedAt.IsZero() {
		p.AnonymizedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO patient_profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.Exec(ctx, query,
		p.UserID,
		p.Demographics.AgeGroup,
		p.Demographics.Ethnicity,
		p.Demographics.Gender,
		nonNil(p.MedicalConditions),
		nonNil(p.CurrentMedications),
		p.HealthMetrics.BMI,
		p.HealthMetrics.BloodPressure,
		p.HealthMetrics.LastHbA1cLevel,
		p.AnonymizedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("profile %s: %w", p.UserID, domain.ErrDuplicate)
		}
		r.log.WithFields(logrus.Fields{
			"user_id": p.UserID,
			"error":   err,
		}).Error("Failed to create profile")
		return fmt.Errorf("creating profile: %w", err)
	}

	r.log.WithField("user_id", p.UserID).Info("Profile created successfully")
	return nil
}

// Get retrieves a profile by user ID
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*domain.PatientProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM patient_profiles WHERE user_id = $1`

	p, err := scanProfile(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("Failed to get profile")
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// GetMany batch-loads profiles keyed by user ID
func (r *ProfileRepository) GetMany(ctx context.Context, userIDs []string) (map[string]*domain.PatientProfile, error) {
	out := make(map[string]*domain.PatientProfile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query := `SELECT ` + profileColumns + ` FROM patient_profiles WHERE user_id = ANY($1)`
	rows, err := r.db.Query(ctx, query, userIDs)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"user_count": len(userIDs),
			"error":      err,
		}).Error("Failed to load profiles")
		return nil, fmt.Errorf("loading profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}

// List pages through profiles in user_id order
func (r *ProfileRepository) List(ctx context.Context, afterUserID string, limit int) ([]*domain.PatientProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM patient_profiles
		WHERE user_id COLLATE "C" > $1 ORDER BY user_id COLLATE "C"`
	args := []interface{}{afterUserID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"after": afterUserID,
			"error": err,
		}).Error("Failed to list profiles")
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	out := []*domain.PatientProfile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (*domain.PatientProfile, error) {
	var p domain.PatientProfile
	err := row.Scan(
		&p.UserID,
		&p.Demographics.AgeGroup,
		&p.Demographics.Ethnicity,
		&p.Demographics.Gender,
		&p.MedicalConditions,
		&p.CurrentMedications,
		&p.HealthMetrics.BMI,
		&p.HealthMetrics.BloodPressure,
		&p.HealthMetrics.LastHbA1cLevel,
		&p.AnonymizedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
