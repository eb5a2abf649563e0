package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pharmatrace-server/internal/domain"
)

// ProfileStore handles patient profile persistence
type ProfileStore struct {
	coll *mongo.Collection
	log  *logrus.Logger
}

// NewProfileStore creates a new profile store
func NewProfileStore(coll *mongo.Collection, logger *logrus.Logger) *ProfileStore {
	return &ProfileStore{coll: coll, log: logger}
}

// Create inserts a profile. The unique index on user_id rejects re-uploads.
func (s *ProfileStore) Create(ctx context.Context, profile *domain.PatientProfile) error {
	if profile.AnonymizedAt.IsZero() {
		profile.AnonymizedAt = time.Now().UTC()
	}
	if _, err := s.coll.InsertOne(ctx, profile); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("profile %s: %w", profile.UserID, domain.ErrDuplicate)
		}
		s.log.WithFields(logrus.Fields{
			"user_id": profile.UserID,
			"error":   err,
		}).Error("Failed to create profile")
		return fmt.Errorf("creating profile: %w", err)
	}

	s.log.WithField("user_id", profile.UserID).Info("Profile created")
	return nil
}

// Get retrieves a profile by user ID
func (s *ProfileStore) Get(ctx context.Context, userID string) (*domain.PatientProfile, error) {
	var profile domain.PatientProfile
	err := s.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&profile)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return &profile, nil
}

// GetMany batch-loads profiles in a single query
func (s *ProfileStore) GetMany(ctx context.Context, userIDs []string) (map[string]*domain.PatientProfile, error) {
	out := make(map[string]*domain.PatientProfile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	cursor, err := s.coll.Find(ctx, bson.M{"user_id": bson.M{"$in": userIDs}})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_count": len(userIDs),
			"error":      err,
		}).Error("Failed to load profiles")
		return nil, fmt.Errorf("loading profiles: %w", err)
	}
	var profiles []*domain.PatientProfile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decoding profiles: %w", err)
	}
	for _, p := range profiles {
		out[p.UserID] = p
	}
	return out, nil
}

// List pages through profiles in user_id order
func (s *ProfileStore) List(ctx context.Context, afterUserID string, limit int) ([]*domain.PatientProfile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "user_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, bson.M{"user_id": bson.M{"$gt": afterUserID}}, opts)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"after": afterUserID,
			"error": err,
		}).Error("Failed to list profiles")
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	profiles := []*domain.PatientProfile{}
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, fmt.Errorf("decoding profiles: %w", err)
	}
	return profiles, nil
}

// TrialStore handles trial metadata persistence
type TrialStore struct {
	coll *mongo.Collection
	log  *logrus.Logger
}

// NewTrialStore creates a new trial store
func NewTrialStore(coll *mongo.Collection, logger *logrus.Logger) *TrialStore {
	return &TrialStore{coll: coll, log: logger}
}

// Create inserts a trial
func (s *TrialStore) Create(ctx context.Context, trial *domain.Trial) error {
	if _, err := s.coll.InsertOne(ctx, trial); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("trial %s: %w", trial.TrialID, domain.ErrDuplicate)
		}
		s.log.WithFields(logrus.Fields{
			"trial_id": trial.TrialID,
			"error":    err,
		}).Error("Failed to create trial")
		return fmt.Errorf("creating trial: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"trial_id": trial.TrialID,
		"status":   trial.Status,
	}).Info("Trial created")
	return nil
}

// Get retrieves a trial by ID
func (s *TrialStore) Get(ctx context.Context, trialID string) (*domain.Trial, error) {
	var trial domain.Trial
	err := s.coll.FindOne(ctx, bson.M{"trial_id": trialID}).Decode(&trial)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("trial %s: %w", trialID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting trial: %w", err)
	}
	return &trial, nil
}

// List returns trials in the given statuses, all trials when none are given
func (s *TrialStore) List(ctx context.Context, statuses []domain.TrialStatus) ([]*domain.Trial, error) {
	return s.find(ctx, trialStatusFilter(statuses))
}

// FindByCondition returns searchable trials matching the condition pattern
func (s *TrialStore) FindByCondition(ctx context.Context, q domain.TrialQuery) ([]*domain.Trial, error) {
	return s.find(ctx, trialConditionFilter(q))
}

func (s *TrialStore) find(ctx context.Context, filter bson.M) ([]*domain.Trial, error) {
	opts := options.Find().SetSort(bson.D{{Key: "trial_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		s.log.WithError(err).Error("Failed to query trials")
		return nil, fmt.Errorf("querying trials: %w", err)
	}
	trials := []*domain.Trial{}
	if err := cursor.All(ctx, &trials); err != nil {
		return nil, fmt.Errorf("decoding trials: %w", err)
	}
	return trials, nil
}

// MatchStore handles match record persistence
type MatchStore struct {
	coll *mongo.Collection
	log  *logrus.Logger
}

// NewMatchStore creates a new match store
func NewMatchStore(coll *mongo.Collection, logger *logrus.Logger) *MatchStore {
	return &MatchStore{coll: coll, log: logger}
}

// Create inserts the record for its (user, trial) pair. The unique index rejects a second
// record for the pair.
func (s *MatchStore) Create(ctx context.Context, match *domain.MatchRecord) error {
	now := time.Now().UTC()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, match); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("match %s/%s: %w", match.UserID, match.TrialID, domain.ErrDuplicate)
		}
		s.log.WithFields(logrus.Fields{
			"user_id":  match.UserID,
			"trial_id": match.TrialID,
			"error":    err,
		}).Error("Failed to create match record")
		return fmt.Errorf("creating match record: %w", err)
	}
	return nil
}

// Get retrieves the record for a (user, trial) pair
func (s *MatchStore) Get(ctx context.Context, userID, trialID string) (*domain.MatchRecord, error) {
	var rec domain.MatchRecord
	err := s.coll.FindOne(ctx, matchKeyFilter(userID, trialID)).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("match %s/%s: %w", userID, trialID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting match record: %w", err)
	}
	return &rec, nil
}

// ListByUser returns a patient's match records, best first
func (s *MatchStore) ListByUser(ctx context.Context, userID string) ([]*domain.MatchRecord, error) {
	return s.find(ctx, bson.M{"user_id": userID}, 0)
}

// FindForTrials returns match records for the trials, best first, capped at q.Limit
func (s *MatchStore) FindForTrials(ctx context.Context, q domain.MatchQuery) ([]*domain.MatchRecord, error) {
	if len(q.TrialIDs) == 0 {
		return []*domain.MatchRecord{}, nil
	}
	return s.find(ctx, matchFilter(q), q.Limit)
}

func (s *MatchStore) find(ctx context.Context, filter bson.M, limit int) ([]*domain.MatchRecord, error) {
	opts := options.Find().SetSort(matchSort())
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		s.log.WithError(err).Error("Failed to query match records")
		return nil, fmt.Errorf("querying match records: %w", err)
	}
	recs := []*domain.MatchRecord{}
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("decoding match records: %w", err)
	}
	return recs, nil
}

// UpdateEnrollment sets the enrollment status and transaction signature of one record
func (s *MatchStore) UpdateEnrollment(ctx context.Context, userID, trialID string, status domain.EnrollmentStatus, txSig string) error {
	update := bson.M{"$set": bson.M{
		"enrollment_status": status,
		"solana_tx_sig":     txSig,
		"updated_at":        time.Now().UTC(),
	}}
	res, err := s.coll.UpdateOne(ctx, matchKeyFilter(userID, trialID), update)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":  userID,
			"trial_id": trialID,
			"error":    err,
		}).Error("Failed to update enrollment")
		return fmt.Errorf("updating enrollment: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("match %s/%s: %w", userID, trialID, domain.ErrNotFound)
	}

	s.log.WithFields(logrus.Fields{
		"user_id":  userID,
		"trial_id": trialID,
		"status":   status,
	}).Info("Enrollment status updated")
	return nil
}
