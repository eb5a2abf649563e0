package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pharmatrace-server/internal/cache"
	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/extractor"
)

const defaultMatchThreshold = 50

var pdfMagic = []byte("%PDF-")

// RecordAnalyzer reads medical records and scores patients against trials.
type RecordAnalyzer interface {
	Extract(ctx context.Context, pdf []byte) (*extractor.PatientData, error)
	Match(ctx context.Context, profile *domain.PatientProfile, trials []*domain.Trial) ([]extractor.TrialScore, error)
}

// ExtractionCache remembers extraction results by document key.
type ExtractionCache interface {
	Get(ctx context.Context, key string) (*extractor.PatientData, bool)
	Set(ctx context.Context, key string, data *extractor.PatientData)
}

// UploadResult is what a single record upload produces.
type UploadResult struct {
	UserID       string                 `json:"user_id"`
	DocumentType string                 `json:"document_type"`
	Profile      *domain.PatientProfile `json:"profile"`
	Matches      []*domain.MatchRecord  `json:"matches"`
	MatchError   string                 `json:"match_error,omitempty"`
	Cached       bool                   `json:"cached"`
}

// IntakeService turns an uploaded medical record into a profile and match records.
type IntakeService struct {
	logger    *logrus.Logger
	profiles  domain.ProfileStore
	trials    domain.TrialStore
	matches   domain.MatchStore
	analyzer  RecordAnalyzer
	cache     ExtractionCache
	threshold int
	workers   int
	now       func() time.Time
}

// NewIntakeService creates an intake service. cache may be nil.
func NewIntakeService(
	logger *logrus.Logger,
	profiles domain.ProfileStore,
	trials domain.TrialStore,
	matches domain.MatchStore,
	analyzer RecordAnalyzer,
	cache ExtractionCache,
	cfg domain.IntakeConfig,
) *IntakeService {
	threshold := cfg.MatchThreshold
	if threshold <= 0 || threshold > 100 {
		threshold = defaultMatchThreshold
	}
	workers := cfg.BatchConcurrency
	if workers <= 0 {
		workers = defaultBatchConcurrency
	}
	return &IntakeService{
		logger:    logger,
		profiles:  profiles,
		trials:    trials,
		matches:   matches,
		analyzer:  analyzer,
		cache:     cache,
		threshold: threshold,
		workers:   workers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessRecord extracts, anonymizes, stores and matches one patient's record. A second upload
// for the same user fails with domain.ErrDuplicate before any match is written.
func (s *IntakeService) ProcessRecord(ctx context.Context, userID string, pdf []byte) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "IntakeService.ProcessRecord")
	defer span.End()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "is required", userID)
	}
	if !bytes.HasPrefix(pdf, pdfMagic) {
		return nil, domain.NewValidationError("file", "must be a PDF document", nil)
	}

	// Step 1: Extract, reusing a cached result for identical documents
	key := cache.Key(pdf)
	data, cached := s.lookup(ctx, key)
	if !cached {
		var err error
		data, err = s.analyzer.Extract(ctx, pdf)
		if err != nil {
			return nil, fmt.Errorf("failed to extract record: %w", err)
		}
		if s.cache != nil {
			s.cache.Set(ctx, key, data)
		}
	}
	span.SetAttributes(attribute.Bool("cache_hit", cached))

	if !data.Accepted() {
		docType := data.DocumentType
		if docType == "" {
			docType = "unknown"
		}
		return nil, domain.NewValidationError("file",
			fmt.Sprintf("this appears to be a %s, please upload a medical record", docType), docType)
	}

	// Step 2: Store the anonymized profile
	profile := s.buildProfile(userID, data)
	if err := s.profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("failed to store profile for %s: %w", userID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"age_group":     profile.Demographics.AgeGroup,
		"conditions":    len(profile.MedicalConditions),
		"document_type": data.DocumentType,
	}).Info("Stored patient profile")

	result := &UploadResult{
		UserID:       userID,
		DocumentType: data.DocumentType,
		Profile:      profile,
		Matches:      []*domain.MatchRecord{},
		Cached:       cached,
	}

	// Step 3: Score against searchable trials and persist the qualifying ones
	matches, err := s.matchProfile(ctx, profile)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("Trial matching failed")
		result.MatchError = "trial matching is temporarily unavailable"
		return result, nil
	}
	result.Matches = matches
	return result, nil
}

func (s *IntakeService) lookup(ctx context.Context, key string) (*extractor.PatientData, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, key)
}

// buildProfile keeps only coarse attributes. An unknown age leaves the age group empty, which
// excludes the profile from age-filtered searches.
func (s *IntakeService) buildProfile(userID string, data *extractor.PatientData) *domain.PatientProfile {
	ageGroup := ""
	if data.Age != nil && *data.Age >= 0 {
		ageGroup = domain.AgeGroupFor(*data.Age)
	}
	return &domain.PatientProfile{
		UserID: userID,
		Demographics: domain.Demographics{
			AgeGroup:  ageGroup,
			Ethnicity: strings.TrimSpace(data.Ethnicity),
			Gender:    strings.TrimSpace(data.Gender),
		},
		MedicalConditions:  nonNil(data.Conditions),
		CurrentMedications: nonNil(data.Medications),
		HealthMetrics: domain.HealthMetrics{
			BMI:            data.BMI,
			BloodPressure:  data.BloodPressure,
			LastHbA1cLevel: data.HbA1c,
		},
		AnonymizedAt: s.now(),
	}
}

func (s *IntakeService) matchProfile(ctx context.Context, profile *domain.PatientProfile) ([]*domain.MatchRecord, error) {
	trials, err := s.trials.List(ctx, domain.SearchableTrialStatuses)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load trials: %v", domain.ErrDataAccess, err)
	}
	if len(trials) == 0 {
		return []*domain.MatchRecord{}, nil
	}

	scores, err := s.analyzer.Match(ctx, profile, trials)
	if err != nil {
		return nil, err
	}

	out, err := s.storeScores(ctx, profile.UserID, scores)
	if err != nil {
		return out, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": profile.UserID,
		"trials":  len(trials),
		"matched": len(out),
	}).Info("Matched patient to trials")
	return out, nil
}

// storeScores persists the scores at or above the threshold as Matched records. A pair that
// already has a record keeps it.
func (s *IntakeService) storeScores(ctx context.Context, userID string, scores []extractor.TrialScore) ([]*domain.MatchRecord, error) {
	out := make([]*domain.MatchRecord, 0, len(scores))
	for _, sc := range scores {
		if sc.MatchScore < s.threshold {
			continue
		}
		rec := &domain.MatchRecord{
			UserID:           userID,
			TrialID:          sc.TrialID,
			MatchScore:       sc.MatchScore,
			MatchReasoning:   sc.Reasoning(),
			EnrollmentStatus: domain.EnrollmentMatched,
		}
		if err := s.matches.Create(ctx, rec); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				continue
			}
			return out, fmt.Errorf("%w: failed to store match %s: %v", domain.ErrDataAccess, sc.TrialID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}
