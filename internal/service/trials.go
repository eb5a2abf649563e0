package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmatrace-server/internal/domain"
)

// TrialService registers and lists trials.
type TrialService struct {
	logger *logrus.Logger
	trials domain.TrialStore
}

func NewTrialService(logger *logrus.Logger, trials domain.TrialStore) *TrialService {
	return &TrialService{logger: logger, trials: trials}
}

// Register stores a new trial. A missing trial_id is generated as NCT plus 8 hex characters
// and a missing status defaults to Recruiting.
func (s *TrialService) Register(ctx context.Context, trial *domain.Trial) (*domain.Trial, error) {
	if trial == nil {
		return nil, domain.NewValidationError("trial", "is required", nil)
	}
	t := *trial
	t.TrialID = strings.TrimSpace(t.TrialID)
	if t.TrialID == "" {
		t.TrialID = shortID("NCT")
	}
	if t.Status == "" {
		t.Status = domain.TrialRecruiting
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	if err := s.trials.Create(ctx, &t); err != nil {
		return nil, fmt.Errorf("failed to register trial %s: %w", t.TrialID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"trial_id": t.TrialID,
		"status":   t.Status,
	}).Info("Registered trial")
	return &t, nil
}

// List returns trials, optionally restricted to one status.
func (s *TrialService) List(ctx context.Context, status string) ([]*domain.Trial, error) {
	var statuses []domain.TrialStatus
	if status != "" {
		st := domain.TrialStatus(status)
		if !st.IsValid() {
			return nil, domain.NewValidationError("status", "must be one of Open, Recruiting, Closed", status)
		}
		statuses = []domain.TrialStatus{st}
	}

	trials, err := s.trials.List(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list trials: %v", domain.ErrDataAccess, err)
	}
	return trials, nil
}
