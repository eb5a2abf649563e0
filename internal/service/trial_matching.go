package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pharmatrace-server/internal/domain"
)

// profilePageSize bounds each profile read while scanning the pool for a trial.
const profilePageSize = 100

// TrialMatchResult summarises scoring the stored patient pool against one trial.
type TrialMatchResult struct {
	TrialID   string                `json:"trial_id"`
	Evaluated int                   `json:"evaluated"`
	Skipped   int                   `json:"skipped"`
	Failed    int                   `json:"failed"`
	Matched   int                   `json:"matched"`
	Matches   []*domain.MatchRecord `json:"matches"`
}

// MatchTrial scores every stored profile that has no record for the trial yet and persists
// the qualifying scores. Profiles are read page by page; scoring runs on a bounded number of
// workers. A failed score is counted and does not stop the scan.
func (s *IntakeService) MatchTrial(ctx context.Context, trialID string) (*TrialMatchResult, error) {
	ctx, span := tracer.Start(ctx, "IntakeService.MatchTrial")
	defer span.End()

	trial, err := s.trials.Get(ctx, trialID)
	if err != nil {
		return nil, fmt.Errorf("failed to load trial %s: %w", trialID, err)
	}
	if !hasTrialStatus(domain.SearchableTrialStatuses, trial.Status) {
		return nil, domain.NewValidationError("status", "only open or recruiting trials can be matched", trial.Status)
	}

	result := &TrialMatchResult{TrialID: trial.TrialID, Matches: []*domain.MatchRecord{}}
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.workers)
	)

	after := ""
	for {
		page, err := s.profiles.List(ctx, after, profilePageSize)
		if err != nil {
			wg.Wait()
			return nil, fmt.Errorf("%w: failed to list profiles: %v", domain.ErrDataAccess, err)
		}
		if len(page) == 0 {
			break
		}
		after = page[len(page)-1].UserID

		for _, profile := range page {
			_, err := s.matches.Get(ctx, profile.UserID, trial.TrialID)
			if err == nil {
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				wg.Wait()
				return nil, fmt.Errorf("%w: failed to check match %s/%s: %v", domain.ErrDataAccess, profile.UserID, trial.TrialID, err)
			}

			sem <- struct{}{}
			wg.Add(1)
			go func(profile *domain.PatientProfile) {
				defer wg.Done()
				defer func() { <-sem }()

				recs, err := s.scoreAgainst(ctx, profile, trial)

				mu.Lock()
				defer mu.Unlock()
				result.Evaluated++
				if err != nil {
					result.Failed++
					s.logger.WithError(err).WithFields(logrus.Fields{
						"user_id":  profile.UserID,
						"trial_id": trial.TrialID,
					}).Warn("Trial scoring failed")
					return
				}
				result.Matches = append(result.Matches, recs...)
			}(profile)
		}

		if len(page) < profilePageSize {
			break
		}
	}
	wg.Wait()

	sortMatchRecords(result.Matches)
	result.Matched = len(result.Matches)
	span.SetAttributes(
		attribute.Int("evaluated", result.Evaluated),
		attribute.Int("matched", result.Matched),
	)

	s.logger.WithFields(logrus.Fields{
		"trial_id":  trial.TrialID,
		"evaluated": result.Evaluated,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"matched":   result.Matched,
	}).Info("Matched trial to stored patients")
	return result, nil
}

func (s *IntakeService) scoreAgainst(ctx context.Context, profile *domain.PatientProfile, trial *domain.Trial) ([]*domain.MatchRecord, error) {
	scores, err := s.analyzer.Match(ctx, profile, []*domain.Trial{trial})
	if err != nil {
		return nil, err
	}
	return s.storeScores(ctx, profile.UserID, scores)
}

func hasTrialStatus(statuses []domain.TrialStatus, status domain.TrialStatus) bool {
	for _, st := range statuses {
		if st == status {
			return true
		}
	}
	return false
}

func sortMatchRecords(recs []*domain.MatchRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].MatchScore != recs[j].MatchScore {
			return recs[i].MatchScore > recs[j].MatchScore
		}
		return recs[i].UserID < recs[j].UserID
	})
}
