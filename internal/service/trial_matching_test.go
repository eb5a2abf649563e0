package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace-server/internal/cache"
	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/extractor"
	"github.com/pharmatrace-server/internal/memstore"
)

// poolAnalyzer scores by user so one trial can split the pool.
type poolAnalyzer struct {
	mu     sync.Mutex
	scores map[string]int
	fail   map[string]bool
	seen   []string
}

func (p *poolAnalyzer) Extract(context.Context, []byte) (*extractor.PatientData, error) {
	return nil, errors.New("not used")
}

func (p *poolAnalyzer) Match(_ context.Context, profile *domain.PatientProfile, trials []*domain.Trial) ([]extractor.TrialScore, error) {
	p.mu.Lock()
	p.seen = append(p.seen, profile.UserID)
	p.mu.Unlock()
	if p.fail[profile.UserID] {
		return nil, errors.New("upstream timeout")
	}
	out := []extractor.TrialScore{}
	for _, t := range trials {
		if s, ok := p.scores[profile.UserID]; ok {
			out = append(out, extractor.TrialScore{TrialID: t.TrialID, MatchScore: s, QualifyingFactors: []string{"age in range"}})
		}
	}
	return out, nil
}

func newTrialMatchFixture(t *testing.T, analyzer *poolAnalyzer, users ...string) (*domain.Stores, *IntakeService) {
	t.Helper()
	stores := memstore.New().Stores()
	ctx := context.Background()
	for _, u := range users {
		require.NoError(t, stores.Profiles.Create(ctx, &domain.PatientProfile{
			UserID:       u,
			Demographics: domain.Demographics{AgeGroup: "40-49", Gender: "Female"},
			AnonymizedAt: time.Now().UTC(),
		}))
	}
	for _, tr := range []*domain.Trial{
		{TrialID: "NCT100", Title: "Late Registration", Status: domain.TrialRecruiting},
		{TrialID: "NCT200", Title: "Closed Study", Status: domain.TrialClosed},
	} {
		require.NoError(t, stores.Trials.Create(ctx, tr))
	}
	c := cache.NewExtractionCache(testLogger(), cache.NewMemoryCache(16, time.Hour), nil)
	svc := NewIntakeService(testLogger(), stores.Profiles, stores.Trials, stores.Matches, analyzer, c,
		domain.IntakeConfig{MatchThreshold: 50, BatchConcurrency: 3})
	return stores, svc
}

func TestMatchTrial_ScoresExistingPool(t *testing.T) {
	analyzer := &poolAnalyzer{scores: map[string]int{"alice": 91, "bob": 50, "carol": 49}}
	stores, svc := newTrialMatchFixture(t, analyzer, "alice", "bob", "carol", "dave")
	ctx := context.Background()

	res, err := svc.MatchTrial(ctx, "NCT100")
	require.NoError(t, err)
	assert.Equal(t, "NCT100", res.TrialID)
	assert.Equal(t, 4, res.Evaluated)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	require.Equal(t, 2, res.Matched)
	assert.Equal(t, "alice", res.Matches[0].UserID)
	assert.Equal(t, "bob", res.Matches[1].UserID, "threshold is inclusive")

	rec, err := stores.Matches.Get(ctx, "alice", "NCT100")
	require.NoError(t, err)
	assert.Equal(t, 91, rec.MatchScore)
	assert.Equal(t, domain.EnrollmentMatched, rec.EnrollmentStatus)
	assert.Contains(t, rec.MatchReasoning, "age in range")

	_, err = stores.Matches.Get(ctx, "carol", "NCT100")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMatchTrial_KeepsExistingRecords(t *testing.T) {
	analyzer := &poolAnalyzer{scores: map[string]int{"alice": 60, "bob": 75}}
	stores, svc := newTrialMatchFixture(t, analyzer, "alice", "bob")
	ctx := context.Background()

	require.NoError(t, stores.Matches.Create(ctx, &domain.MatchRecord{
		UserID: "alice", TrialID: "NCT100", MatchScore: 97, MatchReasoning: "earlier run",
		EnrollmentStatus: domain.EnrollmentMatched,
	}))
	require.NoError(t, stores.Matches.UpdateEnrollment(ctx, "alice", "NCT100", domain.EnrollmentConsentSigned, "sig-1"))

	res, err := svc.MatchTrial(ctx, "NCT100")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Evaluated)
	assert.Equal(t, []string{"bob"}, analyzer.seen, "paired users are not rescored")

	rec, err := stores.Matches.Get(ctx, "alice", "NCT100")
	require.NoError(t, err)
	assert.Equal(t, 97, rec.MatchScore)
	assert.Equal(t, "earlier run", rec.MatchReasoning)
	assert.Equal(t, domain.EnrollmentConsentSigned, rec.EnrollmentStatus)
	assert.Equal(t, "sig-1", rec.SolanaTxSig)

	again, err := svc.MatchTrial(ctx, "NCT100")
	require.NoError(t, err)
	assert.Equal(t, 2, again.Skipped)
	assert.Equal(t, 0, again.Matched)
}

func TestMatchTrial_FailuresAreCounted(t *testing.T) {
	analyzer := &poolAnalyzer{
		scores: map[string]int{"alice": 80, "bob": 80},
		fail:   map[string]bool{"bob": true},
	}
	stores, svc := newTrialMatchFixture(t, analyzer, "alice", "bob")

	res, err := svc.MatchTrial(context.Background(), "NCT100")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evaluated)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Matched)

	_, err = stores.Matches.Get(context.Background(), "bob", "NCT100")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMatchTrial_PagesThroughPool(t *testing.T) {
	users := make([]string, 0, 2*profilePageSize+5)
	scores := map[string]int{}
	for i := 0; i < 2*profilePageSize+5; i++ {
		u := fmt.Sprintf("user-%04d", i)
		users = append(users, u)
		scores[u] = 70
	}
	analyzer := &poolAnalyzer{scores: scores}
	_, svc := newTrialMatchFixture(t, analyzer, users...)

	res, err := svc.MatchTrial(context.Background(), "NCT100")
	require.NoError(t, err)
	assert.Equal(t, len(users), res.Evaluated)
	assert.Equal(t, len(users), res.Matched)
	assert.Len(t, analyzer.seen, len(users))
}

func TestMatchTrial_Rejections(t *testing.T) {
	analyzer := &poolAnalyzer{scores: map[string]int{"alice": 80}}
	_, svc := newTrialMatchFixture(t, analyzer, "alice")
	ctx := context.Background()

	_, err := svc.MatchTrial(ctx, "NCT404")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.MatchTrial(ctx, "NCT200")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "status", vErr.Field)
	assert.Empty(t, analyzer.seen)
}
