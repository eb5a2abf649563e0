package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmatrace-server/internal/cache"
	"github.com/pharmatrace-server/internal/domain"
	"github.com/pharmatrace-server/internal/extractor"
	"github.com/pharmatrace-server/internal/memstore"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	data     *extractor.PatientData
	scores   map[string]int
	extracts atomic.Int32
	extErr   error
	matchErr error
	matched  [][]string
}

func (f *fakeAnalyzer) Extract(_ context.Context, _ []byte) (*extractor.PatientData, error) {
	f.extracts.Add(1)
	if f.extErr != nil {
		return nil, f.extErr
	}
	d := *f.data
	return &d, nil
}

func (f *fakeAnalyzer) Match(_ context.Context, _ *domain.PatientProfile, trials []*domain.Trial) ([]extractor.TrialScore, error) {
	f.mu.Lock()
	ids := make([]string, 0, len(trials))
	for _, t := range trials {
		ids = append(ids, t.TrialID)
	}
	f.matched = append(f.matched, ids)
	f.mu.Unlock()
	if f.matchErr != nil {
		return nil, f.matchErr
	}
	out := []extractor.TrialScore{}
	for _, t := range trials {
		if s, ok := f.scores[t.TrialID]; ok {
			out = append(out, extractor.TrialScore{TrialID: t.TrialID, MatchScore: s, QualifyingFactors: []string{"HbA1c in range"}})
		}
	}
	return out, nil
}

func medicalRecord(age int) *extractor.PatientData {
	return &extractor.PatientData{
		IsMedicalRecord: true,
		DocumentType:    "medical record",
		Confidence:      0.95,
		Age:             &age,
		Ethnicity:       "Black",
		Gender:          "Male",
		Conditions:      []string{"Type 2 Diabetes"},
		BMI:             31.2,
		BloodPressure:   "142/91",
		HbA1c:           8.1,
	}
}

var samplePDF = []byte("%PDF-1.7\n1 0 obj\n<<>>\nendobj\n")

type intakeFixture struct {
	stores   *domain.Stores
	analyzer *fakeAnalyzer
	intake   *IntakeService
}

func newIntakeFixture(t *testing.T, data *extractor.PatientData) *intakeFixture {
	t.Helper()
	stores := memstore.New().Stores()
	ctx := context.Background()
	for _, tr := range []*domain.Trial{
		{TrialID: "NCT001", Title: "Diabetes GLP-1", Status: domain.TrialRecruiting},
		{TrialID: "NCT002", Title: "Hypertension", Status: domain.TrialOpen},
		{TrialID: "NCT003", Title: "Closed Study", Status: domain.TrialClosed},
	} {
		require.NoError(t, stores.Trials.Create(ctx, tr))
	}
	analyzer := &fakeAnalyzer{data: data, scores: map[string]int{"NCT001": 88, "NCT002": 49}}
	c := cache.NewExtractionCache(testLogger(), cache.NewMemoryCache(16, time.Hour), nil)
	intake := NewIntakeService(testLogger(), stores.Profiles, stores.Trials, stores.Matches, analyzer, c,
		domain.IntakeConfig{MatchThreshold: 50})
	return &intakeFixture{stores: stores, analyzer: analyzer, intake: intake}
}

func TestIntake_ProcessRecord(t *testing.T) {
	f := newIntakeFixture(t, medicalRecord(57))
	ctx := context.Background()

	res, err := f.intake.ProcessRecord(ctx, " 7xKXwallet ", samplePDF)
	require.NoError(t, err)
	assert.Equal(t, "7xKXwallet", res.UserID)
	assert.Equal(t, "50-59", res.Profile.Demographics.AgeGroup)
	assert.Equal(t, []string{}, res.Profile.CurrentMedications)
	assert.False(t, res.Profile.AnonymizedAt.IsZero())

	require.Len(t, res.Matches, 1, "score below threshold is not stored")
	assert.Equal(t, "NCT001", res.Matches[0].TrialID)
	assert.Equal(t, domain.EnrollmentMatched, res.Matches[0].EnrollmentStatus)
	assert.Equal(t, []string{"NCT001", "NCT002"}, f.analyzer.matched[0], "closed trials are not scored")

	stored, err := f.stores.Matches.Get(ctx, "7xKXwallet", "NCT001")
	require.NoError(t, err)
	assert.Equal(t, 88, stored.MatchScore)
	assert.Contains(t, stored.MatchReasoning, "HbA1c in range")

	_, err = f.stores.Matches.Get(ctx, "7xKXwallet", "NCT002")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIntake_DuplicateUpload(t *testing.T) {
	f := newIntakeFixture(t, medicalRecord(40))
	ctx := context.Background()

	_, err := f.intake.ProcessRecord(ctx, "wallet-1", samplePDF)
	require.NoError(t, err)
	_, err = f.intake.ProcessRecord(ctx, "wallet-1", samplePDF)
	assert.ErrorIs(t, err, domain.ErrDuplicate)
	assert.Equal(t, int32(1), f.analyzer.extracts.Load(), "second upload served from cache")
	assert.Len(t, f.analyzer.matched, 1)
}

func TestIntake_Rejections(t *testing.T) {
	ctx := context.Background()

	f := newIntakeFixture(t, medicalRecord(40))
	_, err := f.intake.ProcessRecord(ctx, "", samplePDF)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "user_id", ve.Field)

	_, err = f.intake.ProcessRecord(ctx, "wallet", []byte("GIF89a"))
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "file", ve.Field)
	assert.Zero(t, f.analyzer.extracts.Load())

	f = newIntakeFixture(t, &extractor.PatientData{IsMedicalRecord: false, DocumentType: "cat photo", Confidence: 0.99})
	_, err = f.intake.ProcessRecord(ctx, "wallet", samplePDF)
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Message, "cat photo")
	_, err = f.stores.Profiles.Get(ctx, "wallet")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	f = newIntakeFixture(t, nil)
	f.analyzer.extErr = fmt.Errorf("upstream: %w", extractor.ErrMalformedResponse)
	_, err = f.intake.ProcessRecord(ctx, "wallet", samplePDF)
	assert.ErrorIs(t, err, extractor.ErrMalformedResponse)
}

func TestIntake_MatchFailureKeepsProfile(t *testing.T) {
	f := newIntakeFixture(t, medicalRecord(33))
	f.analyzer.matchErr = errors.New("circuit breaker is open")
	ctx := context.Background()

	res, err := f.intake.ProcessRecord(ctx, "wallet", samplePDF)
	require.NoError(t, err)
	assert.NotEmpty(t, res.MatchError)
	assert.Empty(t, res.Matches)

	p, err := f.stores.Profiles.Get(ctx, "wallet")
	require.NoError(t, err)
	assert.Equal(t, "30-39", p.Demographics.AgeGroup)
}

func TestIntake_UnknownAge(t *testing.T) {
	data := medicalRecord(0)
	data.Age = nil
	f := newIntakeFixture(t, data)

	res, err := f.intake.ProcessRecord(context.Background(), "wallet", samplePDF)
	require.NoError(t, err)
	assert.Empty(t, res.Profile.Demographics.AgeGroup)
}
