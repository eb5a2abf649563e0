package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/pharmatrace-server/internal/domain"
)

const (
	defaultSearchLimit   = 10
	maxSearchLimit       = 200
	defaultWorkingSetCap = 5000
)

var tracer = otel.Tracer("github.com/pharmatrace-server/internal/service")

// CandidateFilter answers researcher searches over profiles, trials and match records.
// It only reads from the stores.
type CandidateFilter struct {
	logger   *logrus.Logger
	profiles domain.ProfileStore
	trials   domain.TrialStore
	matches  domain.MatchStore
	cfg      domain.SearchConfig
}

// NewCandidateFilter creates a new candidate filter. Zero-valued search settings fall back to
// the defaults (limit 10, max 200, working set 5000).
func NewCandidateFilter(
	logger *logrus.Logger,
	profiles domain.ProfileStore,
	trials domain.TrialStore,
	matches domain.MatchStore,
	cfg domain.SearchConfig,
) *CandidateFilter {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultSearchLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = maxSearchLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	if cfg.WorkingSetCap <= 0 {
		cfg.WorkingSetCap = defaultWorkingSetCap
	}
	return &CandidateFilter{
		logger:   logger,
		profiles: profiles,
		trials:   trials,
		matches:  matches,
		cfg:      cfg,
	}
}

// searchCriteria is a validated and normalized CandidateSearchRequest.
type searchCriteria struct {
	limit     int
	minScore  int
	ageRange  AgeRange
	gender    string
	ethnicity string
	condition string
}

// validate normalizes a request without touching any store. Missing fields are reported
// together as domain.ValidationErrors.
func (f *CandidateFilter) validate(req *domain.CandidateSearchRequest) (*searchCriteria, error) {
	if req == nil {
		return nil, domain.ValidationErrors{
			domain.NewValidationError("demographics.age_range", "is required", nil),
			domain.NewValidationError("clinical.primary_condition", "is required", nil),
		}
	}

	var errs domain.ValidationErrors
	crit := &searchCriteria{
		limit:     f.clampLimit(req.Limit),
		minScore:  clampScore(req.MinScore),
		condition: strings.TrimSpace(req.Clinical.PrimaryCondition),
		ethnicity: strings.TrimSpace(req.Demographics.EthnicityGroup),
	}

	rawAge := strings.TrimSpace(req.Demographics.AgeRange)
	if rawAge == "" {
		errs = append(errs, domain.NewValidationError("demographics.age_range", "is required", rawAge))
	} else if r, ok := ParseAgeRange(rawAge); ok {
		crit.ageRange = r
	} else {
		errs = append(errs, domain.NewValidationError("demographics.age_range",
			`must be "<min>-<max>" or "<min>+"`, rawAge))
	}

	if crit.condition == "" {
		errs = append(errs, domain.NewValidationError("clinical.primary_condition", "is required", req.Clinical.PrimaryCondition))
	}

	if !KnownEthnicityGroup(crit.ethnicity) {
		errs = append(errs, domain.NewValidationError("demographics.ethnicity_group",
			fmt.Sprintf("unknown group, expected Any or one of: %s", strings.Join(EthnicityGroups(), ", ")),
			crit.ethnicity))
	}
	if isUnconstrained(crit.ethnicity) {
		crit.ethnicity = ""
	}

	// Gender is compared exactly as stored; only the "no filter" values are normalized.
	if !isUnconstrained(req.Demographics.Gender) {
		crit.gender = req.Demographics.Gender
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return crit, nil
}

func (f *CandidateFilter) clampLimit(v domain.LenientInt) int {
	if !v.Set || v.Value == 0 {
		return f.cfg.DefaultLimit
	}
	if v.Value < 1 {
		return 1
	}
	if v.Value > f.cfg.MaxLimit {
		return f.cfg.MaxLimit
	}
	return v.Value
}

func clampScore(v domain.LenientInt) int {
	if !v.Set || v.Value < 0 {
		return 0
	}
	if v.Value > 100 {
		return 100
	}
	return v.Value
}

// FindCandidates returns a bounded, score-ordered list of candidates for the request.
// Store failures are wrapped with domain.ErrDataAccess.
func (f *CandidateFilter) FindCandidates(ctx context.Context, req *domain.CandidateSearchRequest) (*domain.CandidateSearchResponse, error) {
	crit, err := f.validate(req)
	if err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "CandidateFilter.FindCandidates")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.condition", crit.condition),
		attribute.Int("search.limit", crit.limit),
		attribute.Int("search.min_score", crit.minScore),
	)

	resp, err := f.search(ctx, crit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "candidate search failed")
		f.logger.WithError(err).WithField("condition", crit.condition).Error("Candidate search failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.count", resp.Count), attribute.Bool("search.truncated", resp.Truncated))

	f.logger.WithFields(logrus.Fields{
		"condition": crit.condition,
		"count":     resp.Count,
		"reason":    resp.Reason,
		"truncated": resp.Truncated,
	}).Debug("Candidate search completed")
	return resp, nil
}

func (f *CandidateFilter) search(ctx context.Context, crit *searchCriteria) (*domain.CandidateSearchResponse, error) {
	resp := &domain.CandidateSearchResponse{OK: true, Candidates: []domain.Candidate{}}

	// Step 1: condition text is matched literally, case-insensitively
	trials, err := f.trials.FindByCondition(ctx, domain.TrialQuery{
		Pattern:  regexp.QuoteMeta(crit.condition),
		Statuses: domain.SearchableTrialStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load trials: %v", domain.ErrDataAccess, err)
	}
	if len(trials) == 0 {
		resp.Reason = domain.ReasonNoMatchingTrials
		return resp, nil
	}

	trialIDs := make([]string, 0, len(trials))
	for _, t := range trials {
		trialIDs = append(trialIDs, t.TrialID)
	}

	// Step 2: one extra record tells us whether the working set was cut off
	records, err := f.matches.FindForTrials(ctx, domain.MatchQuery{
		TrialIDs: trialIDs,
		MinScore: crit.minScore,
		Limit:    f.cfg.WorkingSetCap + 1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load match records: %v", domain.ErrDataAccess, err)
	}
	if len(records) > f.cfg.WorkingSetCap {
		records = records[:f.cfg.WorkingSetCap]
		resp.Truncated = true
	}

	// Step 3: batch-load profiles for the distinct users
	seen := make(map[string]struct{}, len(records))
	userIDs := make([]string, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		userIDs = append(userIDs, r.UserID)
	}
	profiles := map[string]*domain.PatientProfile{}
	if len(userIDs) > 0 {
		profiles, err = f.profiles.GetMany(ctx, userIDs)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load profiles: %v", domain.ErrDataAccess, err)
		}
	}

	// Step 4: demographic filters in score order
	for _, r := range records {
		if len(resp.Candidates) >= crit.limit {
			break
		}
		p, ok := profiles[r.UserID]
		if !ok || p == nil {
			continue
		}
		if !crit.admits(p) {
			continue
		}
		resp.Candidates = append(resp.Candidates, domain.Candidate{
			UserID:            r.UserID,
			TrialID:           r.TrialID,
			Score:             r.MatchScore,
			Status:            r.EnrollmentStatus,
			Reasoning:         r.MatchReasoning,
			Demographics:      p.Demographics,
			MedicalConditions: nonNil(p.MedicalConditions),
			HealthMetrics:     p.HealthMetrics,
		})
	}

	resp.Count = len(resp.Candidates)
	if resp.Count == 0 {
		resp.Reason = domain.ReasonNoQualifyingCandidates
	}
	return resp, nil
}

// admits applies the gender, ethnicity and age filters to one profile. A profile whose own
// age group does not parse is excluded.
func (c *searchCriteria) admits(p *domain.PatientProfile) bool {
	if c.gender != "" && p.Demographics.Gender != c.gender {
		return false
	}
	if c.ethnicity != "" && !MatchesEthnicityGroup(p.Demographics.Ethnicity, c.ethnicity) {
		return false
	}
	userAge, ok := ParseAgeRange(p.Demographics.AgeGroup)
	if !ok {
		return false
	}
	return c.ageRange.Overlaps(userAge)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
