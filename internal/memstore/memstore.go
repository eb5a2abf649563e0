// Package memstore keeps profiles, trials and match records in process memory. It backs the
// "memory" storage driver used for local runs and the handler tests.
package memstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/pharmatrace-server/internal/domain"
)

// Store implements the profile, trial and match stores over maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]domain.PatientProfile
	trials   map[string]domain.Trial
	matches  map[matchKey]domain.MatchRecord
	now      func() time.Time
}

type matchKey struct {
	user  string
	trial string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		profiles: make(map[string]domain.PatientProfile),
		trials:   make(map[string]domain.Trial),
		matches:  make(map[matchKey]domain.MatchRecord),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Stores exposes the store through the domain bundle.
func (s *Store) Stores() *domain.Stores {
	return &domain.Stores{
		Profiles: ProfileStore{s},
		Trials:   TrialStore{s},
		Matches:  MatchStore{s},
		Ping:     func(context.Context) error { return nil },
		Close:    func(context.Context) error { return nil },
	}
}

// ProfileStore is the domain.ProfileStore view of a Store.
type ProfileStore struct{ s *Store }

func (p ProfileStore) Create(_ context.Context, profile *domain.PatientProfile) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.profiles[profile.UserID]; ok {
		return fmt.Errorf("profile %s: %w", profile.UserID, domain.ErrDuplicate)
	}
	if profile.AnonymizedAt.IsZero() {
		profile.AnonymizedAt = p.s.now()
	}
	p.s.profiles[profile.UserID] = cloneProfile(*profile)
	return nil
}

func (p ProfileStore) Get(_ context.Context, userID string) (*domain.PatientProfile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	prof, ok := p.s.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
	}
	out := cloneProfile(prof)
	return &out, nil
}

func (p ProfileStore) GetMany(_ context.Context, userIDs []string) (map[string]*domain.PatientProfile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	out := make(map[string]*domain.PatientProfile, len(userIDs))
	for _, id := range userIDs {
		if prof, ok := p.s.profiles[id]; ok {
			c := cloneProfile(prof)
			out[id] = &c
		}
	}
	return out, nil
}

func (p ProfileStore) List(_ context.Context, afterUserID string, limit int) ([]*domain.PatientProfile, error) {
	p.s.mu.RLock()
	ids := make([]string, 0, len(p.s.profiles))
	for id := range p.s.profiles {
		if id > afterUserID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*domain.PatientProfile, 0, len(ids))
	for _, id := range ids {
		c := cloneProfile(p.s.profiles[id])
		out = append(out, &c)
	}
	p.s.mu.RUnlock()
	return out, nil
}

// TrialStore is the domain.TrialStore view of a Store.
type TrialStore struct{ s *Store }

func (t TrialStore) Create(_ context.Context, trial *domain.Trial) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.trials[trial.TrialID]; ok {
		return fmt.Errorf("trial %s: %w", trial.TrialID, domain.ErrDuplicate)
	}
	t.s.trials[trial.TrialID] = cloneTrial(*trial)
	return nil
}

func (t TrialStore) Get(_ context.Context, trialID string) (*domain.Trial, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tr, ok := t.s.trials[trialID]
	if !ok {
		return nil, fmt.Errorf("trial %s: %w", trialID, domain.ErrNotFound)
	}
	out := cloneTrial(tr)
	return &out, nil
}

func (t TrialStore) List(_ context.Context, statuses []domain.TrialStatus) ([]*domain.Trial, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]*domain.Trial, 0, len(t.s.trials))
	for _, tr := range t.s.trials {
		if len(statuses) > 0 && !hasStatus(statuses, tr.Status) {
			continue
		}
		c := cloneTrial(tr)
		out = append(out, &c)
	}
	sortTrials(out)
	return out, nil
}

func (t TrialStore) FindByCondition(_ context.Context, q domain.TrialQuery) ([]*domain.Trial, error) {
	re, err := regexp.Compile("(?i)" + q.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid condition pattern: %w", err)
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []*domain.Trial
	for _, tr := range t.s.trials {
		if len(q.Statuses) > 0 && !hasStatus(q.Statuses, tr.Status) {
			continue
		}
		if !trialMatches(re, tr) {
			continue
		}
		c := cloneTrial(tr)
		out = append(out, &c)
	}
	sortTrials(out)
	return out, nil
}

func trialMatches(re *regexp.Regexp, tr domain.Trial) bool {
	if re.MatchString(tr.Title) {
		return true
	}
	for _, c := range tr.EligibilityCriteria.RequiredConditions {
		if re.MatchString(c) {
			return true
		}
	}
	return false
}

// MatchStore is the domain.MatchStore view of a Store.
type MatchStore struct{ s *Store }

func (m MatchStore) Create(_ context.Context, match *domain.MatchRecord) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := matchKey{match.UserID, match.TrialID}
	if _, ok := m.s.matches[key]; ok {
		return fmt.Errorf("match %s/%s: %w", match.UserID, match.TrialID, domain.ErrDuplicate)
	}
	now := m.s.now()
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	match.UpdatedAt = now
	m.s.matches[key] = *match
	return nil
}

func (m MatchStore) Get(_ context.Context, userID, trialID string) (*domain.MatchRecord, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	rec, ok := m.s.matches[matchKey{userID, trialID}]
	if !ok {
		return nil, fmt.Errorf("match %s/%s: %w", userID, trialID, domain.ErrNotFound)
	}
	return &rec, nil
}

func (m MatchStore) ListByUser(_ context.Context, userID string) ([]*domain.MatchRecord, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var out []*domain.MatchRecord
	for k, rec := range m.s.matches {
		if k.user == userID {
			r := rec
			out = append(out, &r)
		}
	}
	SortMatches(out)
	return out, nil
}

func (m MatchStore) FindForTrials(_ context.Context, q domain.MatchQuery) ([]*domain.MatchRecord, error) {
	wanted := make(map[string]struct{}, len(q.TrialIDs))
	for _, id := range q.TrialIDs {
		wanted[id] = struct{}{}
	}
	m.s.mu.RLock()
	var out []*domain.MatchRecord
	for k, rec := range m.s.matches {
		if _, ok := wanted[k.trial]; !ok || rec.MatchScore < q.MinScore {
			continue
		}
		r := rec
		out = append(out, &r)
	}
	m.s.mu.RUnlock()

	SortMatches(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m MatchStore) UpdateEnrollment(_ context.Context, userID, trialID string, status domain.EnrollmentStatus, txSig string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	key := matchKey{userID, trialID}
	rec, ok := m.s.matches[key]
	if !ok {
		return fmt.Errorf("match %s/%s: %w", userID, trialID, domain.ErrNotFound)
	}
	rec.EnrollmentStatus = status
	rec.SolanaTxSig = txSig
	rec.UpdatedAt = m.s.now()
	m.s.matches[key] = rec
	return nil
}

// SortMatches orders records by score descending, then user_id and trial_id ascending.
func SortMatches(recs []*domain.MatchRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.TrialID < b.TrialID
	})
}

func sortTrials(trials []*domain.Trial) {
	sort.Slice(trials, func(i, j int) bool { return trials[i].TrialID < trials[j].TrialID })
}

func hasStatus(statuses []domain.TrialStatus, s domain.TrialStatus) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

func cloneProfile(p domain.PatientProfile) domain.PatientProfile {
	p.MedicalConditions = append([]string(nil), p.MedicalConditions...)
	p.CurrentMedications = append([]string(nil), p.CurrentMedications...)
	return p
}

func cloneTrial(t domain.Trial) domain.Trial {
	t.EligibilityCriteria.RequiredConditions = append([]string(nil), t.EligibilityCriteria.RequiredConditions...)
	t.EligibilityCriteria.ExcludedConditions = append([]string(nil), t.EligibilityCriteria.ExcludedConditions...)
	return t
}
