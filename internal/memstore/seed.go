package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pharmatrace-server/internal/domain"
)

// Seed is the JSON document the memory driver can start from.
type Seed struct {
	Profiles []domain.PatientProfile `json:"profiles"`
	Trials   []domain.Trial          `json:"trials"`
	Matches  []domain.MatchRecord    `json:"matches"`
}

// LoadSeed adds every entity in r to the store. Duplicates fail the load.
func (s *Store) LoadSeed(r io.Reader) error {
	var seed Seed
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("failed to decode seed: %w", err)
	}

	ctx := context.Background()
	stores := s.Stores()
	for i := range seed.Profiles {
		if err := stores.Profiles.Create(ctx, &seed.Profiles[i]); err != nil {
			return err
		}
	}
	for i := range seed.Trials {
		if err := seed.Trials[i].Validate(); err != nil {
			return fmt.Errorf("seed trial %d: %w", i, err)
		}
		if err := stores.Trials.Create(ctx, &seed.Trials[i]); err != nil {
			return err
		}
	}
	for i := range seed.Matches {
		m := &seed.Matches[i]
		if m.EnrollmentStatus == "" {
			m.EnrollmentStatus = domain.EnrollmentMatched
		}
		if err := m.Validate(); err != nil {
			return fmt.Errorf("seed match %d: %w", i, err)
		}
		if err := stores.Matches.Create(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// LoadSeedFile loads a seed file. The returned error wraps os.ErrNotExist when path is missing.
func (s *Store) LoadSeedFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed: %w", err)
	}
	defer f.Close()
	return s.LoadSeed(f)
}
