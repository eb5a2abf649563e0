package domain

import (
	"context"
)

// ProfileStore persists anonymized patient profiles.
type ProfileStore interface {
	// Create inserts a new profile; a second profile for the same user returns ErrDuplicate.
	Create(ctx context.Context, profile *PatientProfile) error
	Get(ctx context.Context, userID string) (*PatientProfile, error)
	// GetMany batch-loads profiles keyed by user ID. Missing users are absent from the map.
	GetMany(ctx context.Context, userIDs []string) (map[string]*PatientProfile, error)
	// List returns up to limit profiles with user_id greater than afterUserID, ordered by
	// user_id. An empty afterUserID starts from the beginning.
	List(ctx context.Context, afterUserID string, limit int) ([]*PatientProfile, error)
}

// TrialStore persists trial metadata.
type TrialStore interface {
	Create(ctx context.Context, trial *Trial) error
	Get(ctx context.Context, trialID string) (*Trial, error)
	List(ctx context.Context, statuses []TrialStatus) ([]*Trial, error)
	FindByCondition(ctx context.Context, q TrialQuery) ([]*Trial, error)
}

// MatchStore persists precomputed match records.
type MatchStore interface {
	// Create inserts the record for a (user, trial) pair. An existing pair returns
	// ErrDuplicate and is left unchanged.
	Create(ctx context.Context, match *MatchRecord) error
	Get(ctx context.Context, userID, trialID string) (*MatchRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*MatchRecord, error)
	FindForTrials(ctx context.Context, q MatchQuery) ([]*MatchRecord, error)
	// UpdateEnrollment changes the only mutable fields of a match record.
	UpdateEnrollment(ctx context.Context, userID, trialID string, status EnrollmentStatus, txSig string) error
}

// Stores bundles the three collections a backend provides.
type Stores struct {
	Profiles ProfileStore
	Trials   TrialStore
	Matches  MatchStore
	// Ping checks backend reachability for health reporting.
	Ping  func(ctx context.Context) error
	Close func(ctx context.Context) error
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	GetSearchConfig() *SearchConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
