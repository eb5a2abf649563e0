// Package domain contains the core entities shared by the stores, the candidate filter and the
// HTTP/MCP surfaces: patient profiles, trial metadata and precomputed match records.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// TrialStatus is the recruitment state of a clinical trial.
type TrialStatus string

const (
	TrialOpen       TrialStatus = "Open"
	TrialRecruiting TrialStatus = "Recruiting"
	TrialClosed     TrialStatus = "Closed"
)

// IsValid reports whether the status is one of the known recruitment states.
func (s TrialStatus) IsValid() bool {
	switch s {
	case TrialOpen, TrialRecruiting, TrialClosed:
		return true
	default:
		return false
	}
}

// IsSearchable reports whether trials in this state take part in candidate search.
func (s TrialStatus) IsSearchable() bool {
	return s == TrialOpen || s == TrialRecruiting
}

// SearchableTrialStatuses lists the statuses the candidate filter selects.
var SearchableTrialStatuses = []TrialStatus{TrialOpen, TrialRecruiting}

// EnrollmentStatus tracks a patient-trial pairing through the consent flow.
type EnrollmentStatus string

const (
	EnrollmentPending       EnrollmentStatus = "Pending"
	EnrollmentMatched       EnrollmentStatus = "Matched"
	EnrollmentConsentSigned EnrollmentStatus = "Consent_Signed"
	EnrollmentRejected      EnrollmentStatus = "Rejected"
)

// IsValid reports whether the enrollment status is known.
func (s EnrollmentStatus) IsValid() bool {
	switch s {
	case EnrollmentPending, EnrollmentMatched, EnrollmentConsentSigned, EnrollmentRejected:
		return true
	default:
		return false
	}
}

// Sentinel errors shared by every store implementation.
var (
	ErrNotFound   = errors.New("not found")
	ErrDuplicate  = errors.New("duplicate key")
	ErrDataAccess = errors.New("data access failure")
	ErrSignature  = errors.New("signature verification failed")
)

// Demographics holds the coarse, anonymized demographic attributes of a patient.
type Demographics struct {
	AgeGroup  string `json:"age_group" bson:"age_group"`
	Ethnicity string `json:"ethnicity" bson:"ethnicity"`
	Gender    string `json:"gender" bson:"gender"`
}

// HealthMetrics are the clinical measurements extracted from a medical record.
type HealthMetrics struct {
	BMI            float64 `json:"bmi" bson:"bmi"`
	BloodPressure  string  `json:"blood_pressure" bson:"blood_pressure"`
	LastHbA1cLevel float64 `json:"last_hba1c_level" bson:"last_hba1c_level"`
}

// PatientProfile is the persisted, anonymized record of one patient. UserID is the patient's
// wallet address and is unique across the store.
type PatientProfile struct {
	UserID             string        `json:"user_id" bson:"user_id"`
	Demographics       Demographics  `json:"demographics" bson:"demographics"`
	MedicalConditions  []string      `json:"medical_conditions" bson:"medical_conditions"`
	CurrentMedications []string      `json:"current_medications" bson:"current_medications"`
	HealthMetrics      HealthMetrics `json:"health_metrics" bson:"health_metrics"`
	AnonymizedAt       time.Time     `json:"anonymized_at" bson:"anonymized_at"`
}

// EligibilityCriteria describes who may join a trial.
type EligibilityCriteria struct {
	MinAge             int      `json:"min_age" bson:"min_age"`
	MaxAge             int      `json:"max_age" bson:"max_age"`
	RequiredConditions []string `json:"required_conditions" bson:"required_conditions"`
	ExcludedConditions []string `json:"excluded_conditions" bson:"excluded_conditions"`
}

// Trial is the persisted metadata of one clinical trial.
type Trial struct {
	TrialID             string              `json:"trial_id" bson:"trial_id"`
	Title               string              `json:"title" bson:"title"`
	Sponsor             string              `json:"sponsor" bson:"sponsor"`
	Location            string              `json:"location" bson:"location"`
	EligibilityCriteria EligibilityCriteria `json:"eligibility_criteria" bson:"eligibility_criteria"`
	RewardAmount        float64             `json:"reward_amount" bson:"reward_amount"`
	Status              TrialStatus         `json:"status" bson:"status"`
}

// Validate checks the fields a trial must carry before it is persisted.
func (t *Trial) Validate() error {
	var errs ValidationErrors
	if t.TrialID == "" {
		errs = append(errs, NewValidationError("trial_id", "is required", t.TrialID))
	}
	if t.Title == "" {
		errs = append(errs, NewValidationError("title", "is required", t.Title))
	}
	if !t.Status.IsValid() {
		errs = append(errs, NewValidationError("status", "must be one of Open, Recruiting, Closed", t.Status))
	}
	ec := t.EligibilityCriteria
	if ec.MinAge < 0 || ec.MaxAge < 0 || (ec.MaxAge > 0 && ec.MinAge > ec.MaxAge) {
		errs = append(errs, NewValidationError("eligibility_criteria", "invalid age bounds", fmt.Sprintf("%d-%d", ec.MinAge, ec.MaxAge)))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// MatchRecord is a precomputed score for one (user, trial) pair. The pair is unique.
type MatchRecord struct {
	UserID           string           `json:"user_id" bson:"user_id"`
	TrialID          string           `json:"trial_id" bson:"trial_id"`
	MatchScore       int              `json:"match_score" bson:"match_score"`
	MatchReasoning   string           `json:"match_reasoning" bson:"match_reasoning"`
	EnrollmentStatus EnrollmentStatus `json:"enrollment_status" bson:"enrollment_status"`
	SolanaTxSig      string           `json:"solana_tx_sig,omitempty" bson:"solana_tx_sig,omitempty"`
	CreatedAt        time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" bson:"updated_at"`
}

// Validate checks score bounds and status before a match record is persisted.
func (m *MatchRecord) Validate() error {
	var errs ValidationErrors
	if m.UserID == "" {
		errs = append(errs, NewValidationError("user_id", "is required", m.UserID))
	}
	if m.TrialID == "" {
		errs = append(errs, NewValidationError("trial_id", "is required", m.TrialID))
	}
	if m.MatchScore < 0 || m.MatchScore > 100 {
		errs = append(errs, NewValidationError("match_score", "must be between 0 and 100", m.MatchScore))
	}
	if !m.EnrollmentStatus.IsValid() {
		errs = append(errs, NewValidationError("enrollment_status", "unknown status", m.EnrollmentStatus))
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// AgeGroupFor buckets an exact age into the token stored on anonymized profiles.
func AgeGroupFor(age int) string {
	switch {
	case age < 18:
		return "0-17"
	case age < 30:
		return "18-29"
	case age >= 70:
		return "70+"
	default:
		lo := age / 10 * 10
		return fmt.Sprintf("%d-%d", lo, lo+9)
	}
}
