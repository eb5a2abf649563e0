package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// LenientInt decodes a JSON number or numeric string. Values that are absent, null or not
// numeric leave Set false instead of failing the whole request body.
type LenientInt struct {
	Value int
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *LenientInt) UnmarshalJSON(data []byte) error {
	*l = LenientInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		raw = strings.TrimSpace(s)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	if f > math.MaxInt32 {
		f = math.MaxInt32
	} else if f < math.MinInt32 {
		f = math.MinInt32
	}
	l.Value = int(f)
	l.Set = true
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l LenientInt) MarshalJSON() ([]byte, error) {
	if !l.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(l.Value)), nil
}

// IntValue builds a set LenientInt.
func IntValue(v int) LenientInt {
	return LenientInt{Value: v, Set: true}
}

// SearchDemographics are the demographic constraints of a candidate search.
type SearchDemographics struct {
	AgeRange       string `json:"age_range"`
	Gender         string `json:"gender,omitempty"`
	EthnicityGroup string `json:"ethnicity_group,omitempty"`
}

// SearchClinical carries the clinical criteria. Only PrimaryCondition takes part in filtering;
// the remaining fields are accepted for forward compatibility and ignored.
type SearchClinical struct {
	PrimaryCondition string                 `json:"primary_condition"`
	Extra            map[string]interface{} `json:"-"`
}

// UnmarshalJSON keeps unknown clinical fields in Extra.
func (c *SearchClinical) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = SearchClinical{}
	if v, ok := raw["primary_condition"].(string); ok {
		c.PrimaryCondition = v
	}
	delete(raw, "primary_condition")
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// CandidateSearchRequest is the researcher's query against the candidate pool.
type CandidateSearchRequest struct {
	Limit        LenientInt             `json:"limit"`
	MinScore     LenientInt             `json:"min_score"`
	Demographics SearchDemographics     `json:"demographics"`
	Clinical     SearchClinical         `json:"clinical"`
	Metrics      map[string]interface{} `json:"metrics,omitempty"`
}

// Candidate is one (patient, trial) pairing returned to a researcher.
type Candidate struct {
	UserID            string           `json:"user_id"`
	TrialID           string           `json:"trial_id"`
	Score             int              `json:"score"`
	Status            EnrollmentStatus `json:"status"`
	Reasoning         string           `json:"reasoning"`
	Demographics      Demographics     `json:"demographics"`
	MedicalConditions []string         `json:"medical_conditions"`
	HealthMetrics     HealthMetrics    `json:"health_metrics"`
}

// Reasons explaining an empty candidate list.
const (
	ReasonNoMatchingTrials       = "no_matching_trials"
	ReasonNoQualifyingCandidates = "no_qualifying_candidates"
)

// CandidateSearchResponse is the success shape of a candidate search.
type CandidateSearchResponse struct {
	OK         bool        `json:"ok"`
	Count      int         `json:"count"`
	Candidates []Candidate `json:"candidates"`
	Reason     string      `json:"reason,omitempty"`
	Truncated  bool        `json:"truncated,omitempty"`
}

// TrialQuery selects searchable trials whose title or required conditions match Pattern.
// Pattern is a regular expression with metacharacters already escaped; stores match it
// case-insensitively.
type TrialQuery struct {
	Pattern  string
	Statuses []TrialStatus
}

// MatchQuery selects match records for a set of trials ordered by score descending, then
// user_id and trial_id ascending. At most Limit records are returned.
type MatchQuery struct {
	TrialIDs []string
	MinScore int
	Limit    int
}
