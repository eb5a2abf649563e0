package extractor

import (
	"errors"
	"strings"
)

var (
	// ErrNotConfigured is returned when no API key is available.
	ErrNotConfigured = errors.New("ai api key not configured")

	// ErrMalformedResponse is returned when the model reply is not the requested JSON.
	ErrMalformedResponse = errors.New("malformed model response")
)

// minDocumentConfidence is the confidence below which a document is treated as non-medical.
const minDocumentConfidence = 0.7

// PatientData is what the model extracts from one medical record.
type PatientData struct {
	IsMedicalRecord bool     `json:"is_medical_record"`
	DocumentType    string   `json:"document_type"`
	Confidence      float64  `json:"confidence"`
	Age             *int     `json:"age"`
	Ethnicity       string   `json:"ethnicity"`
	Gender          string   `json:"gender"`
	Conditions      []string `json:"conditions"`
	Medications     []string `json:"medications"`
	BMI             float64  `json:"bmi"`
	BloodPressure   string   `json:"blood_pressure"`
	HbA1c           float64  `json:"hba1c"`
}

// Accepted reports whether the document is a medical record the model is confident about.
func (p *PatientData) Accepted() bool {
	return p.IsMedicalRecord && p.Confidence >= minDocumentConfidence
}

// TrialScore is the model's assessment of one trial for one patient.
type TrialScore struct {
	TrialID              string   `json:"trial_id"`
	MatchScore           int      `json:"match_score"`
	QualifyingFactors    []string `json:"qualifying_factors"`
	DisqualifyingFactors []string `json:"disqualifying_factors"`
	Recommendation       string   `json:"recommendation"`
}

// Reasoning flattens the factors into the text stored on a match record.
func (s TrialScore) Reasoning() string {
	var b strings.Builder
	if s.Recommendation != "" {
		b.WriteString(s.Recommendation)
	}
	if len(s.QualifyingFactors) > 0 {
		if b.Len() > 0 {
			b.WriteString(". ")
		}
		b.WriteString("Meets: ")
		b.WriteString(strings.Join(s.QualifyingFactors, "; "))
	}
	if len(s.DisqualifyingFactors) > 0 {
		if b.Len() > 0 {
			b.WriteString(". ")
		}
		b.WriteString("Concerns: ")
		b.WriteString(strings.Join(s.DisqualifyingFactors, "; "))
	}
	return b.String()
}

type matchEnvelope struct {
	Matches []TrialScore `json:"matches"`
}
