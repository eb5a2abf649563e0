package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIError(t *testing.T) {
	err := NewAPIError(ErrCodeValidation, "bad request", "age_range missing", "req-1")

	assert.Equal(t, "VALIDATION_ERROR: bad request", err.Error())
	assert.Equal(t, "req-1", err.RequestID)
	assert.False(t, err.Timestamp.IsZero())
}

func TestValidationErrors(t *testing.T) {
	single := ValidationErrors{NewValidationError("clinical.primary_condition", "is required", "")}
	assert.Equal(t, "validation error for field 'clinical.primary_condition': is required", single.Error())

	multi := ValidationErrors{
		NewValidationError("demographics.age_range", "is required", ""),
		NewValidationError("clinical.primary_condition", "is required", ""),
	}
	assert.Equal(t,
		"validation errors for fields 'demographics.age_range': is required; 'clinical.primary_condition': is required",
		multi.Error())
	assert.Equal(t, []string{"demographics.age_range", "clinical.primary_condition"}, multi.Fields())

	assert.Equal(t, "validation failed", ValidationErrors{}.Error())
}

func TestValidationErrors_As(t *testing.T) {
	var err error = ValidationErrors{NewValidationError("limit", "bad", 0)}
	wrapped := fmt.Errorf("search: %w", err)

	var verrs ValidationErrors
	require.True(t, errors.As(wrapped, &verrs))
	assert.Len(t, verrs, 1)

	var single *ValidationError
	err = fmt.Errorf("wrap: %w", NewValidationError("trial_id", "is required", ""))
	require.True(t, errors.As(err, &single))
	assert.Equal(t, "trial_id", single.Field)
}

func TestSentinels(t *testing.T) {
	err := fmt.Errorf("profile 0xabc: %w", ErrDuplicate)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NotErrorIs(t, err, ErrNotFound)
}
