package validator_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/validator"
)

const testToleranceMinutes = 60 * 24

var receivedAt = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func intPtr(v int) *int { return &v }

func validReading() *domain.VitalReading {
	return &domain.VitalReading{
		UserID:     "user-1",
		RecordedAt: receivedAt.Add(-10 * time.Minute),
		Systolic:   intPtr(118),
		Diastolic:  intPtr(76),
		HeartRate:  intPtr(80),
	}
}

func problems(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	return verr.Problems
}

func TestValidateReading_Valid(t *testing.T) {
	v := validator.NewValidator(testToleranceMinutes)
	assert.NoError(t, v.ValidateReading(validReading(), receivedAt))
}

func TestValidateReading_RequiresAMeasurement(t *testing.T) {
	v := validator.NewValidator(testToleranceMinutes)
	r := &domain.VitalReading{UserID: "user-1", RecordedAt: receivedAt, Notes: "felt fine"}

	assert.Contains(t, problems(t, v.ValidateReading(r, receivedAt)), "at least one measurement is required")
}

func TestValidateReading_BloodPressurePairing(t *testing.T) {
	v := validator.NewValidator(testToleranceMinutes)

	r := validReading()
	r.Diastolic = nil
	assert.Contains(t, problems(t, v.ValidateReading(r, receivedAt)), "systolic and diastolic must be provided together")

	r = validReading()
	r.Systolic = nil
	assert.Contains(t, problems(t, v.ValidateReading(r, receivedAt)), "systolic and diastolic must be provided together")
}

func TestValidateReading_Ranges(t *testing.T) {
	v := validator.NewValidator(testToleranceMinutes)

	r := validReading()
	r.HeartRate = intPtr(25)
	r.SpO2 = intPtr(101)
	got := problems(t, v.ValidateReading(r, receivedAt))
	assert.Contains(t, got, "heart_rate must be at least 30")
	assert.Contains(t, got, "spo2 must be at most 100")
}

func TestValidateReading_MissingUser(t *testing.T) {
	v := validator.NewValidator(testToleranceMinutes)

	r := validReading()
	r.UserID = ""
	assert.Contains(t, problems(t, v.ValidateReading(r, receivedAt)), "user_id is required")
}

func TestValidateReading_RecordedAt(t *testing.T) {
	v := validator.NewValidator(testToleranceMinutes)

	r := validReading()
	r.RecordedAt = time.Time{}
	assert.Contains(t, problems(t, v.ValidateReading(r, receivedAt)), "recorded_at is required")

	r = validReading()
	r.RecordedAt = receivedAt.Add(time.Hour)
	assert.Contains(t, problems(t, v.ValidateReading(r, receivedAt)), "recorded_at is in the future")

	r = validReading()
	r.RecordedAt = receivedAt.Add(-48 * time.Hour)
	assert.Contains(t, problems(t, v.ValidateReading(r, receivedAt)), "recorded_at older than 1440 minutes")
}

func TestValidateReading_InRangeBreachesStillValid(t *testing.T) {
	// Clinically alarming values are valid input; the evaluator flags them.
	v := validator.NewValidator(testToleranceMinutes)

	r := validReading()
	r.Systolic = intPtr(180)
	r.Diastolic = intPtr(115)
	r.HeartRate = intPtr(35)
	assert.NoError(t, v.ValidateReading(r, receivedAt))
}
