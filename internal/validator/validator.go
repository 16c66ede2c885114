package validator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	playground "github.com/go-playground/validator/v10"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/tools/timeparser"
)

// futureSkew is how far ahead of the server clock a recorded_at may be.
const futureSkew = 5 * time.Minute

// Validator checks readings at the ingestion boundary, before anything is
// evaluated or stored.
type Validator struct {
	recordedAtToleranceMinutes int
	validate                   *playground.Validate
	now                        func() time.Time
}

// NewValidator creates a validator that rejects readings recorded more than
// recordedAtToleranceMinutes before they are received.
func NewValidator(recordedAtToleranceMinutes int) *Validator {
	v := playground.New()
	v.RegisterStructValidation(readingStructLevel, domain.VitalReading{})
	return &Validator{
		recordedAtToleranceMinutes: recordedAtToleranceMinutes,
		validate:                   v,
		now:                        time.Now,
	}
}

// ValidateReading returns a *domain.ValidationError listing every problem with
// r, or nil when r may be recorded.
func (v *Validator) ValidateReading(r *domain.VitalReading, receivedAt time.Time) error {
	var problems []string

	if err := v.validate.Struct(r); err != nil {
		var fieldErrs playground.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate reading: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	if r.RecordedAt.IsZero() {
		problems = append(problems, "recorded_at is required")
	} else {
		if receivedAt.IsZero() {
			receivedAt = v.now()
		}
		if timeparser.IsInFuture(r.RecordedAt, receivedAt, futureSkew) {
			problems = append(problems, "recorded_at is in the future")
		} else if !timeparser.IsWithinTolerance(r.RecordedAt, receivedAt, v.recordedAtToleranceMinutes) {
			problems = append(problems, fmt.Sprintf("recorded_at older than %d minutes", v.recordedAtToleranceMinutes))
		}
	}

	if len(problems) > 0 {
		return &domain.ValidationError{Problems: problems}
	}
	return nil
}

func readingStructLevel(sl playground.StructLevel) {
	r := sl.Current().Interface().(domain.VitalReading)

	if !r.HasMeasurement() {
		sl.ReportError(r.Systolic, "Measurements", "measurements", "min_one_measurement", "")
	}
	if r.Systolic != nil && r.Diastolic == nil {
		sl.ReportError(r.Diastolic, "Diastolic", "diastolic", "bp_pair", "")
	}
	if r.Diastolic != nil && r.Systolic == nil {
		sl.ReportError(r.Systolic, "Systolic", "systolic", "bp_pair", "")
	}
}

// describe turns a field error into a snake_case message matching the JSON
// field names clients send.
func describe(fe playground.FieldError) string {
	field := toSnake(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "bp_pair":
		return "systolic and diastolic must be provided together"
	case "min_one_measurement":
		return "at least one measurement is required"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func toSnake(name string) string {
	switch name {
	case "SpO2":
		return "spo2"
	case "UserID":
		return "user_id"
	}
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
