// Package domain holds the vital-sign monitoring types shared by storage,
// evaluation, the HTTP surface and event payloads.
package domain

import (
	"sort"
	"time"
)

// VitalReading is one submitted measurement. It is immutable once stored.
// Systolic and Diastolic travel as a pair; at least one measurement field is
// always present on a stored reading.
type VitalReading struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id" validate:"required"`
	PregnancyID *string   `json:"pregnancy_id,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
	Week        *int      `json:"week,omitempty" validate:"omitempty,gte=1,lte=45"`
	Notes       string    `json:"notes,omitempty" validate:"max=2000"`

	Systolic      *int     `json:"systolic,omitempty" validate:"omitempty,gte=50,lte=250"`
	Diastolic     *int     `json:"diastolic,omitempty" validate:"omitempty,gte=30,lte=150"`
	HeartRate     *int     `json:"heart_rate,omitempty" validate:"omitempty,gte=30,lte=200"`
	Weight        *float64 `json:"weight,omitempty" validate:"omitempty,gte=20,lte=300"`
	Temperature   *float64 `json:"temperature,omitempty" validate:"omitempty,gte=34,lte=43"`
	Glucose       *int     `json:"glucose,omitempty" validate:"omitempty,gte=20,lte=600"`
	SpO2          *int     `json:"spo2,omitempty" validate:"omitempty,gte=50,lte=100"`
	FetalMovement *int     `json:"fetal_movement,omitempty" validate:"omitempty,gte=0,lte=200"`

	CreatedAt time.Time `json:"created_at"`
}

// HasMeasurement reports whether any physiological field is set.
func (r *VitalReading) HasMeasurement() bool {
	return r.Systolic != nil || r.Diastolic != nil || r.HeartRate != nil ||
		r.Weight != nil || r.Temperature != nil || r.Glucose != nil ||
		r.SpO2 != nil || r.FetalMovement != nil
}

// Summary returns the projection of r embedded in alert views.
func (r *VitalReading) Summary() ReadingSummary {
	return ReadingSummary{
		ID:            r.ID,
		RecordedAt:    r.RecordedAt,
		Week:          r.Week,
		Systolic:      r.Systolic,
		Diastolic:     r.Diastolic,
		HeartRate:     r.HeartRate,
		Temperature:   r.Temperature,
		Glucose:       r.Glucose,
		SpO2:          r.SpO2,
		FetalMovement: r.FetalMovement,
	}
}

// VitalAlert flags one breached band on one reading. The only mutation it
// ever sees is the acknowledgment transition.
type VitalAlert struct {
	ID             string     `json:"id"`
	ReadingID      string     `json:"reading_id"`
	Type           AlertType  `json:"type"`
	Severity       Severity   `json:"severity"`
	Message        string     `json:"message"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ReadingSummary is the minimal reading projection needed to display an alert.
type ReadingSummary struct {
	ID            string    `json:"id"`
	RecordedAt    time.Time `json:"recorded_at"`
	Week          *int      `json:"week,omitempty"`
	Systolic      *int      `json:"systolic,omitempty"`
	Diastolic     *int      `json:"diastolic,omitempty"`
	HeartRate     *int      `json:"heart_rate,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	Glucose       *int      `json:"glucose,omitempty"`
	SpO2          *int      `json:"spo2,omitempty"`
	FetalMovement *int      `json:"fetal_movement,omitempty"`
}

// AlertView is the denormalized alert returned by the read API and carried in
// alert events.
type AlertView struct {
	VitalAlert
	Reading ReadingSummary `json:"reading"`
}

// AlertFilter narrows a list of alerts. The zero value is not the API
// default; use DefaultAlertFilter.
type AlertFilter struct {
	Severity           *Severity
	UnacknowledgedOnly bool
}

// DefaultAlertFilter returns the filter applied when the caller sets nothing.
func DefaultAlertFilter() AlertFilter {
	return AlertFilter{UnacknowledgedOnly: true}
}

// Matches reports whether a passes the filter.
func (f AlertFilter) Matches(a *VitalAlert) bool {
	if f.UnacknowledgedOnly && a.Acknowledged {
		return false
	}
	if f.Severity != nil && a.Severity != *f.Severity {
		return false
	}
	return true
}

// TriageLess orders alerts severity-desc, then createdAt-desc, then by id so
// equal timestamps still sort deterministically.
func TriageLess(a, b *VitalAlert) bool {
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortForTriage sorts views in place using TriageLess.
func SortForTriage(views []AlertView) {
	sort.SliceStable(views, func(i, j int) bool {
		return TriageLess(&views[i].VitalAlert, &views[j].VitalAlert)
	})
}

// AlertCounts is the number of unacknowledged alerts per severity.
type AlertCounts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
	Total    int `json:"total"`
}

// Add counts n alerts of severity s.
func (c *AlertCounts) Add(s Severity, n int) {
	switch s {
	case SeverityCritical:
		c.Critical += n
	case SeverityWarning:
		c.Warning += n
	case SeverityInfo:
		c.Info += n
	}
	c.Total += n
}
