package threshold

import (
	"fmt"
	"sort"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
)

// Candidate is one alert the evaluator wants raised for a reading.
type Candidate struct {
	Type     domain.AlertType
	Severity domain.Severity
	Message  string
}

// Bands holds the inclusive clinical thresholds checked by the Evaluator.
type Bands struct {
	SystolicCritical  int
	DiastolicCritical int
	SystolicHigh      int
	DiastolicHigh     int
	SystolicLow       int
	DiastolicLow      int

	HeartRateHighCritical int
	HeartRateHigh         int
	HeartRateLowCritical  int
	HeartRateLow          int

	// SpO2 bands are exclusive: a value below the bound breaches it.
	SpO2Critical int
	SpO2Low      int

	GlucoseHighCritical int
	GlucoseHigh         int
	// Low glucose bands are exclusive.
	GlucoseLowCritical int
	GlucoseLow         int

	TemperatureCritical float64
	TemperatureHigh     float64

	// FetalMovementMin is exclusive: fewer movements than this per session
	// raise an alert.
	FetalMovementMin int
}

// DefaultBands returns the clinical bands used in production.
func DefaultBands() Bands {
	return Bands{
		SystolicCritical:  160,
		DiastolicCritical: 110,
		SystolicHigh:      140,
		DiastolicHigh:     90,
		SystolicLow:       90,
		DiastolicLow:      60,

		HeartRateHighCritical: 140,
		HeartRateHigh:         120,
		HeartRateLowCritical:  40,
		HeartRateLow:          50,

		SpO2Critical: 90,
		SpO2Low:      95,

		GlucoseHighCritical: 200,
		GlucoseHigh:         140,
		GlucoseLowCritical:  54,
		GlucoseLow:          70,

		TemperatureCritical: 39.0,
		TemperatureHigh:     38.0,

		FetalMovementMin: 10,
	}
}

// Evaluator maps a reading to the alerts it should raise. It holds no state
// beyond its bands and is safe for concurrent use.
type Evaluator struct {
	bands Bands
}

// NewEvaluator creates an evaluator with the specified bands
func NewEvaluator(bands Bands) *Evaluator {
	return &Evaluator{bands: bands}
}

// Evaluate returns at most one candidate per physiological field, ordered
// CRITICAL first and then by alert type declaration order. Absent fields are
// skipped.
func (e *Evaluator) Evaluate(r *domain.VitalReading) []Candidate {
	var out []Candidate
	add := func(c *Candidate) {
		if c != nil {
			out = append(out, *c)
		}
	}

	add(e.bloodPressure(r.Systolic, r.Diastolic))
	add(e.heartRate(r.HeartRate))
	add(e.glucose(r.Glucose))
	add(e.spo2(r.SpO2))
	add(e.temperature(r.Temperature))
	add(e.fetalMovement(r.FetalMovement))

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		return out[i].Type < out[j].Type
	})
	return out
}

func (e *Evaluator) bloodPressure(sys, dia *int) *Candidate {
	if sys == nil || dia == nil {
		return nil
	}
	b := e.bands
	s, d := *sys, *dia
	bp := fmt.Sprintf("%d/%d mmHg", s, d)

	switch {
	case s >= b.SystolicCritical || d >= b.DiastolicCritical:
		return &Candidate{domain.AlertHighBP, domain.SeverityCritical,
			fmt.Sprintf("blood pressure %s at or above %d/%d", bp, b.SystolicCritical, b.DiastolicCritical)}
	case s >= b.SystolicHigh || d >= b.DiastolicHigh:
		return &Candidate{domain.AlertHighBP, domain.SeverityWarning,
			fmt.Sprintf("blood pressure %s at or above %d/%d", bp, b.SystolicHigh, b.DiastolicHigh)}
	case s <= b.SystolicLow || d <= b.DiastolicLow:
		return &Candidate{domain.AlertLowBP, domain.SeverityWarning,
			fmt.Sprintf("blood pressure %s at or below %d/%d", bp, b.SystolicLow, b.DiastolicLow)}
	}
	return nil
}

func (e *Evaluator) heartRate(hr *int) *Candidate {
	if hr == nil {
		return nil
	}
	b := e.bands
	v := *hr

	switch {
	case v >= b.HeartRateHighCritical:
		return &Candidate{domain.AlertHighHR, domain.SeverityCritical,
			fmt.Sprintf("heart rate %d bpm at or above %d", v, b.HeartRateHighCritical)}
	case v <= b.HeartRateLowCritical:
		return &Candidate{domain.AlertLowHR, domain.SeverityCritical,
			fmt.Sprintf("heart rate %d bpm at or below %d", v, b.HeartRateLowCritical)}
	case v >= b.HeartRateHigh:
		return &Candidate{domain.AlertHighHR, domain.SeverityWarning,
			fmt.Sprintf("heart rate %d bpm at or above %d", v, b.HeartRateHigh)}
	case v <= b.HeartRateLow:
		return &Candidate{domain.AlertLowHR, domain.SeverityWarning,
			fmt.Sprintf("heart rate %d bpm at or below %d", v, b.HeartRateLow)}
	}
	return nil
}

func (e *Evaluator) glucose(g *int) *Candidate {
	if g == nil {
		return nil
	}
	b := e.bands
	v := *g

	switch {
	case v >= b.GlucoseHighCritical:
		return &Candidate{domain.AlertHighGlucose, domain.SeverityCritical,
			fmt.Sprintf("glucose %d mg/dL at or above %d", v, b.GlucoseHighCritical)}
	case v < b.GlucoseLowCritical:
		return &Candidate{domain.AlertLowGlucose, domain.SeverityCritical,
			fmt.Sprintf("glucose %d mg/dL below %d", v, b.GlucoseLowCritical)}
	case v >= b.GlucoseHigh:
		return &Candidate{domain.AlertHighGlucose, domain.SeverityWarning,
			fmt.Sprintf("glucose %d mg/dL at or above %d", v, b.GlucoseHigh)}
	case v < b.GlucoseLow:
		return &Candidate{domain.AlertLowGlucose, domain.SeverityWarning,
			fmt.Sprintf("glucose %d mg/dL below %d", v, b.GlucoseLow)}
	}
	return nil
}

func (e *Evaluator) spo2(o *int) *Candidate {
	if o == nil {
		return nil
	}
	b := e.bands
	v := *o

	switch {
	case v < b.SpO2Critical:
		return &Candidate{domain.AlertLowSpO2, domain.SeverityCritical,
			fmt.Sprintf("SpO2 %d%% below %d%%", v, b.SpO2Critical)}
	case v < b.SpO2Low:
		return &Candidate{domain.AlertLowSpO2, domain.SeverityWarning,
			fmt.Sprintf("SpO2 %d%% below %d%%", v, b.SpO2Low)}
	}
	return nil
}

func (e *Evaluator) temperature(t *float64) *Candidate {
	if t == nil {
		return nil
	}
	b := e.bands
	v := *t

	switch {
	case v >= b.TemperatureCritical:
		return &Candidate{domain.AlertHighTemperature, domain.SeverityCritical,
			fmt.Sprintf("temperature %.1f°C at or above %.1f°C", v, b.TemperatureCritical)}
	case v >= b.TemperatureHigh:
		return &Candidate{domain.AlertHighTemperature, domain.SeverityWarning,
			fmt.Sprintf("temperature %.1f°C at or above %.1f°C", v, b.TemperatureHigh)}
	}
	return nil
}

func (e *Evaluator) fetalMovement(m *int) *Candidate {
	if m == nil {
		return nil
	}
	if *m < e.bands.FetalMovementMin {
		return &Candidate{domain.AlertLowFetalMovement, domain.SeverityWarning,
			fmt.Sprintf("%d fetal movements, fewer than %d", *m, e.bands.FetalMovementMin)}
	}
	return nil
}
