package domain

import (
	"fmt"
	"strings"
)

// Severity is the ordered classification of how far a value deviates from
// its normal range. Higher values are more severe.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "INFO",
	SeverityWarning:  "WARNING",
	SeverityCritical: "CRITICAL",
}

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityWarning, SeverityInfo}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// Valid reports whether s is one of the declared severities.
func (s Severity) Valid() bool {
	_, ok := severityNames[s]
	return ok
}

// ParseSeverity converts a wire or storage name into a Severity. Matching is
// case-insensitive; unknown names are rejected.
func ParseSeverity(name string) (Severity, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for s, n := range severityNames {
		if n == upper {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", name)
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AlertType identifies which clinical band a reading breached. The numeric
// order of the constants is the documented tie-break order used when two
// alerts share a severity.
type AlertType int

const (
	AlertHighBP AlertType = iota + 1
	AlertLowBP
	AlertHighHR
	AlertLowHR
	AlertHighGlucose
	AlertLowGlucose
	AlertLowSpO2
	AlertHighTemperature
	AlertLowFetalMovement
)

var alertTypeNames = map[AlertType]string{
	AlertHighBP:           "HIGH_BP",
	AlertLowBP:            "LOW_BP",
	AlertHighHR:           "HIGH_HR",
	AlertLowHR:            "LOW_HR",
	AlertHighGlucose:      "HIGH_GLUCOSE",
	AlertLowGlucose:       "LOW_GLUCOSE",
	AlertLowSpO2:          "LOW_SPO2",
	AlertHighTemperature:  "HIGH_TEMPERATURE",
	AlertLowFetalMovement: "LOW_FETAL_MOVEMENT",
}

func (t AlertType) String() string {
	if name, ok := alertTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("AlertType(%d)", int(t))
}

// Valid reports whether t is one of the declared alert types.
func (t AlertType) Valid() bool {
	_, ok := alertTypeNames[t]
	return ok
}

// ParseAlertType converts a wire or storage name into an AlertType.
func ParseAlertType(name string) (AlertType, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for t, n := range alertTypeNames {
		if n == upper {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown alert type %q", name)
}

func (t AlertType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid alert type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *AlertType) UnmarshalText(text []byte) error {
	parsed, err := ParseAlertType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
