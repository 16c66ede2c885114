package timeparser

import (
	"fmt"
	"strings"
	"time"
)

// recordedAtFormats lists the layouts devices and the mobile app send for
// recorded_at, tried in order.
var recordedAtFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05", // local ISO without offset, treated as UTC
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05", // DD/MM/YYYY HH:mm:ss
	"02/01/2006 15:04",
}

// ParseRecordedAt parses a reading timestamp in any of the accepted layouts
// and returns it in UTC.
func ParseRecordedAt(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	var lastErr error
	for _, format := range recordedAtFormats {
		t, err := time.Parse(format, value)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", value, lastErr)
}

// IsWithinTolerance checks if the reading timestamp is within tolerance of received time
func IsWithinTolerance(readingTime, receivedTime time.Time, toleranceMinutes int) bool {
	diff := readingTime.Sub(receivedTime)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(toleranceMinutes)*time.Minute
}

// IsInFuture reports whether readingTime is later than now by more than
// the allowed clock skew.
func IsInFuture(readingTime, now time.Time, skew time.Duration) bool {
	return readingTime.After(now.Add(skew))
}
