package timeparser_test

import (
	"testing"
	"time"

	"github.com/kishorathod/PrenatalPlus-sub002/tools/timeparser"
)

func TestParseRecordedAt_RFC3339(t *testing.T) {
	result, err := timeparser.ParseRecordedAt("2026-03-14T10:30:45+02:00")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2026, 3, 14, 8, 30, 45, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
	if result.Location() != time.UTC {
		t.Errorf("Expected UTC location, got %v", result.Location())
	}
}

func TestParseRecordedAt_SpaceSeparated(t *testing.T) {
	result, err := timeparser.ParseRecordedAt("2026-03-14 10:30:45")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2026, 3, 14, 10, 30, 45, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseRecordedAt_DayFirst(t *testing.T) {
	result, err := timeparser.ParseRecordedAt("14/03/2026 10:30")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseRecordedAt_Invalid(t *testing.T) {
	if _, err := timeparser.ParseRecordedAt("invalid-date-string"); err == nil {
		t.Error("Expected error for invalid timestamp")
	}
	if _, err := timeparser.ParseRecordedAt("   "); err == nil {
		t.Error("Expected error for empty timestamp")
	}
}

func TestIsWithinTolerance_WithinRange(t *testing.T) {
	readingTime := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2026, 3, 14, 10, 33, 0, 0, time.UTC) // 3 minutes later

	if !timeparser.IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp to be within tolerance")
	}
}

func TestIsWithinTolerance_OutsideRange(t *testing.T) {
	readingTime := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2026, 3, 14, 10, 36, 0, 0, time.UTC) // 6 minutes later

	if timeparser.IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp to be outside tolerance")
	}
}

func TestIsWithinTolerance_ExactBoundary(t *testing.T) {
	readingTime := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2026, 3, 14, 10, 35, 0, 0, time.UTC) // Exactly 5 minutes

	if !timeparser.IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp at exact boundary to be within tolerance")
	}
}

func TestIsInFuture(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

	if timeparser.IsInFuture(now.Add(2*time.Minute), now, 5*time.Minute) {
		t.Error("Expected small clock skew to be accepted")
	}
	if !timeparser.IsInFuture(now.Add(10*time.Minute), now, 5*time.Minute) {
		t.Error("Expected reading 10 minutes ahead to be in the future")
	}
}
