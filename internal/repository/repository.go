// Package repository is the storage boundary for readings and alerts. Postgres
// (pgx) is the production store; SQLite (gorm) backs local runs and tests.
// Both give the same guarantees: a reading and its alerts commit together,
// and acknowledgment is a conditional update on the unacknowledged state.
package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
)

// Tx is the write surface available inside one atomic unit of work.
type Tx interface {
	InsertReading(ctx context.Context, r *domain.VitalReading) error
	InsertAlert(ctx context.Context, a *domain.VitalAlert) error
}

// severityRank orders severities in SQL the same way domain.Severity orders
// them in Go.
const severityRank = `CASE a.severity WHEN 'CRITICAL' THEN 3 WHEN 'WARNING' THEN 2 WHEN 'INFO' THEN 1 ELSE 0 END`

// triageOrder is the ORDER BY clause for the alert list contract.
const triageOrder = severityRank + ` DESC, a.created_at DESC, a.id ASC`

// validID reports whether id can name a stored row. Malformed ids can never
// match and are reported as not found rather than as driver errors.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func decodeEnums(alertType, severity string) (domain.AlertType, domain.Severity, error) {
	t, err := domain.ParseAlertType(alertType)
	if err != nil {
		return 0, 0, fmt.Errorf("stored alert: %w", err)
	}
	s, err := domain.ParseSeverity(severity)
	if err != nil {
		return 0, 0, fmt.Errorf("stored alert: %w", err)
	}
	return t, s, nil
}
