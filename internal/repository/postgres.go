package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
)

// Postgres handles database operations against PostgreSQL
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new repository
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const insertReadingSQL = `
	INSERT INTO vital_readings (
		id, user_id, pregnancy_id, recorded_at, week, notes,
		systolic, diastolic, heart_rate, weight, temperature,
		glucose, spo2, fetal_movement, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
`

const insertAlertSQL = `
	INSERT INTO vital_alerts (
		id, reading_id, alert_type, severity, message,
		acknowledged, acknowledged_at, created_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

const alertViewSelect = `
	SELECT a.id, a.reading_id, a.alert_type, a.severity, a.message,
	       a.acknowledged, a.acknowledged_at, a.created_at,
	       r.recorded_at, r.week, r.systolic, r.diastolic, r.heart_rate,
	       r.temperature, r.glucose, r.spo2, r.fetal_movement
	FROM vital_alerts a
	JOIN vital_readings r ON r.id = a.reading_id
`

const readingSelect = `
	SELECT id, user_id, pregnancy_id, recorded_at, week, notes,
	       systolic, diastolic, heart_rate, weight, temperature,
	       glucose, spo2, fetal_movement, created_at
	FROM vital_readings
`

type pgTx struct {
	tx pgx.Tx
}

// InsertReading inserts a vital reading within a transaction
func (t *pgTx) InsertReading(ctx context.Context, r *domain.VitalReading) error {
	_, err := t.tx.Exec(ctx, insertReadingSQL,
		r.ID, r.UserID, r.PregnancyID, r.RecordedAt, r.Week, r.Notes,
		r.Systolic, r.Diastolic, r.HeartRate, r.Weight, r.Temperature,
		r.Glucose, r.SpO2, r.FetalMovement, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vital reading: %w", err)
	}
	return nil
}

// InsertAlert inserts a vital alert within a transaction
func (t *pgTx) InsertAlert(ctx context.Context, a *domain.VitalAlert) error {
	_, err := t.tx.Exec(ctx, insertAlertSQL,
		a.ID, a.ReadingID, a.Type.String(), a.Severity.String(), a.Message,
		a.Acknowledged, a.AcknowledgedAt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vital alert: %w", err)
	}
	return nil
}

// InTx runs fn inside one transaction and commits only if fn returns nil.
func (r *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	return r.inPgxTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

// GetAlert returns the alert with its reading projection if the reading
// belongs to ownerID.
func (r *Postgres) GetAlert(ctx context.Context, alertID, ownerID string) (*domain.AlertView, error) {
	if !validID(alertID) {
		return nil, domain.ErrNotFound
	}

	row := r.pool.QueryRow(ctx, alertViewSelect+` WHERE a.id = $1 AND r.user_id = $2`, alertID, ownerID)
	view, err := scanAlertView(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	return view, nil
}

// AcknowledgeAlert flips an unacknowledged alert owned by ownerID to
// acknowledged. It reports false when nothing changed, either because the
// alert is already acknowledged or because it is not visible to ownerID.
func (r *Postgres) AcknowledgeAlert(ctx context.Context, alertID, ownerID string, at time.Time) (bool, error) {
	if !validID(alertID) {
		return false, nil
	}

	query := `
		UPDATE vital_alerts a
		SET acknowledged = TRUE, acknowledged_at = $3
		FROM vital_readings r
		WHERE a.reading_id = r.id
		  AND a.id = $1
		  AND r.user_id = $2
		  AND a.acknowledged = FALSE
	`
	tag, err := r.pool.Exec(ctx, query, alertID, ownerID, at)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListAlerts returns ownerID's alerts matching filter in triage order.
func (r *Postgres) ListAlerts(ctx context.Context, ownerID string, filter domain.AlertFilter) ([]domain.AlertView, error) {
	where := []string{"r.user_id = $1"}
	args := []any{ownerID}
	if filter.UnacknowledgedOnly {
		where = append(where, "a.acknowledged = FALSE")
	}
	if filter.Severity != nil {
		args = append(args, filter.Severity.String())
		where = append(where, fmt.Sprintf("a.severity = $%d", len(args)))
	}

	query := alertViewSelect + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY ` + triageOrder
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	views := []domain.AlertView{}
	for rows.Next() {
		view, err := scanAlertView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		views = append(views, *view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return views, nil
}

// CountOpenAlerts counts ownerID's unacknowledged alerts per severity.
func (r *Postgres) CountOpenAlerts(ctx context.Context, ownerID string) (domain.AlertCounts, error) {
	query := `
		SELECT a.severity, COUNT(*)
		FROM vital_alerts a
		JOIN vital_readings r ON r.id = a.reading_id
		WHERE r.user_id = $1 AND a.acknowledged = FALSE
		GROUP BY a.severity
	`
	var counts domain.AlertCounts
	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return counts, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return counts, fmt.Errorf("failed to scan count: %w", err)
		}
		sev, err := domain.ParseSeverity(name)
		if err != nil {
			return counts, fmt.Errorf("stored alert: %w", err)
		}
		counts.Add(sev, n)
	}
	return counts, rows.Err()
}

// ListReadings returns ownerID's most recent readings, newest first.
func (r *Postgres) ListReadings(ctx context.Context, ownerID string, limit int) ([]domain.VitalReading, error) {
	rows, err := r.pool.Query(ctx, readingSelect+` WHERE user_id = $1 ORDER BY recorded_at DESC, id ASC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	readings := []domain.VitalReading{}
	for rows.Next() {
		var v domain.VitalReading
		if err := rows.Scan(
			&v.ID, &v.UserID, &v.PregnancyID, &v.RecordedAt, &v.Week, &v.Notes,
			&v.Systolic, &v.Diastolic, &v.HeartRate, &v.Weight, &v.Temperature,
			&v.Glucose, &v.SpO2, &v.FetalMovement, &v.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return readings, nil
}

// DeleteReading removes a reading owned by ownerID together with its alerts
// and returns the ids of the removed alerts.
func (r *Postgres) DeleteReading(ctx context.Context, readingID, ownerID string) ([]string, error) {
	if !validID(readingID) {
		return nil, domain.ErrNotFound
	}

	var alertIDs []string
	err := r.inPgxTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT a.id
			FROM vital_alerts a
			JOIN vital_readings r ON r.id = a.reading_id
			WHERE r.id = $1 AND r.user_id = $2
			ORDER BY a.id
		`, readingID, ownerID)
		if err != nil {
			return fmt.Errorf("failed to query reading alerts: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to scan alert id: %w", err)
		}
		alertIDs = ids

		tag, err := tx.Exec(ctx, `DELETE FROM vital_readings WHERE id = $1 AND user_id = $2`, readingID, ownerID)
		if err != nil {
			return fmt.Errorf("failed to delete reading: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alertIDs, nil
}

func (r *Postgres) inPgxTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanAlertView(row pgx.Row) (*domain.AlertView, error) {
	var (
		v                   domain.AlertView
		alertType, severity string
	)
	err := row.Scan(
		&v.ID, &v.ReadingID, &alertType, &severity, &v.Message,
		&v.Acknowledged, &v.AcknowledgedAt, &v.CreatedAt,
		&v.Reading.RecordedAt, &v.Reading.Week, &v.Reading.Systolic, &v.Reading.Diastolic, &v.Reading.HeartRate,
		&v.Reading.Temperature, &v.Reading.Glucose, &v.Reading.SpO2, &v.Reading.FetalMovement,
	)
	if err != nil {
		return nil, err
	}
	v.Reading.ID = v.ReadingID
	v.Type, v.Severity, err = decodeEnums(alertType, severity)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
