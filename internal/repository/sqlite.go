package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
)

type readingRow struct {
	ID            string    `gorm:"primaryKey;size:36"`
	UserID        string    `gorm:"not null;index:idx_vital_readings_user_recorded,priority:1"`
	PregnancyID   *string
	RecordedAt    time.Time `gorm:"not null;index:idx_vital_readings_user_recorded,priority:2"`
	Week          *int
	Notes         string `gorm:"not null;default:''"`
	Systolic      *int
	Diastolic     *int
	HeartRate     *int
	Weight        *float64
	Temperature   *float64
	Glucose       *int
	SpO2          *int `gorm:"column:spo2"`
	FetalMovement *int
	CreatedAt     time.Time `gorm:"not null"`
}

func (readingRow) TableName() string { return "vital_readings" }

type alertRow struct {
	ID             string `gorm:"primaryKey;size:36"`
	ReadingID      string `gorm:"not null;size:36;uniqueIndex:idx_vital_alerts_reading_type,priority:1"`
	AlertType      string `gorm:"not null;uniqueIndex:idx_vital_alerts_reading_type,priority:2"`
	Severity       string `gorm:"not null"`
	Message        string `gorm:"not null;default:''"`
	Acknowledged   bool   `gorm:"not null;default:false"`
	AcknowledgedAt *time.Time
	CreatedAt      time.Time `gorm:"not null"`
}

func (alertRow) TableName() string { return "vital_alerts" }

// alertViewRow is the flat shape of the alert/reading join.
type alertViewRow struct {
	ID             string
	ReadingID      string
	AlertType      string
	Severity       string
	Message        string
	Acknowledged   bool
	AcknowledgedAt *time.Time
	CreatedAt      time.Time
	RecordedAt     time.Time
	Week           *int
	Systolic       *int
	Diastolic      *int
	HeartRate      *int
	Temperature    *float64
	Glucose        *int
	SpO2           *int `gorm:"column:spo2"`
	FetalMovement  *int
}

const alertViewColumns = `a.id, a.reading_id, a.alert_type, a.severity, a.message,
	a.acknowledged, a.acknowledged_at, a.created_at,
	r.recorded_at, r.week, r.systolic, r.diastolic, r.heart_rate,
	r.temperature, r.glucose, r.spo2, r.fetal_movement`

// SQLite stores readings and alerts through gorm. It is used for local runs
// and as the real database behind service tests.
type SQLite struct {
	db *gorm.DB
}

// NewSQLite wraps an open gorm handle.
func NewSQLite(db *gorm.DB) *SQLite {
	return &SQLite{db: db}
}

// AutoMigrate creates the vitals tables.
func (s *SQLite) AutoMigrate() error {
	return s.db.AutoMigrate(&readingRow{}, &alertRow{})
}

type gormTx struct {
	tx *gorm.DB
}

func (t *gormTx) InsertReading(ctx context.Context, r *domain.VitalReading) error {
	row := readingRow{
		ID: r.ID, UserID: r.UserID, PregnancyID: r.PregnancyID, RecordedAt: r.RecordedAt,
		Week: r.Week, Notes: r.Notes, Systolic: r.Systolic, Diastolic: r.Diastolic,
		HeartRate: r.HeartRate, Weight: r.Weight, Temperature: r.Temperature,
		Glucose: r.Glucose, SpO2: r.SpO2, FetalMovement: r.FetalMovement, CreatedAt: r.CreatedAt,
	}
	if err := t.tx.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert vital reading: %w", err)
	}
	return nil
}

func (t *gormTx) InsertAlert(ctx context.Context, a *domain.VitalAlert) error {
	row := alertRow{
		ID: a.ID, ReadingID: a.ReadingID, AlertType: a.Type.String(), Severity: a.Severity.String(),
		Message: a.Message, Acknowledged: a.Acknowledged, AcknowledgedAt: a.AcknowledgedAt,
		CreatedAt: a.CreatedAt,
	}
	if err := t.tx.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert vital alert: %w", err)
	}
	return nil
}

// InTx runs fn inside one transaction and commits only if fn returns nil.
func (s *SQLite) InTx(ctx context.Context, fn func(Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{tx: tx})
	})
}

func (s *SQLite) alertViews(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("vital_alerts AS a").
		Select(alertViewColumns).
		Joins("JOIN vital_readings AS r ON r.id = a.reading_id")
}

// GetAlert returns the alert with its reading projection if the reading
// belongs to ownerID.
func (s *SQLite) GetAlert(ctx context.Context, alertID, ownerID string) (*domain.AlertView, error) {
	var rows []alertViewRow
	err := s.alertViews(ctx).
		Where("a.id = ? AND r.user_id = ?", alertID, ownerID).
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return rows[0].toView()
}

// AcknowledgeAlert flips an unacknowledged alert owned by ownerID to
// acknowledged and reports whether this call made the change.
func (s *SQLite) AcknowledgeAlert(ctx context.Context, alertID, ownerID string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&alertRow{}).
		Where("id = ? AND acknowledged = ?", alertID, false).
		Where("reading_id IN (?)", s.db.Model(&readingRow{}).Select("id").Where("user_id = ?", ownerID)).
		Updates(map[string]any{"acknowledged": true, "acknowledged_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("failed to acknowledge alert: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListAlerts returns ownerID's alerts matching filter in triage order.
func (s *SQLite) ListAlerts(ctx context.Context, ownerID string, filter domain.AlertFilter) ([]domain.AlertView, error) {
	q := s.alertViews(ctx).Where("r.user_id = ?", ownerID)
	if filter.UnacknowledgedOnly {
		q = q.Where("a.acknowledged = ?", false)
	}
	if filter.Severity != nil {
		q = q.Where("a.severity = ?", filter.Severity.String())
	}

	var rows []alertViewRow
	if err := q.Order(triageOrder).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}

	views := make([]domain.AlertView, 0, len(rows))
	for i := range rows {
		v, err := rows[i].toView()
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// CountOpenAlerts counts ownerID's unacknowledged alerts per severity.
func (s *SQLite) CountOpenAlerts(ctx context.Context, ownerID string) (domain.AlertCounts, error) {
	var groups []struct {
		Severity string
		N        int
	}
	var counts domain.AlertCounts
	err := s.db.WithContext(ctx).
		Table("vital_alerts AS a").
		Select("a.severity AS severity, COUNT(*) AS n").
		Joins("JOIN vital_readings AS r ON r.id = a.reading_id").
		Where("r.user_id = ? AND a.acknowledged = ?", ownerID, false).
		Group("a.severity").
		Scan(&groups).Error
	if err != nil {
		return counts, fmt.Errorf("failed to count alerts: %w", err)
	}
	for _, g := range groups {
		sev, err := domain.ParseSeverity(g.Severity)
		if err != nil {
			return counts, fmt.Errorf("stored alert: %w", err)
		}
		counts.Add(sev, g.N)
	}
	return counts, nil
}

// ListReadings returns ownerID's most recent readings, newest first.
func (s *SQLite) ListReadings(ctx context.Context, ownerID string, limit int) ([]domain.VitalReading, error) {
	var rows []readingRow
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("recorded_at DESC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}

	readings := make([]domain.VitalReading, 0, len(rows))
	for _, r := range rows {
		readings = append(readings, domain.VitalReading{
			ID: r.ID, UserID: r.UserID, PregnancyID: r.PregnancyID, RecordedAt: r.RecordedAt.UTC(),
			Week: r.Week, Notes: r.Notes, Systolic: r.Systolic, Diastolic: r.Diastolic,
			HeartRate: r.HeartRate, Weight: r.Weight, Temperature: r.Temperature,
			Glucose: r.Glucose, SpO2: r.SpO2, FetalMovement: r.FetalMovement, CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return readings, nil
}

// DeleteReading removes a reading owned by ownerID together with its alerts
// and returns the ids of the removed alerts.
func (s *SQLite) DeleteReading(ctx context.Context, readingID, ownerID string) ([]string, error) {
	var alertIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reading readingRow
		err := tx.Where("id = ? AND user_id = ?", readingID, ownerID).Take(&reading).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to query reading: %w", err)
		}

		if err := tx.Model(&alertRow{}).Where("reading_id = ?", readingID).Order("id").Pluck("id", &alertIDs).Error; err != nil {
			return fmt.Errorf("failed to query reading alerts: %w", err)
		}
		if err := tx.Where("reading_id = ?", readingID).Delete(&alertRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete alerts: %w", err)
		}
		if err := tx.Delete(&reading).Error; err != nil {
			return fmt.Errorf("failed to delete reading: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return alertIDs, nil
}

func (r *alertViewRow) toView() (*domain.AlertView, error) {
	t, sev, err := decodeEnums(r.AlertType, r.Severity)
	if err != nil {
		return nil, err
	}
	v := &domain.AlertView{
		VitalAlert: domain.VitalAlert{
			ID:           r.ID,
			ReadingID:    r.ReadingID,
			Type:         t,
			Severity:     sev,
			Message:      r.Message,
			Acknowledged: r.Acknowledged,
			CreatedAt:    r.CreatedAt.UTC(),
		},
		Reading: domain.ReadingSummary{
			ID:            r.ReadingID,
			RecordedAt:    r.RecordedAt.UTC(),
			Week:          r.Week,
			Systolic:      r.Systolic,
			Diastolic:     r.Diastolic,
			HeartRate:     r.HeartRate,
			Temperature:   r.Temperature,
			Glucose:       r.Glucose,
			SpO2:          r.SpO2,
			FetalMovement: r.FetalMovement,
		},
	}
	if r.AcknowledgedAt != nil {
		at := r.AcknowledgedAt.UTC()
		v.AcknowledgedAt = &at
	}
	return v, nil
}
