// Package alerts owns the alert lifecycle: creating alerts atomically with
// the reading that produced them, the UNACK to ACK transition, and the
// triage-ordered read side.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/logging"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/metrics"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/repository"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/threshold"
)

// Reading list bounds.
const (
	DefaultReadingLimit = 50
	MaxReadingLimit     = 500
)

// Store is the storage the manager needs. Ownership is enforced by the
// store: every read and write is scoped to ownerID.
type Store interface {
	InTx(ctx context.Context, fn func(repository.Tx) error) error
	GetAlert(ctx context.Context, alertID, ownerID string) (*domain.AlertView, error)
	AcknowledgeAlert(ctx context.Context, alertID, ownerID string, at time.Time) (bool, error)
	ListAlerts(ctx context.Context, ownerID string, filter domain.AlertFilter) ([]domain.AlertView, error)
	CountOpenAlerts(ctx context.Context, ownerID string) (domain.AlertCounts, error)
	ListReadings(ctx context.Context, ownerID string, limit int) ([]domain.VitalReading, error)
	DeleteReading(ctx context.Context, readingID, ownerID string) ([]string, error)
}

// EventPublisher is the fire-and-forget side of the event publisher.
type EventPublisher interface {
	Publish(userID, event string, payload any)
}

// Recorded is a stored reading with every alert derived from it.
type Recorded struct {
	Reading domain.VitalReading `json:"reading"`
	Alerts  []domain.AlertView  `json:"alerts"`
}

// Manager coordinates the evaluator, the store and the publisher.
type Manager struct {
	store     Store
	evaluator *threshold.Evaluator
	events    EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewManager creates a new alert manager
func NewManager(store Store, evaluator *threshold.Evaluator, publisher EventPublisher, logger *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		evaluator: evaluator,
		events:    publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordReading stores an already validated reading and every alert the
// evaluator derives from it in one transaction, then publishes vital.added
// and one vital.alert.created per alert. Ids and timestamps are assigned
// here.
func (m *Manager) RecordReading(ctx context.Context, r domain.VitalReading) (*Recorded, error) {
	now := m.now().UTC()
	r.ID = uuid.NewString()
	r.RecordedAt = r.RecordedAt.UTC()
	r.CreatedAt = now

	candidates := m.evaluator.Evaluate(&r)
	alerts := make([]domain.VitalAlert, 0, len(candidates))
	for _, c := range candidates {
		alerts = append(alerts, domain.VitalAlert{
			ID:        uuid.NewString(),
			ReadingID: r.ID,
			Type:      c.Type,
			Severity:  c.Severity,
			Message:   c.Message,
			CreatedAt: now,
		})
	}

	err := m.store.InTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertReading(ctx, &r); err != nil {
			return err
		}
		for i := range alerts {
			if err := tx.InsertAlert(ctx, &alerts[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record reading: %w", err)
	}

	summary := r.Summary()
	views := make([]domain.AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, domain.AlertView{VitalAlert: a, Reading: summary})
		metrics.AlertsCreated.WithLabelValues(a.Type.String(), a.Severity.String()).Inc()
	}
	metrics.ReadingsRecorded.Inc()

	m.events.Publish(r.UserID, events.VitalAdded, r)
	for _, v := range views {
		m.events.Publish(r.UserID, events.AlertCreated, v)
	}

	logging.WithActor(m.logger, r.UserID).Info("reading recorded",
		zap.String("reading_id", r.ID),
		zap.Int("alerts", len(views)),
	)
	return &Recorded{Reading: r, Alerts: views}, nil
}

// Acknowledge moves an alert owned by actorID to ACK. Acknowledging an
// already acknowledged alert succeeds without changing it. Concurrent calls
// for the same alert produce one transition and one event.
func (m *Manager) Acknowledge(ctx context.Context, alertID, actorID string) (*domain.AlertView, error) {
	view, err := m.store.GetAlert(ctx, alertID, actorID)
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert %s: %w", alertID, err)
	}
	if view.Acknowledged {
		return view, nil
	}

	changed, err := m.store.AcknowledgeAlert(ctx, alertID, actorID, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert %s: %w", alertID, err)
	}

	// Re-read so a caller that lost the race sees the winner's timestamp.
	view, err = m.store.GetAlert(ctx, alertID, actorID)
	if err != nil {
		return nil, fmt.Errorf("acknowledge alert %s: %w", alertID, err)
	}

	if changed {
		metrics.AlertsAcknowledged.Inc()
		m.events.Publish(actorID, events.AlertAcknowledged, view)
		logging.WithActor(m.logger, actorID).Info("alert acknowledged",
			zap.String("alert_id", alertID),
			zap.String("type", view.Type.String()),
		)
	}
	return view, nil
}

// List returns actorID's alerts matching filter, severity desc then newest
// first.
func (m *Manager) List(ctx context.Context, actorID string, filter domain.AlertFilter) ([]domain.AlertView, error) {
	views, err := m.store.ListAlerts(ctx, actorID, filter)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	domain.SortForTriage(views)
	return views, nil
}

// Summary counts actorID's unacknowledged alerts per severity.
func (m *Manager) Summary(ctx context.Context, actorID string) (domain.AlertCounts, error) {
	counts, err := m.store.CountOpenAlerts(ctx, actorID)
	if err != nil {
		return counts, fmt.Errorf("alert summary: %w", err)
	}
	return counts, nil
}

// ListReadings returns actorID's newest readings. limit is clamped to
// [1, MaxReadingLimit]; zero or less means DefaultReadingLimit.
func (m *Manager) ListReadings(ctx context.Context, actorID string, limit int) ([]domain.VitalReading, error) {
	switch {
	case limit <= 0:
		limit = DefaultReadingLimit
	case limit > MaxReadingLimit:
		limit = MaxReadingLimit
	}
	readings, err := m.store.ListReadings(ctx, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	return readings, nil
}

// DeleteReading removes a reading and its alerts, then publishes
// vital.deleted and one vital.alert.deleted per removed alert.
func (m *Manager) DeleteReading(ctx context.Context, readingID, actorID string) error {
	alertIDs, err := m.store.DeleteReading(ctx, readingID, actorID)
	if err != nil {
		return fmt.Errorf("delete reading %s: %w", readingID, err)
	}

	m.events.Publish(actorID, events.VitalDeleted, events.Deleted{ID: readingID})
	for _, id := range alertIDs {
		m.events.Publish(actorID, events.AlertDeleted, events.Deleted{ID: id})
	}

	logging.WithActor(m.logger, actorID).Info("reading deleted",
		zap.String("reading_id", readingID),
		zap.Int("alerts", len(alertIDs)),
	)
	return nil
}
