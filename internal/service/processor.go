package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/alerts"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/logging"
	"github.com/kishorathod/PrenatalPlus-sub002/tools/timeparser"
)

// ErrMalformedMessage marks an ingest body that does not decode.
var ErrMalformedMessage = errors.New("malformed ingest message")

// IsPermanent reports whether retrying the message cannot succeed: it does
// not decode or the reading fails validation.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedMessage) || errors.Is(err, domain.ErrValidation)
}

// IngestMessage represents a reading arriving on the ingest queue
type IngestMessage struct {
	RequestID  string       `json:"request_id"`
	Source     string       `json:"source"`
	ReceivedAt time.Time    `json:"received_at"`
	Reading    ReadingInput `json:"reading"`
}

// ReadingInput is a reading as submitted by a device or client. recorded_at
// is a string so devices can send any of the formats timeparser accepts.
type ReadingInput struct {
	UserID        string   `json:"user_id"`
	PregnancyID   *string  `json:"pregnancy_id,omitempty"`
	RecordedAt    string   `json:"recorded_at"`
	Week          *int     `json:"week,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	Systolic      *int     `json:"systolic,omitempty"`
	Diastolic     *int     `json:"diastolic,omitempty"`
	HeartRate     *int     `json:"heart_rate,omitempty"`
	Weight        *float64 `json:"weight,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Glucose       *int     `json:"glucose,omitempty"`
	SpO2          *int     `json:"spo2,omitempty"`
	FetalMovement *int     `json:"fetal_movement,omitempty"`
}

// ToReading converts the input into a domain reading. An unparseable
// recorded_at is reported as a validation problem.
func (in ReadingInput) ToReading() (domain.VitalReading, error) {
	r := domain.VitalReading{
		UserID:        in.UserID,
		PregnancyID:   in.PregnancyID,
		Week:          in.Week,
		Notes:         in.Notes,
		Systolic:      in.Systolic,
		Diastolic:     in.Diastolic,
		HeartRate:     in.HeartRate,
		Weight:        in.Weight,
		Temperature:   in.Temperature,
		Glucose:       in.Glucose,
		SpO2:          in.SpO2,
		FetalMovement: in.FetalMovement,
	}
	if in.RecordedAt != "" {
		at, err := timeparser.ParseRecordedAt(in.RecordedAt)
		if err != nil {
			return r, &domain.ValidationError{
				Problems: []string{fmt.Sprintf("recorded_at %q is not a recognised timestamp", in.RecordedAt)},
			}
		}
		r.RecordedAt = at
	}
	return r, nil
}

// ReadingValidator checks a reading before it reaches the alert manager.
type ReadingValidator interface {
	ValidateReading(r *domain.VitalReading, receivedAt time.Time) error
}

// ProcessorService turns ingest messages into recorded readings
type ProcessorService struct {
	manager   *alerts.Manager
	validator ReadingValidator
	logger    *zap.Logger
}

// NewProcessorService creates a new processor service
func NewProcessorService(manager *alerts.Manager, validator ReadingValidator, logger *zap.Logger) *ProcessorService {
	return &ProcessorService{
		manager:   manager,
		validator: validator,
		logger:    logger,
	}
}

// ProcessMessage processes one ingest message. Any error, validation
// included, makes the consumer dead-letter the message.
func (s *ProcessorService) ProcessMessage(ctx context.Context, body []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)
	reqLogger.Info("processing message",
		zap.String("source", msg.Source),
		zap.String("user_id", msg.Reading.UserID),
	)

	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	recorded, err := s.Submit(ctx, msg.Reading, msg.ReceivedAt)
	if err != nil {
		reqLogger.Warn("reading rejected", zap.Error(err))
		return err
	}

	reqLogger.Info("message processed successfully",
		zap.String("reading_id", recorded.Reading.ID),
		zap.Int("alerts_count", len(recorded.Alerts)),
	)
	return nil
}

// Submit validates in and records it. It is shared by the queue consumer and
// the HTTP ingestion endpoint. Nothing is stored when validation fails.
func (s *ProcessorService) Submit(ctx context.Context, in ReadingInput, receivedAt time.Time) (*alerts.Recorded, error) {
	reading, err := in.ToReading()
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateReading(&reading, receivedAt); err != nil {
		return nil, err
	}

	recorded, err := s.manager.RecordReading(ctx, reading)
	if err != nil {
		return nil, fmt.Errorf("failed to record reading: %w", err)
	}
	return recorded, nil
}
