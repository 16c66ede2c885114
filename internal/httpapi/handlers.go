package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/alerts"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/service"
)

// AlertService is the alert manager as seen by the HTTP layer.
type AlertService interface {
	Acknowledge(ctx context.Context, alertID, actorID string) (*domain.AlertView, error)
	List(ctx context.Context, actorID string, filter domain.AlertFilter) ([]domain.AlertView, error)
	Summary(ctx context.Context, actorID string) (domain.AlertCounts, error)
	ListReadings(ctx context.Context, actorID string, limit int) ([]domain.VitalReading, error)
	DeleteReading(ctx context.Context, readingID, actorID string) error
}

// Ingestor validates and records submitted readings.
type Ingestor interface {
	Submit(ctx context.Context, in service.ReadingInput, receivedAt time.Time) (*alerts.Recorded, error)
}

// Handlers groups the vitals and alerts endpoints.
type Handlers struct {
	alerts AlertService
	ingest Ingestor
}

// NewHandlers binds handlers to their services.
func NewHandlers(alerts AlertService, ingest Ingestor) *Handlers {
	return &Handlers{alerts: alerts, ingest: ingest}
}

// CreateReading handles POST /api/v1/vitals. The reading always belongs to
// the caller; a user_id in the body is ignored.
func (h *Handlers) CreateReading(c *gin.Context) {
	var in service.ReadingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	in.UserID = actor(c)

	recorded, err := h.ingest.Submit(c.Request.Context(), in, time.Now().UTC())
	if err != nil {
		failErr(c, err, "reading not found")
		return
	}
	c.JSON(http.StatusCreated, recorded)
}

// ListReadings handles GET /api/v1/vitals?limit=N.
func (h *Handlers) ListReadings(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	readings, err := h.alerts.ListReadings(c.Request.Context(), actor(c), limit)
	if err != nil {
		failErr(c, err, "")
		return
	}
	c.JSON(http.StatusOK, readings)
}

// DeleteReading handles DELETE /api/v1/vitals/:id.
func (h *Handlers) DeleteReading(c *gin.Context) {
	if err := h.alerts.DeleteReading(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		failErr(c, err, "reading not found")
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAlerts handles GET /api/v1/alerts?severity=&unacknowledgedOnly=.
// unacknowledgedOnly defaults to true.
func (h *Handlers) ListAlerts(c *gin.Context) {
	filter := domain.DefaultAlertFilter()

	if raw := strings.TrimSpace(c.Query("severity")); raw != "" {
		sev, err := domain.ParseSeverity(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "severity must be one of INFO, WARNING, CRITICAL")
			return
		}
		filter.Severity = &sev
	}
	if raw := strings.TrimSpace(c.Query("unacknowledgedOnly")); raw != "" {
		only, err := strconv.ParseBool(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unacknowledgedOnly must be a boolean")
			return
		}
		filter.UnacknowledgedOnly = only
	}

	views, err := h.alerts.List(c.Request.Context(), actor(c), filter)
	if err != nil {
		failErr(c, err, "")
		return
	}
	c.JSON(http.StatusOK, views)
}

// AlertSummary handles GET /api/v1/alerts/summary.
func (h *Handlers) AlertSummary(c *gin.Context) {
	counts, err := h.alerts.Summary(c.Request.Context(), actor(c))
	if err != nil {
		failErr(c, err, "")
		return
	}
	c.JSON(http.StatusOK, counts)
}

// AcknowledgeAlert handles POST /api/v1/alerts/:id/acknowledge. Repeating
// the call returns 200 with the unchanged alert.
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	view, err := h.alerts.Acknowledge(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		failErr(c, err, "alert not found")
		return
	}
	c.JSON(http.StatusOK, view)
}
