package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/identity"
)

// ResyncConfig points the resyncer at the read API.
type ResyncConfig struct {
	BaseURL        string
	IdentityHeader string
	UserID         string
	Timeout        time.Duration
	VitalsLimit    int

	// Optional. Notifications and appointments are served by other services;
	// an empty path skips the fetch.
	NotificationsPath string
	AppointmentsPath  string
}

// HTTPResyncer fetches snapshots over the read API.
type HTTPResyncer struct {
	client *resty.Client
	cfg    ResyncConfig
	logger *zap.Logger
}

// NewHTTPResyncer creates a resyncer authenticated as cfg.UserID.
func NewHTTPResyncer(cfg ResyncConfig, logger *zap.Logger) *HTTPResyncer {
	if cfg.IdentityHeader == "" {
		cfg.IdentityHeader = identity.DefaultHeader
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.VitalsLimit <= 0 {
		cfg.VitalsLimit = 100
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		SetHeader(cfg.IdentityHeader, cfg.UserID)

	return &HTTPResyncer{client: client, cfg: cfg, logger: logger}
}

// Fetch reads vitals and every alert, acknowledged or not, plus the optional
// notifications and appointments.
func (h *HTTPResyncer) Fetch(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}

	if err := h.get(ctx, "/api/v1/vitals", map[string]string{"limit": strconv.Itoa(h.cfg.VitalsLimit)}, &snap.Vitals); err != nil {
		return nil, err
	}
	if err := h.get(ctx, "/api/v1/alerts", map[string]string{"unacknowledgedOnly": "false"}, &snap.Alerts); err != nil {
		return nil, err
	}
	if h.cfg.NotificationsPath != "" {
		if err := h.get(ctx, h.cfg.NotificationsPath, nil, &snap.Notifications); err != nil {
			return nil, err
		}
	}
	if h.cfg.AppointmentsPath != "" {
		if err := h.get(ctx, h.cfg.AppointmentsPath, nil, &snap.Appointments); err != nil {
			return nil, err
		}
	}

	h.logger.Debug("snapshot fetched",
		zap.Int("vitals", len(snap.Vitals)),
		zap.Int("alerts", len(snap.Alerts)))
	return snap, nil
}

func (h *HTTPResyncer) get(ctx context.Context, path string, query map[string]string, out any) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.IsError() {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode())
	}
	return nil
}
