package session_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/alerts"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/db"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/domain"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/events"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/httpapi"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/identity"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/reconcile"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/repository"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/service"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/session"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/threshold"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/validator"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/ws"
)

type server struct {
	url     string
	gateway *ws.Gateway
}

func startServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	gdb, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	store := repository.NewSQLite(gdb)
	require.NoError(t, store.AutoMigrate())

	transport := events.NewMemory(64, logger)
	publisher := events.NewPublisher(transport, events.PublisherConfig{Workers: 2}, logger)
	manager := alerts.NewManager(store, threshold.NewEvaluator(threshold.DefaultBands()), publisher, logger)
	processor := service.NewProcessorService(manager, validator.NewValidator(60), logger)
	gateway := ws.NewGateway(transport, identity.DefaultHeader, logger)

	srv := httptest.NewServer(httpapi.NewRouter(httpapi.Deps{
		Handlers:       httpapi.NewHandlers(manager, processor),
		Stream:         gateway,
		IdentityHeader: identity.DefaultHeader,
		Logger:         logger,
	}))
	t.Cleanup(func() {
		srv.Close()
		publisher.Close(context.Background()) //nolint:errcheck
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return &server{url: srv.URL, gateway: gateway}
}

func (s *server) call(t *testing.T, method, path, actor string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.url+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.DefaultHeader, actor)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *server) record(t *testing.T, actor string, fields map[string]any) alerts.Recorded {
	t.Helper()
	fields["recorded_at"] = time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	resp := s.call(t, http.MethodPost, "/api/v1/vitals", actor, fields)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rec alerts.Recorded
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	return rec
}

func openSession(t *testing.T, s *server, user string) *session.Session {
	t.Helper()
	logger := zap.NewNop()
	sub := session.NewWSSubscriber(session.WSConfig{
		URL:            "ws" + strings.TrimPrefix(s.url, "http") + "/ws",
		UserID:         user,
		ReconnectDelay: 20 * time.Millisecond,
	}, logger)
	resyncer := session.NewHTTPResyncer(session.ResyncConfig{BaseURL: s.url, UserID: user}, logger)

	sess := session.New(sub, resyncer, session.Config{}, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sess.Start(ctx))
	t.Cleanup(func() { sess.Close() })
	return sess
}

func snapshot(t *testing.T, sess *session.Session) (vitals []domain.VitalReading, alertViews []domain.AlertView) {
	t.Helper()
	require.NoError(t, sess.View(context.Background(), func(c *reconcile.Caches) {
		vitals = c.Vitals.List()
		alertViews = c.Alerts.List()
	}))
	return vitals, alertViews
}

func TestSessionFollowsServerState(t *testing.T) {
	srv := startServer(t)
	first := srv.record(t, "u1", map[string]any{"heart_rate": 150})
	srv.record(t, "u2", map[string]any{"heart_rate": 150})

	sess := openSession(t, srv, "u1")
	vitals, views := snapshot(t, sess)
	require.Len(t, vitals, 1)
	require.Len(t, views, 1)
	assert.Equal(t, first.Reading.ID, vitals[0].ID)

	second := srv.record(t, "u1", map[string]any{"spo2": 93})
	assert.Eventually(t, func() bool {
		v, a := snapshot(t, sess)
		return len(v) == 2 && len(a) == 2
	}, 2*time.Second, 20*time.Millisecond)

	_, views = snapshot(t, sess)
	assert.Equal(t, domain.SeverityCritical, views[0].Severity)
	assert.Equal(t, second.Alerts[0].ID, views[1].ID)

	resp := srv.call(t, http.MethodPost, "/api/v1/alerts/"+first.Alerts[0].ID+"/acknowledge", "u1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Eventually(t, func() bool {
		var acked bool
		sess.View(context.Background(), func(c *reconcile.Caches) { //nolint:errcheck
			a, ok := c.Alerts.Get(first.Alerts[0].ID)
			acked = ok && a.Acknowledged
		})
		return acked
	}, 2*time.Second, 20*time.Millisecond)

	resp = srv.call(t, http.MethodDelete, "/api/v1/vitals/"+first.Reading.ID, "u1", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Eventually(t, func() bool {
		v, a := snapshot(t, sess)
		return len(v) == 1 && len(a) == 1 && v[0].ID == second.Reading.ID
	}, 2*time.Second, 20*time.Millisecond)
}

func TestSessionCloseDisconnects(t *testing.T) {
	srv := startServer(t)
	sess := openSession(t, srv, "u1")
	assert.Eventually(t, func() bool { return srv.gateway.Count() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, sess.Close())
	assert.Eventually(t, func() bool { return srv.gateway.Count() == 0 }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, sess.View(context.Background(), func(*reconcile.Caches) {}), session.ErrClosed)
}

func TestSessionStartFailsWithoutIdentity(t *testing.T) {
	srv := startServer(t)
	logger := zap.NewNop()
	sub := session.NewWSSubscriber(session.WSConfig{
		URL: "ws" + strings.TrimPrefix(srv.url, "http") + "/ws",
	}, logger)
	sess := session.New(sub, session.NewHTTPResyncer(session.ResyncConfig{BaseURL: srv.url}, logger), session.Config{}, logger)

	err := sess.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
