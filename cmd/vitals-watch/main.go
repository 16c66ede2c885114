// Command vitals-watch signs in as one user, keeps a live session against
// the vitals server and periodically logs what its caches hold.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/config"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/identity"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/logging"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/reconcile"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/session"
)

func main() {
	config.LoadDotEnv()

	server := flag.String("server", envOr("VITALS_SERVER", "http://localhost:8080"), "Vitals server base URL")
	userID := flag.String("user", os.Getenv("VITALS_USER"), "User to sign in as")
	header := flag.String("identity-header", envOr("IDENTITY_HEADER", identity.DefaultHeader), "Header carrying the user id")
	every := flag.Duration("every", 10*time.Second, "How often to log cache state")
	appointments := flag.String("appointments-path", "", "Optional appointments endpoint on the same server")
	notifications := flag.String("notifications-path", "", "Optional notifications endpoint on the same server")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	logger, err := logging.NewLogger("vitals-watch", *level, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if *userID == "" {
		logger.Fatal("a user is required (-user or VITALS_USER)")
	}
	logger = logging.WithActor(logger, *userID)

	base := strings.TrimRight(*server, "/")
	sub := session.NewWSSubscriber(session.WSConfig{
		URL:            "ws" + strings.TrimPrefix(base, "http") + "/ws",
		IdentityHeader: *header,
		UserID:         *userID,
	}, logger)
	resyncer := session.NewHTTPResyncer(session.ResyncConfig{
		BaseURL:           base,
		IdentityHeader:    *header,
		UserID:            *userID,
		AppointmentsPath:  *appointments,
		NotificationsPath: *notifications,
	}, logger)
	sess := session.New(sub, resyncer, session.Config{}, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
	err = sess.Start(startCtx)
	startCancel()
	if err != nil {
		sess.Close() //nolint:errcheck
		logger.Fatal("failed to start session", zap.Error(err))
	}
	defer sess.Close() //nolint:errcheck

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		logState(ctx, sess, logger)
		select {
		case <-ctx.Done():
			logger.Info("signing out")
			return
		case <-ticker.C:
		}
	}
}

func logState(ctx context.Context, sess *session.Session, logger *zap.Logger) {
	err := sess.View(ctx, func(c *reconcile.Caches) {
		fields := []zap.Field{
			zap.Int("vitals", c.Vitals.Len()),
			zap.Int("alerts", c.Alerts.Len()),
			zap.Int("notifications", c.Notifications.Len()),
			zap.Int("appointments", c.Appointments.Len()),
		}
		if vitals := c.Vitals.List(); len(vitals) > 0 {
			fields = append(fields, zap.Time("latest_reading", vitals[0].RecordedAt))
		}
		alerts := c.Alerts.List()
		open := 0
		for _, a := range alerts {
			if !a.Acknowledged {
				open++
			}
		}
		fields = append(fields, zap.Int("open_alerts", open))
		if len(alerts) > 0 {
			fields = append(fields,
				zap.String("top_alert", alerts[0].Type.String()),
				zap.String("top_severity", alerts[0].Severity.String()))
		}
		logger.Info("cache state", fields...)
	})
	if err != nil && ctx.Err() == nil {
		logger.Warn("could not read caches", zap.Error(err))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
