// Package httpapi is the gin transport for the vitals service: the read API
// clients resync from, acknowledgment, reading ingestion and the WebSocket
// endpoint.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kishorathod/PrenatalPlus-sub002/internal/identity"
	"github.com/kishorathod/PrenatalPlus-sub002/internal/metrics"
)

// Deps are the router's collaborators.
type Deps struct {
	Handlers       *Handlers
	Stream         http.Handler
	IdentityHeader string
	Logger         *zap.Logger
}

// NewRouter builds the gin engine.
//
// Middleware order: request id and scoped logger, access log, recovery,
// metrics, identity.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(requestID(d.Logger))
	r.Use(accessLog())
	r.Use(recovery())
	r.Use(metrics.HTTP())
	r.Use(identity.Middleware(d.IdentityHeader))

	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		fail(c, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if d.Stream != nil {
		r.GET("/ws", gin.WrapH(d.Stream))
	}

	h := d.Handlers
	v1 := r.Group("/api/v1", requireActor())
	{
		v1.POST("/vitals", h.CreateReading)
		v1.GET("/vitals", h.ListReadings)
		v1.DELETE("/vitals/:id", h.DeleteReading)

		v1.GET("/alerts", h.ListAlerts)
		v1.GET("/alerts/summary", h.AlertSummary)
		v1.POST("/alerts/:id/acknowledge", h.AcknowledgeAlert)
	}

	return r
}
