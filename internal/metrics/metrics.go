// Package metrics holds the Prometheus collectors for the vitals service.
//
// Labels stay bounded: alert type and severity come from closed enums, event
// names from a fixed table, and the HTTP path label uses the registered gin
// route rather than the raw URL.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReadingsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vitals_readings_recorded_total",
			Help: "Readings persisted by the alert manager.",
		},
	)

	AlertsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_alerts_created_total",
			Help: "Alerts created, by type and severity.",
		},
		[]string{"type", "severity"},
	)

	// AlertsAcknowledged counts effective UNACK to ACK transitions only;
	// repeated acknowledgments are not counted.
	AlertsAcknowledged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vitals_alerts_acknowledged_total",
			Help: "Alerts transitioned to acknowledged.",
		},
	)

	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events handed to the pub/sub transport.",
		},
		[]string{"event"},
	)

	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Events dropped before or during delivery, by reason.",
		},
		[]string{"reason"},
	)

	IngestMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vitals_ingest_messages_total",
			Help: "Ingest queue messages, by outcome.",
		},
		[]string{"outcome"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Open WebSocket subscriptions.",
		},
	)

	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Drop reasons.
const (
	DropQueueFull = "queue_full"
	DropClosed    = "closed"
	DropDelivery  = "delivery_failed"
	DropEncode    = "encode_failed"
	DropSlowPeer  = "slow_subscriber"
)

// Ingest outcomes.
const (
	IngestAccepted = "accepted"
	IngestRejected = "rejected"
	IngestRetried  = "retried"
	IngestFailed   = "dead_lettered"
)

func init() {
	prometheus.MustRegister(
		ReadingsRecorded,
		AlertsCreated,
		AlertsAcknowledged,
		EventsPublished,
		EventsDropped,
		IngestMessages,
		WSConnections,
		httpReqs,
		httpLat,
	)
}

// HTTP returns gin middleware counting requests and observing latency per
// route.
func HTTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
