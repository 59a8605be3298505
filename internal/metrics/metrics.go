// Package metrics exposes the prometheus collectors shared across the
// campaign engine, media bridge, event bus, and API surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "callengine"

// HTTP metrics, incremented by InstrumentHandler.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Campaign engine counters.
var (
	CallsPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_placed_total",
		Help:      "Total calls placed per campaign.",
	}, []string{"campaign_id"})

	CampaignCyclesSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "campaign_cycles_skipped_total",
		Help:      "Scheduler ticks skipped because a cycle was still in progress.",
	}, []string{"campaign_id"})

	ActiveCampaigns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_campaigns",
		Help:      "Number of campaigns currently in the active set.",
	})
)

// Media bridge / event bus counters.
var (
	BridgeSessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "bridge_sessions_active",
		Help:      "Media bridge sessions currently open.",
	})

	BridgeFramesDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bridge_frames_dropped_total",
		Help:      "Audio frames dropped due to backpressure, by leg.",
	}, []string{"leg"})

	EventBusPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eventbus_published_total",
		Help:      "Events published per topic.",
	}, []string{"topic"})

	EventBusLaggedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eventbus_subscriber_lagged_total",
		Help:      "Subscriber lag events (dropped due to a full channel), per topic.",
	}, []string{"topic"})

	HubClientsConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hub_clients_connected",
		Help:      "Dashboard websocket clients currently connected.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CallsPlacedTotal,
		CampaignCyclesSkippedTotal,
		ActiveCampaigns,
		BridgeSessionsActive,
		BridgeFramesDroppedTotal,
		EventBusPublishedTotal,
		EventBusLaggedTotal,
		HubClientsConnected,
	)
}

// InstrumentHandler is gin middleware recording per-route HTTP metrics. It
// uses gin's matched route pattern (FullPath) as the label to avoid
// cardinality explosion from path parameters.
func InstrumentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
