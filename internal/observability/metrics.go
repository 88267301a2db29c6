package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_bridge_http_requests_total",
			Help: "Total number of HTTP requests processed by the view bridge.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_bridge_http_request_duration_seconds",
			Help:    "View bridge HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of open backend websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket events by direction.",
		},
		[]string{"direction", "event"},
	)
	wsReconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_reconnects_total",
			Help: "Total number of reconnection attempts by outcome.",
		},
		[]string{"outcome"},
	)
	wsRequestTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_request_timeouts_total",
			Help: "Total number of one-shot requests that got no response in time.",
		},
		[]string{"event"},
	)
	restRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_rest_requests_total",
			Help: "Total number of backend REST calls.",
		},
		[]string{"endpoint", "status"},
	)
	notificationsInFeed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_notifications_in_feed",
			Help: "Number of notifications currently in the feed.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		wsReconnectsTotal,
		wsRequestTimeoutsTotal,
		restRequestsTotal,
		notificationsInFeed,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

// IncWSEvent counts one frame; direction is "in" or "out".
func IncWSEvent(direction, event string) {
	wsEventsTotal.WithLabelValues(direction, event).Inc()
}

func IncReconnect(outcome string) {
	wsReconnectsTotal.WithLabelValues(outcome).Inc()
}

func IncRequestTimeout(event string) {
	wsRequestTimeoutsTotal.WithLabelValues(event).Inc()
}

func IncRESTRequest(endpoint string, status int) {
	restRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func SetNotificationsInFeed(n int) {
	notificationsInFeed.Set(float64(n))
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
