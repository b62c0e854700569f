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
			Name: "realtime_http_requests_total",
			Help: "Total number of HTTP requests processed by the realtime service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_events_total",
			Help: "Total number of websocket events by direction and name.",
		},
		[]string{"direction", "event"},
	)
	pushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_push_total",
			Help: "Server-initiated pushes by event and outcome (delivered, offline, dropped).",
		},
		[]string{"event", "outcome"},
	)
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_notifications_total",
			Help: "Notification create calls by type and result (created, duplicate, failed).",
		},
		[]string{"type", "result"},
	)
	fanoutTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_fanout_truncated_total",
			Help: "Follower fan-outs that hit the configured cap.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	amqpConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_amqp_consumed_total",
			Help: "Domain events consumed from the broker by routing key and result.",
		},
		[]string{"routing_key", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		pushTotal,
		notificationsTotal,
		fanoutTruncatedTotal,
		amqpPublishErrorsTotal,
		amqpConsumedTotal,
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

// IncWSEvent counts a frame; direction is "in" or "out".
func IncWSEvent(direction, event string) {
	wsEventsTotal.WithLabelValues(direction, event).Inc()
}

func IncPush(event, outcome string) {
	pushTotal.WithLabelValues(event, outcome).Inc()
}

func IncNotification(notificationType, result string) {
	notificationsTotal.WithLabelValues(notificationType, result).Inc()
}

func IncFanoutTruncated() {
	fanoutTruncatedTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncAMQPConsumed(routingKey, result string) {
	amqpConsumedTotal.WithLabelValues(routingKey, result).Inc()
}
