package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of authenticated websocket sessions",
	})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_ws_messages_total",
		Help: "Total number of chat messages persisted",
	})
	WsFramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_ws_frames_dropped_total",
		Help: "Inbound frames dropped before reaching a handler",
	}, []string{"reason"})
	PushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_pushes_total",
		Help: "Events handed to the fan-out hub, by kind",
	}, []string{"kind"})
	SlowConsumersDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_slow_consumers_dropped_total",
		Help: "Sessions disconnected because their send buffer was full",
	})
	RevocationsSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocations_swept_total",
		Help: "Expired token revocation records removed by the sweeper",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, WsMessagesTotal, WsFramesDropped, PushesTotal,
		SlowConsumersDropped, RevocationsSwept, HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，未匹配路由统一归为 unmatched。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
