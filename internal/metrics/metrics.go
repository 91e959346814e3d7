// Package metrics provides Prometheus metrics for the SMS gateway.
package metrics

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsapi_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smsapi_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsapi_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	// Spool metrics
	spoolListsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsapi_spool_lists_total",
			Help: "Total folder listing requests",
		},
		[]string{"folder"},
	)

	smsFilesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsapi_sms_files_created_total",
			Help: "Total outgoing SMS files written",
		},
		[]string{"source"},
	)

	sendRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsapi_send_rejections_total",
			Help: "Total rejected send-sms requests",
		},
		[]string{"reason"},
	)

	// Watch session metrics
	watchSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smsapi_watch_sessions_active",
			Help: "Number of active WebSocket watch sessions",
		},
	)

	watchEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smsapi_watch_events_total",
			Help: "Total watch events sent to clients",
		},
		[]string{"type"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordSpoolList records a folder listing.
func RecordSpoolList(folder string) {
	spoolListsTotal.WithLabelValues(folder).Inc()
}

// RecordSMSCreated records an outgoing SMS file write.
// Source is "public" for /send-sms or "admin" for the test-send endpoint.
func RecordSMSCreated(source string) {
	smsFilesCreatedTotal.WithLabelValues(source).Inc()
}

// RecordSendRejection records a rejected send-sms request.
func RecordSendRejection(reason string) {
	sendRejectionsTotal.WithLabelValues(reason).Inc()
}

// SetWatchSessionsActive sets the number of active watch sessions.
func SetWatchSessionsActive(count int64) {
	watchSessionsActive.Set(float64(count))
}

// RecordWatchEvent records a watch event sent to a client.
func RecordWatchEvent(eventType string) {
	watchEventsTotal.WithLabelValues(eventType).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets WebSocket upgrades take over the underlying connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
