package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadpulse_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadpulse_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	dispatchTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadpulse_dispatch_ticks_total",
			Help: "Total dispatch ticks executed",
		},
	)

	dispatchTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "leadpulse_dispatch_tick_duration_seconds",
			Help:    "Dispatch tick execution time",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30},
		},
	)

	leadsDue = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadpulse_leads_due_total",
			Help: "Leads matched by the dispatch window",
		},
	)

	notificationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadpulse_notifications_created_total",
			Help: "Notifications created by the dispatcher",
		},
	)

	notificationsDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadpulse_notifications_duplicate_total",
			Help: "Notification creations skipped by the idempotency guard",
		},
	)

	dispatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadpulse_dispatch_errors_total",
			Help: "Per-lead errors during dispatch ticks",
		},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadpulse_deliveries_total",
			Help: "Out-of-band delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTick records one completed dispatch tick
func RecordTick(duration time.Duration) {
	dispatchTicks.Inc()
	dispatchTickDuration.Observe(duration.Seconds())
}

// RecordLeadsDue records the number of leads matched in a tick window
func RecordLeadsDue(count int) {
	leadsDue.Add(float64(count))
}

// RecordNotificationCreated records a notification created by the dispatcher
func RecordNotificationCreated() {
	notificationsCreated.Inc()
}

// RecordNotificationDuplicate records a creation skipped as already handled
func RecordNotificationDuplicate() {
	notificationsDuplicate.Inc()
}

// RecordDispatchError records a per-lead dispatch failure
func RecordDispatchError() {
	dispatchErrors.Inc()
}

// RecordDelivery records an out-of-band delivery attempt
func RecordDelivery(channel, outcome string) {
	deliveriesTotal.WithLabelValues(channel, outcome).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
