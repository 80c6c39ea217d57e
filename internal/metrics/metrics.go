package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/errorcue/errorcue/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "errorcue"

// Collector exposes Prometheus metrics for inbound HTTP requests and for
// error ingestion, retries and notifications.
type Collector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	ingested      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	resolved      prometheus.Counter
	notifications *prometheus.CounterVec
	rateLimited   prometheus.Counter
}

// NewCollector constructs a collector on its own registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_ingested_total",
			Help:      "Error reports accepted through the webhook.",
		}, []string{"error_type"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Simulated retries by outcome.",
		}, []string{"outcome"}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_resolved_total",
			Help:      "Resolve operations applied.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification attempts by result.",
		}, []string{"result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_rate_limited_total",
			Help:      "Ingestion requests rejected by the rate limiter.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.requestDuration, c.requestTotal,
		c.ingested, c.retries, c.resolved, c.notifications, c.rateLimited,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
// Requests are labelled with the chi route pattern so path parameters do not
// create new series.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := routePattern(r)

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
		return "unmatched"
	}
	return r.URL.Path
}

// otherErrorType labels error types outside the known set, keeping the
// error_type label bounded.
const otherErrorType = "other"

var knownErrorTypes = map[string]bool{
	models.ErrorTypeAuthExpired:      true,
	models.ErrorTypeRateLimit:        true,
	models.ErrorTypeConnectionFailed: true,
	models.ErrorTypeInvalidData:      true,
	models.ErrorTypeTimeout:          true,
}

func errorTypeLabel(errorType string) string {
	if knownErrorTypes[errorType] {
		return errorType
	}
	return otherErrorType
}

func (c *Collector) ErrorIngested(errorType string) {
	c.ingested.WithLabelValues(errorTypeLabel(errorType)).Inc()
}

func (c *Collector) RetrySimulated(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.retries.WithLabelValues(outcome).Inc()
}

func (c *Collector) ErrorResolved() {
	c.resolved.Inc()
}

func (c *Collector) NotificationSent(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	c.notifications.WithLabelValues(result).Inc()
}

func (c *Collector) RateLimited() {
	c.rateLimited.Inc()
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
