package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skywatch_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	eventsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_events_fired_total",
			Help: "Events emitted to notifiers, by kind.",
		},
		[]string{"kind"},
	)

	eventsRescheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_events_rescheduled_total",
			Help: "Follow-up events queued after a fire, by kind.",
		},
		[]string{"kind"},
	)

	eventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_events_dropped_total",
			Help: "Events that could not be computed or queued, by reason.",
		},
		[]string{"reason"},
	)

	fireLatenessSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skywatch_fire_lateness_seconds",
			Help:    "Delay between an event's date and its emission.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skywatch_queue_depth",
			Help: "Events pending in the scheduler queue.",
		},
	)

	catalogFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_catalog_fetches_total",
			Help: "Catalog download attempts, by catalog and result.",
		},
		[]string{"catalog", "result"},
	)

	catalogAgeSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skywatch_catalog_age_seconds",
			Help: "Age of each catalog's Last-Modified date.",
		},
		[]string{"catalog"},
	)

	catalogBodies = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skywatch_catalog_bodies",
			Help: "Bodies loaded from each catalog.",
		},
		[]string{"catalog"},
	)

	notifyDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_notify_dropped_total",
			Help: "Fired events not delivered to a slow subscriber.",
		},
		[]string{"subscriber"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_stream_connections_total",
			Help: "SSE connection lifecycle events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skywatch_streams_active",
			Help: "Currently open SSE streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skywatch_stream_messages_total",
			Help: "SSE data messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skywatch_stream_bytes_total",
			Help: "Bytes written to SSE streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywatch_stream_errors_total",
			Help: "SSE stream errors, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		eventsFiredTotal,
		eventsRescheduledTotal,
		eventsDroppedTotal,
		fireLatenessSeconds,
		queueDepth,
		catalogFetchesTotal,
		catalogAgeSeconds,
		catalogBodies,
		notifyDroppedTotal,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncEventsFired(kind string)       { eventsFiredTotal.WithLabelValues(kind).Inc() }
func IncEventsRescheduled(kind string) { eventsRescheduledTotal.WithLabelValues(kind).Inc() }
func IncEventsDropped(reason string)   { eventsDroppedTotal.WithLabelValues(reason).Inc() }

// ObserveFireLateness records how long after its date an event was emitted.
func ObserveFireLateness(d time.Duration) {
	if d < 0 {
		d = 0
	}
	fireLatenessSeconds.Observe(d.Seconds())
}

func SetQueueDepth(n int) { queueDepth.Set(float64(n)) }

func IncCatalogFetches(catalog, result string) {
	catalogFetchesTotal.WithLabelValues(catalog, result).Inc()
}

func SetCatalogAge(catalog string, age time.Duration) {
	catalogAgeSeconds.WithLabelValues(catalog).Set(age.Seconds())
}

func SetCatalogBodies(catalog string, n int) {
	catalogBodies.WithLabelValues(catalog).Set(float64(n))
}

func IncNotifyDropped(subscriber string) { notifyDroppedTotal.WithLabelValues(subscriber).Inc() }

func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64)            { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string)     { streamErrorsTotal.WithLabelValues(reason).Inc() }

// knownRoutes are reported as-is; everything else is collapsed so that bots
// probing random paths cannot blow up label cardinality.
var knownRoutes = map[string]bool{
	"/":                     true,
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/events":        true,
	"/api/v1/bodies":        true,
	"/api/v1/catalogs":      true,
	"/api/v1/sky":           true,
	"/api/v1/stream/events": true,
}

// normalizeRoute maps a request path to a bounded set of metric labels.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/bodies/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/bodies/{name}"
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/catalogs/"); ok {
		if name, ok := strings.CutSuffix(rest, "/refresh"); ok && name != "" && !strings.Contains(name, "/") {
			return "/api/v1/catalogs/{name}/refresh"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE handlers behind the middleware can stream.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
