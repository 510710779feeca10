package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns every metric of one process. A nil *Manager records nothing.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         *prometheus.Registry

	// ETL
	rowsRead     *prometheus.CounterVec
	rowsLoaded   *prometheus.CounterVec
	rowsSkipped  *prometheus.CounterVec
	files        *prometheus.CounterVec
	fileDuration *prometheus.HistogramVec
	eventsSent   *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Cache
	cacheLookups *prometheus.CounterVec
}

// NewManager creates a metrics manager on its own registry unless WithRegistry is given.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ppa",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		registry:         prometheus.NewRegistry(),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.rowsRead = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "etl_rows_read_total",
		Help:      "Rows read from sources, by entity",
	}, []string{"entity"})

	m.rowsLoaded = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "etl_rows_loaded_total",
		Help:      "Curated upsert outcomes, by entity and outcome",
	}, []string{"entity", "outcome"})

	m.rowsSkipped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "etl_rows_skipped_total",
		Help:      "Rows rejected by validation, by entity and reason",
	}, []string{"entity", "reason"})

	m.files = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "etl_files_total",
		Help:      "Source files processed, by final state",
	}, []string{"state"})

	m.fileDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "etl_file_duration_seconds",
		Help:      "Time to process one source file",
		Buckets:   m.histogramBuckets,
	}, []string{"entity"})

	m.eventsSent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "etl_events_published_total",
		Help:      "ETL completion events published, by result",
	}, []string{"result"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method"})

	m.cacheLookups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cache_lookups_total",
		Help:      "Summary cache lookups, by result",
	}, []string{"result"})
}

func (m *Manager) active() bool {
	return m != nil && m.enabled
}

func (m *Manager) RecordRowsRead(entity string, n int) {
	if m.active() {
		m.rowsRead.WithLabelValues(entity).Add(float64(n))
	}
}

func (m *Manager) RecordRowsLoaded(entity, outcome string, n int) {
	if m.active() && n > 0 {
		m.rowsLoaded.WithLabelValues(entity, outcome).Add(float64(n))
	}
}

func (m *Manager) RecordRowSkipped(entity, reason string) {
	if m.active() {
		m.rowsSkipped.WithLabelValues(entity, reason).Inc()
	}
}

func (m *Manager) RecordFile(entity, state string, d time.Duration) {
	if m.active() {
		m.files.WithLabelValues(state).Inc()
		m.fileDuration.WithLabelValues(entity).Observe(d.Seconds())
	}
}

func (m *Manager) RecordEventPublished(ok bool) {
	if !m.active() {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.eventsSent.WithLabelValues(result).Inc()
}

func (m *Manager) RecordHTTPRequest(endpoint, method string, status int, d time.Duration) {
	if m.active() {
		m.httpRequests.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
		m.httpRequestDuration.WithLabelValues(endpoint, method).Observe(d.Seconds())
	}
}

func (m *Manager) RecordCacheLookup(hit bool) {
	if !m.active() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
