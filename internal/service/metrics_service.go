package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/classhub-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// the stats cache and domain state transitions. A nil *MetricsService is a
// valid no-op.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheLookups    *prometheus.CounterVec

	enrollmentRequests  *prometheus.CounterVec
	enrollmentDecisions *prometheus.CounterVec
	attendanceMarks     *prometheus.CounterVec
	crChanges           *prometheus.CounterVec
	noticesPosted       *prometheus.CounterVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_lookups_total",
		Help: "Cache lookups by result",
	}, []string{"result"})

	enrollmentRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_requests_total",
		Help: "Enrollment requests by outcome",
	}, []string{"outcome"})

	enrollmentDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_decisions_total",
		Help: "Enrollment decisions by verdict",
	}, []string{"decision"})

	attendanceMarks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Attendance rows written by status",
	}, []string{"status"})

	crChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "class_representative_changes_total",
		Help: "Class representative promotions and demotions",
	}, []string{"action"})

	noticesPosted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notices_posted_total",
		Help: "Notices posted by scope",
	}, []string{"scope"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheLookups,
		enrollmentRequests, enrollmentDecisions, attendanceMarks, crChanges, noticesPosted, goroutines)

	return &MetricsService{
		registry:            registry,
		handler:             promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		cacheLatency:        cacheLatency,
		cacheWrite:          cacheWrite,
		cacheLookups:        cacheLookups,
		enrollmentRequests:  enrollmentRequests,
		enrollmentDecisions: enrollmentDecisions,
		attendanceMarks:     attendanceMarks,
		crChanges:           crChanges,
		noticesPosted:       noticesPosted,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records a cache lookup.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.cacheLookups.WithLabelValues("miss").Inc()
	}
}

// ObserveCacheWrite tracks the duration of cache writes.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordEnrollmentRequest counts a request attempt by outcome code.
func (m *MetricsService) RecordEnrollmentRequest(outcome string) {
	if m == nil {
		return
	}
	m.enrollmentRequests.WithLabelValues(outcome).Inc()
}

// RecordEnrollmentDecision counts an applied decision.
func (m *MetricsService) RecordEnrollmentDecision(decision models.EnrollmentDecision) {
	if m == nil {
		return
	}
	m.enrollmentDecisions.WithLabelValues(string(decision)).Inc()
}

// RecordAttendanceMarks counts written rows by status.
func (m *MetricsService) RecordAttendanceMarks(records []models.AttendanceRecord) {
	if m == nil {
		return
	}
	for _, rec := range records {
		m.attendanceMarks.WithLabelValues(string(rec.Status)).Inc()
	}
}

// RecordCRChange counts a promote or demote.
func (m *MetricsService) RecordCRChange(action string) {
	if m == nil {
		return
	}
	m.crChanges.WithLabelValues(action).Inc()
}

// RecordNoticePosted counts a notice by scope.
func (m *MetricsService) RecordNoticePosted(scope models.NoticeScopeKind) {
	if m == nil {
		return
	}
	m.noticesPosted.WithLabelValues(string(scope)).Inc()
}
