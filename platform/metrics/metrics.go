// Package metrics holds the Prometheus collectors shared by the HTTP layer
// and the domain modules.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LeadsCreated       prometheus.Counter
	LeadsConverted     *prometheus.CounterVec
	LeadScore          prometheus.Histogram
	BulkItemsProcessed *prometheus.CounterVec
	ActivityTransition *prometheus.CounterVec
	DocumentViews      prometheus.Counter
	WriteConflicts     *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	RemindersEnqueued  prometheus.Counter
}

// New registers all collectors on a fresh registry, so separate instances
// never collide.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		LeadsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_leads_created_total",
			Help: "Leads created, including bulk imports",
		}),
		LeadsConverted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_leads_converted_total",
			Help: "Lead conversions by conversion type",
		}, []string{"type"}),
		LeadScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crm_lead_score",
			Help:    "Distribution of lead scores at write time",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		BulkItemsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_bulk_items_total",
			Help: "Items processed by bulk lead operations",
		}, []string{"operation", "result"}),
		ActivityTransition: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_activity_transitions_total",
			Help: "Activity state transitions",
		}, []string{"transition"}),
		DocumentViews: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_document_views_total",
			Help: "Tracked document views",
		}),
		WriteConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_write_conflicts_total",
			Help: "Optimistic concurrency conflicts that triggered a retry",
		}, []string{"entity"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_cache_lookups_total",
			Help: "Cache lookups by result",
		}, []string{"cache", "result"}),
		RemindersEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "crm_reminders_enqueued_total",
			Help: "Activity reminders handed to the task queue",
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// CacheHit and CacheMiss tolerate a nil receiver so callers can skip wiring.
func (m *Metrics) CacheHit(name string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(name, "hit").Inc()
	}
}

func (m *Metrics) CacheMiss(name string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(name, "miss").Inc()
	}
}

func (m *Metrics) Conflict(entity string) {
	if m != nil {
		m.WriteConflicts.WithLabelValues(entity).Inc()
	}
}

func (m *Metrics) LeadCreated(score int) {
	if m != nil {
		m.LeadsCreated.Inc()
		m.LeadScore.Observe(float64(score))
	}
}

func (m *Metrics) LeadConverted(conversionType string) {
	if m != nil {
		m.LeadsConverted.WithLabelValues(conversionType).Inc()
	}
}

func (m *Metrics) BulkItem(operation string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.BulkItemsProcessed.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) Transition(name string) {
	if m != nil {
		m.ActivityTransition.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) DocumentViewed() {
	if m != nil {
		m.DocumentViews.Inc()
	}
}

func (m *Metrics) ReminderEnqueued() {
	if m != nil {
		m.RemindersEnqueued.Inc()
	}
}
