package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Authorization metrics
	AuthzChecksTotal  *prometheus.CounterVec
	AuthzDenialsTotal *prometheus.CounterVec

	// Audit trail metrics
	AuditWritesTotal      *prometheus.CounterVec
	AuditWriteFailures    *prometheus.CounterVec
	AuditRetentionDeleted prometheus.Counter
	AuditExportRecords    prometheus.Counter

	// Actor resolution metrics
	ActorCacheHitsTotal   prometheus.Counter
	ActorCacheMissesTotal prometheus.Counter
	ActorsCreatedTotal    prometheus.Counter

	// Rate limit metrics
	RateLimitViolationsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		AuthzChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_authz_checks_total",
				Help: "Total number of authorization checks",
			},
			[]string{"kind", "result"},
		),
		AuthzDenialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_authz_denials_total",
				Help: "Total number of authorization denials",
			},
			[]string{"action"},
		),
		AuditWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_audit_writes_total",
				Help: "Total number of audit entries written",
			},
			[]string{"action"},
		),
		AuditWriteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_audit_write_failures_total",
				Help: "Total number of audit writes swallowed by the failure boundary",
			},
			[]string{"action"},
		),
		AuditRetentionDeleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_audit_retention_deleted_total",
				Help: "Total number of audit entries removed by retention cleanup",
			},
		),
		AuditExportRecords: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_audit_export_records_total",
				Help: "Total number of audit entries exported",
			},
		),
		ActorCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_actor_cache_hits_total",
				Help: "Total number of actor resolutions served from cache",
			},
		),
		ActorCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_actor_cache_misses_total",
				Help: "Total number of actor resolutions that hit the store",
			},
		),
		ActorsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "warden_actors_created_total",
				Help: "Total number of actors created on first contact",
			},
		),
		RateLimitViolationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warden_rate_limit_violations_total",
				Help: "Total number of rate limit violations",
			},
			[]string{"limit_type"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.AuthzChecksTotal,
		m.AuthzDenialsTotal,
		m.AuditWritesTotal,
		m.AuditWriteFailures,
		m.AuditRetentionDeleted,
		m.AuditExportRecords,
		m.ActorCacheHitsTotal,
		m.ActorCacheMissesTotal,
		m.ActorsCreatedTotal,
		m.RateLimitViolationsTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
