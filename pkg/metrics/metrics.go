// Package metrics exposes prometheus collectors for the enforcement pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PermissionChecksTotal counts permission decisions by verdict
	// (allow / deny) and source (cache / store / fallback / error).
	PermissionChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataguard_permission_checks_total",
		Help: "Total permission checks by verdict and decision source",
	}, []string{"verdict", "source"})

	// AccessDeniedTotal counts denied calls per service and table.
	AccessDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataguard_access_denied_total",
		Help: "Total data-layer calls denied by policy",
	}, []string{"service", "table"})

	// SlowQueriesTotal counts read operations exceeding the slow-query
	// threshold.
	SlowQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataguard_slow_queries_total",
		Help: "Total read operations flagged as slow",
	}, []string{"table"})

	// AuditWriteFailuresTotal counts audit entries that could not be
	// persisted. These never fail the business call, so the counter is the
	// only hard signal that the trail is incomplete.
	AuditWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataguard_audit_write_failures_total",
		Help: "Total audit log writes that failed",
	})

	// UnparseableConditionsTotal counts RESTRICTED conditions that could not
	// be parsed and therefore fell open to allow.
	UnparseableConditionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataguard_unparseable_conditions_total",
		Help: "Total restricted-permission conditions that failed to parse",
	})

	// CallDuration observes guarded call latency by operation type.
	CallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataguard_call_duration_seconds",
		Help:    "Guarded data-layer call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
