package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchemaCacheReloads counts reload signals by mechanism ("notify" or "pg_notify").
	SchemaCacheReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdesk_schema_cache_reloads_total",
		Help: "Schema cache reload signals issued, by mechanism and outcome.",
	}, []string{"mechanism", "outcome"})

	// DashboardQueryFallbacks counts qualified->unqualified retries per metric query.
	DashboardQueryFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdesk_dashboard_query_fallbacks_total",
		Help: "Dashboard queries that fell back to the unqualified table reference.",
	}, []string{"query"})

	// DashboardRequests counts dashboard computations by result.
	DashboardRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdesk_dashboard_requests_total",
		Help: "Dashboard requests by result (ok, degraded, error).",
	}, []string{"result"})

	// SelfTestRuns counts write-path self-test verdicts.
	SelfTestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdesk_selftest_runs_total",
		Help: "Write-path self-test runs by verdict.",
	}, []string{"verdict"})
)
