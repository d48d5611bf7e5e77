package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roxy_requests_total",
		Help: "Reconciliation requests handled, by operation and status.",
	}, []string{"operation", "status"})

	SubprocessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roxy_subprocess_invocations_total",
		Help: "Whitelisted utility invocations, by utility name.",
	}, []string{"utility"})

	PatchChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "roxy_patch_changes_total",
		Help: "Managed-file patches that actually changed content, by path.",
	}, []string{"path"})

	StaleRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "roxy_reconcile_stale_retries_total",
		Help: "Retry passes of the stale-address deletion step.",
	})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roxy_request_duration_seconds",
		Help:    "Wall time spent handling one reconciliation request.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		SubprocessTotal,
		PatchChangesTotal,
		StaleRetriesTotal,
		RequestDuration,
	)
}
