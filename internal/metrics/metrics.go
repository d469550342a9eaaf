package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nobconsult"

var (
	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Application status transitions by source and target status.",
	}, []string{"from", "to"})

	DocumentDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "document_decisions_total",
		Help:      "Reviewer decisions on checklist documents.",
	}, []string{"decision"})

	DocumentUploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "document_uploads_total",
		Help:      "Customer document uploads by outcome.",
	}, []string{"outcome"})

	RevisionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "revision_conflicts_total",
		Help:      "Optimistic concurrency conflicts detected on application writes.",
	})

	StoreRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_retries_total",
		Help:      "Store operations retried after a transient error.",
	})

	StaleReads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_reads_total",
		Help:      "Reads answered from the snapshot cache while the store was unavailable.",
	})

	ReconcileFindings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_findings_total",
		Help:      "Inconsistencies reported by the reconciliation job.",
	}, []string{"kind"})

	RealtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_connections",
		Help:      "Open websocket connections.",
	})
)

func init() {
	prometheus.MustRegister(
		StatusTransitions,
		DocumentDecisions,
		DocumentUploads,
		RevisionConflicts,
		StoreRetries,
		StaleReads,
		ReconcileFindings,
		RealtimeConnections,
	)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
