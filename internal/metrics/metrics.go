package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncTotal counts synchronize calls by outcome (skipped, ok, failed).
	SyncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnsmanager_sync_total",
		Help: "Total number of zone synchronizations by result",
	}, []string{"result"})

	// SyncChanges counts cache rows inserted or deleted by reconciliation.
	SyncChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnsmanager_sync_changes_total",
		Help: "Cache mutations applied by zone synchronization",
	}, []string{"action"})

	TransferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dnsmanager_zone_transfer_duration_seconds",
		Help:    "Histogram of zone transfer duration",
		Buckets: prometheus.DefBuckets,
	})

	// UpdatesTotal counts signed updates sent to masters.
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnsmanager_updates_total",
		Help: "Total number of dynamic updates by operation and result",
	}, []string{"op", "result"})

	RebindsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dnsmanager_rebinds_total",
		Help: "Total number of client rebind requests by result",
	}, []string{"result"})

	// PendingOperations tracks journaled operations that did not complete.
	PendingOperations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dnsmanager_pending_operations",
		Help: "Number of journaled operations waiting to be resumed",
	})
)

func Result(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
