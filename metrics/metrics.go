// Package metrics exposes Prometheus counters for the lifecycle and dMRV
// flows. Everything is registered on the default registry and served at
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatusResolutions counts status lookups by outcome: resolved,
	// none, error.
	StatusResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decleanup_status_resolutions_total",
		Help: "Lifecycle status resolutions by outcome.",
	}, []string{"outcome"})

	// PreFixDetections counts repaired reward artifacts: prefix (stale
	// claim unclaimed), claimed (existing holder marked claimed).
	PreFixDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decleanup_prefix_detections_total",
		Help: "Reward artifacts detected during status resolution.",
	}, []string{"kind"})

	// Claims counts claim attempts by result kind: success,
	// mint_skipped, or the error kind.
	Claims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decleanup_claims_total",
		Help: "Claim attempts by result.",
	}, []string{"result"})

	// DMRVDecisions counts pre-screen outcomes.
	DMRVDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decleanup_dmrv_decisions_total",
		Help: "dMRV pre-screen decisions.",
	}, []string{"decision"})

	// DMRVConfidence observes the combined confidence score per
	// pre-screen run.
	DMRVConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "decleanup_dmrv_confidence",
		Help:    "Combined dMRV confidence scores.",
		Buckets: prometheus.LinearBuckets(0.0, 0.1, 11),
	})

	// VerifierDecisions counts human verifier actions.
	VerifierDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "decleanup_verifier_decisions_total",
		Help: "Verifier approve/reject decisions.",
	}, []string{"action"})
)
