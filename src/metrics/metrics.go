package metrics

// Package metrics provides the prometheus metrics of the signer

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metricsTimer struct {
	mu                 sync.Mutex
	previousAggregate  time.Time
	previousLocalShare time.Time
}

func newMetricsTimer() *metricsTimer {
	now := time.Now()
	return &metricsTimer{
		previousAggregate:  now,
		previousLocalShare: now,
	}
}

func (mt *metricsTimer) SetPreviousAggregate(t time.Time) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.previousAggregate = t
}

func (mt *metricsTimer) SetPreviousLocalShare(t time.Time) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.previousLocalShare = t
}

func (mt *metricsTimer) UpdatePrometheusMetrics() {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	SecondsSinceLastAggregate.Set(time.Since(mt.previousAggregate).Seconds())
	SecondsSinceLastLocalShare.Set(time.Since(mt.previousLocalShare).Seconds())
}

var (
	MetricsTimeKeeper = newMetricsTimer()

	TotalSignRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imasigner_total_sign_requests",
			Help: "Total signing requests started, by kind (messages or scalar)",
		},
		[]string{"kind"},
	)
	TotalSigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imasigner_total_signed",
			Help: "Total signing requests resolved with a verified aggregate signature",
		},
		[]string{"kind"},
	)
	TotalSigningDisabled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imasigner_total_signing_disabled",
		Help: "Total signing requests passed through unsigned because signing is disabled",
	})

	TotalPrecheckFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imasigner_total_precheck_failures",
			Help: "Total messages the source chain message proxy could not confirm",
		},
		[]string{"chain"},
	)

	TotalShareErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imasigner_total_share_errors",
			Help: "Total signature shares that could not be obtained or verified, by member and reason",
		},
		[]string{"member", "reason"},
	)
	TotalSharesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imasigner_total_shares_skipped",
		Help: "Total signature shares that arrived after the quorum was reached",
	})

	TotalInsufficientShares = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imasigner_error_total_insufficient_shares",
		Help: "Total Times all members responded without reaching threshold",
	})
	TotalQuorumTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imasigner_error_total_quorum_timeouts",
		Help: "Total Times the threshold was not reached before the deadline",
	})
	TotalAggregationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imasigner_error_total_aggregation_failures",
		Help: "Total Times glue or hash-to-curve failed",
	})
	TotalInvalidSignature = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imasigner_error_total_invalid_signatures",
		Help: "Total Times the aggregated signature did not verify against the common public key",
	})

	TotalLocalShares = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imasigner_total_local_shares",
			Help: "Total signature shares produced by this node for other signers",
		},
		[]string{"method"},
	)
	TotalLocalShareErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imasigner_total_local_share_errors",
			Help: "Total signing requests this node refused or failed to answer",
		},
		[]string{"method"},
	)

	SecondsSinceLastAggregate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imasigner_seconds_since_last_aggregate",
		Help: "Seconds Since Last Verified Aggregate Signature",
	})
	SecondsSinceLastLocalShare = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "imasigner_seconds_since_last_local_share",
		Help: "Seconds Since this node last produced a signature share",
	})

	TimedQuorumLag = promauto.NewSummary(prometheus.SummaryOpts{
		Name:       "imasigner_quorum_lag_seconds",
		Help:       "Seconds taken to collect threshold verified shares",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})

	TimedSignLag = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "imasigner_sign_lag_seconds",
			Help:       "Seconds taken to resolve a signing request",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"kind"},
	)

	TimedMemberShareLag = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "imasigner_member_share_lag_seconds",
			Help:       "Time taken to get a member signature share",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"member"},
	)
)

// StartMetrics updates the elapsed time gauges until ctx is done.
func StartMetrics(ctx context.Context) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		MetricsTimeKeeper.UpdatePrometheusMetrics()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
