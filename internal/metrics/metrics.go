// Package metrics exposes Prometheus collectors for the accrual and settlement
// cycles.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nav_ledger"

var (
	// Registry holds the settler collectors.
	Registry = prometheus.NewRegistry()

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "settlements_total",
			Help:      "Redemption entries processed by status.",
		},
		[]string{"status"},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "settlement_cycle_duration_seconds",
			Help:      "Duration of settlement cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
	)

	navUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "nav",
			Name:      "nav_updates_total",
			Help:      "Per-pool NAV update attempts by outcome.",
		},
		[]string{"outcome"},
	)

	feeAccruals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fees",
			Name:      "fee_accruals_total",
			Help:      "Per-pool fee accrual attempts by outcome.",
		},
		[]string{"outcome"},
	)

	staleSwaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "stale_swaps_total",
			Help:      "Swap requests marked stale.",
		},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs.",
		},
		[]string{"job", "success"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		settlements,
		cycleDuration,
		navUpdates,
		feeAccruals,
		staleSwaps,
		jobRuns,
		jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func Settlement(status string) {
	settlements.WithLabelValues(status).Inc()
}

func SettlementCycle(duration time.Duration) {
	cycleDuration.Observe(duration.Seconds())
}

func NavUpdate(outcome string) {
	navUpdates.WithLabelValues(outcome).Inc()
}

func FeeAccrual(outcome string) {
	feeAccruals.WithLabelValues(outcome).Inc()
}

func StaleSwaps(n int) {
	if n > 0 {
		staleSwaps.Add(float64(n))
	}
}

// JobRun records a scheduled job dispatch.
func JobRun(job string, success bool, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}
