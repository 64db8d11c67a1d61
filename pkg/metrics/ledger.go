package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coffeefund"

// LedgerMetrics tracks balance reprocessing, compensations and the
// best-effort steps that follow a committed contribution write.
type LedgerMetrics struct {
	bestEffortFailures *prometheus.CounterVec
	reprocessDuration  prometheus.Histogram
	balancesUpdated    prometheus.Counter
	compensations      prometheus.Counter
	contributionWrites *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors. A nil registerer yields a
// recorder whose methods are no-ops, which is what most tests want.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		bestEffortFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "best_effort_failures_total",
			Help:      "Post-commit steps that failed and were only logged.",
		}, []string{"step"}),
		reprocessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "balance_reprocess_duration_seconds",
			Help:      "Duration of full balance reprocessing passes.",
			Buckets:   prometheus.DefBuckets,
		}),
		balancesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "balances_updated_total",
			Help:      "User balances rewritten by the reprocessor.",
		}),
		compensations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_executed_total",
			Help:      "Compensations recorded.",
		}),
		contributionWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contribution_writes_total",
			Help:      "Committed contribution writes by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.bestEffortFailures, m.reprocessDuration, m.balancesUpdated, m.compensations, m.contributionWrites)
	return m
}

func (m *LedgerMetrics) IncBestEffortFailure(step string) {
	if m == nil || m.bestEffortFailures == nil {
		return
	}
	m.bestEffortFailures.WithLabelValues(normalizeLabel(step)).Inc()
}

// ObserveReprocess records one reprocessing pass and how many balances it wrote.
func (m *LedgerMetrics) ObserveReprocess(duration time.Duration, updated int) {
	if m == nil || m.reprocessDuration == nil {
		return
	}
	m.reprocessDuration.Observe(duration.Seconds())
	m.balancesUpdated.Add(float64(updated))
}

func (m *LedgerMetrics) IncCompensation() {
	if m == nil || m.compensations == nil {
		return
	}
	m.compensations.Inc()
}

func (m *LedgerMetrics) IncContributionWrite(op string) {
	if m == nil || m.contributionWrites == nil {
		return
	}
	m.contributionWrites.WithLabelValues(normalizeLabel(op)).Inc()
}
