package metrics

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SavingsMetrics tracks game operations, yield source calls and the pool's
// headline figures.
type SavingsMetrics struct {
	operations    *prometheus.CounterVec
	adapterCalls  *prometheus.CounterVec
	adapterTime   *prometheus.HistogramVec
	compensations *prometheus.CounterVec
	activePlayers prometheus.Gauge
	winners       prometheus.Gauge
	principal     *prometheus.GaugeVec
	interest      prometheus.Gauge
}

var (
	savingsOnce     sync.Once
	savingsRegistry *SavingsMetrics
)

// Savings returns the lazily registered savings game metrics.
func Savings() *SavingsMetrics {
	savingsOnce.Do(func() {
		savingsRegistry = &SavingsMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "savings",
				Name:      "operations_total",
				Help:      "Game operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			adapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "savings",
				Subsystem: "strategy",
				Name:      "calls_total",
				Help:      "Yield source calls segmented by call and outcome.",
			}, []string{"call", "outcome"}),
			adapterTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "savings",
				Subsystem: "strategy",
				Name:      "call_duration_seconds",
				Help:      "Latency of yield source calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"call"}),
			compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "savings",
				Subsystem: "strategy",
				Name:      "compensations_total",
				Help:      "Compensating yield source calls issued after a failed commit.",
			}, []string{"call"}),
			activePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "savings",
				Name:      "active_players",
				Help:      "Players currently in the game.",
			}),
			winners: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "savings",
				Name:      "winners",
				Help:      "Players that paid the last deposit segment.",
			}),
			principal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "savings",
				Name:      "principal",
				Help:      "Game principal in base units, gross and net of strategy fees.",
			}, []string{"kind"}),
			interest: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "savings",
				Name:      "interest",
				Help:      "Winner interest fixed at redemption, in base units.",
			}),
		}
		prometheus.MustRegister(
			savingsRegistry.operations,
			savingsRegistry.adapterCalls,
			savingsRegistry.adapterTime,
			savingsRegistry.compensations,
			savingsRegistry.activePlayers,
			savingsRegistry.winners,
			savingsRegistry.principal,
			savingsRegistry.interest,
		)
	})
	return savingsRegistry
}

func (m *SavingsMetrics) ObserveOperation(op, outcome string) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *SavingsMetrics) ObserveAdapterCall(call string, elapsed time.Duration, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.adapterCalls.WithLabelValues(call, outcome).Inc()
	m.adapterTime.WithLabelValues(call).Observe(elapsed.Seconds())
}

func (m *SavingsMetrics) ObserveCompensation(call string) {
	if m == nil {
		return
	}
	m.compensations.WithLabelValues(call).Inc()
}

// ObserveGame publishes the pool figures after a committed operation.
func (m *SavingsMetrics) ObserveGame(active, winners uint64, principal, netPrincipal, interest *big.Int) {
	if m == nil {
		return
	}
	m.activePlayers.Set(float64(active))
	m.winners.Set(float64(winners))
	m.principal.WithLabelValues("gross").Set(bigToFloat(principal))
	m.principal.WithLabelValues("net").Set(bigToFloat(netPrincipal))
	m.interest.Set(bigToFloat(interest))
}

func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
