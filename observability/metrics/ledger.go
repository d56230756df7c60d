package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records activity of the rebasing ledger service.
type LedgerMetrics struct {
	operations      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	realized        prometheus.Counter
	principalSupply prometheus.Gauge
	globalRate      prometheus.Gauge
	replays         prometheus.Counter
	streamDrops     prometheus.Counter
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the lazily registered ledger metrics.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "rebase",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "rebase",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Time spent executing ledger operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			realized: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rebase",
				Subsystem: "ledger",
				Name:      "interest_realized_tokens_total",
				Help:      "Interest folded into principal, in whole tokens.",
			}),
			principalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "rebase",
				Subsystem: "ledger",
				Name:      "principal_supply_tokens",
				Help:      "Sum of stored principal in whole tokens, unrealized interest excluded.",
			}),
			globalRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "rebase",
				Subsystem: "ledger",
				Name:      "global_rate_per_second",
				Help:      "Current global interest rate per second.",
			}),
			replays: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rebase",
				Subsystem: "ledger",
				Name:      "idempotent_replays_total",
				Help:      "Mutating calls answered from a stored idempotency record.",
			}),
			streamDrops: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "rebase",
				Subsystem: "stream",
				Name:      "dropped_events_total",
				Help:      "Events dropped because a subscriber fell behind.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.realized,
			ledgerRegistry.principalSupply,
			ledgerRegistry.globalRate,
			ledgerRegistry.replays,
			ledgerRegistry.streamDrops,
		)
	})
	return ledgerRegistry
}

// ObserveOperation records the outcome and latency of one ledger call.
func (m *LedgerMetrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// AddRealizedInterest accumulates realized interest given in base units.
func (m *LedgerMetrics) AddRealizedInterest(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.realized.Add(scaled(amount))
}

// SetPrincipalSupply publishes the principal supply given in base units.
func (m *LedgerMetrics) SetPrincipalSupply(total *big.Int) {
	if m == nil || total == nil {
		return
	}
	m.principalSupply.Set(scaled(total))
}

// SetGlobalRate publishes the global rate given at 1e18 precision.
func (m *LedgerMetrics) SetGlobalRate(rate *big.Int) {
	if m == nil || rate == nil {
		return
	}
	m.globalRate.Set(scaled(rate))
}

// IncReplay counts an idempotent replay.
func (m *LedgerMetrics) IncReplay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

// IncStreamDrop counts an event dropped for a slow subscriber.
func (m *LedgerMetrics) IncStreamDrop() {
	if m == nil {
		return
	}
	m.streamDrops.Inc()
}

var precision = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

func scaled(v *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), precision).Float64()
	return f
}
