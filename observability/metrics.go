package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StateMetrics tracks request processing and block commitment activity.
type StateMetrics struct {
	Requests        *prometheus.CounterVec
	RequestFailures *prometheus.CounterVec
	Blocks          prometheus.Counter
	Accounts        prometheus.Gauge
	PendingDeposits prometheus.Gauge
}

var (
	stateMetricsOnce sync.Once
	stateRegistry    *StateMetrics
)

// Metrics returns the lazily-initialised state metrics registry.
func Metrics() *StateMetrics {
	stateMetricsOnce.Do(func() {
		stateRegistry = &StateMetrics{
			Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "zkex",
				Subsystem: "state",
				Name:      "requests_total",
				Help:      "Total processed requests segmented by request kind.",
			}, []string{"kind"}),
			RequestFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "zkex",
				Subsystem: "state",
				Name:      "request_failures_total",
				Help:      "Total rejected requests segmented by request kind.",
			}, []string{"kind"}),
			Blocks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "zkex",
				Subsystem: "state",
				Name:      "blocks_committed_total",
				Help:      "Total committed blocks.",
			}),
			Accounts: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "zkex",
				Subsystem: "state",
				Name:      "accounts",
				Help:      "Current length of the account array.",
			}),
			PendingDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "zkex",
				Subsystem: "state",
				Name:      "pending_deposits",
				Help:      "Deposits queued but not yet included in a block.",
			}),
		}
		prometheus.MustRegister(
			stateRegistry.Requests,
			stateRegistry.RequestFailures,
			stateRegistry.Blocks,
			stateRegistry.Accounts,
			stateRegistry.PendingDeposits,
		)
	})
	return stateRegistry
}
