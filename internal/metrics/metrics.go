package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AddressesIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_addresses_issued_total",
			Help: "Total number of payment addresses issued",
		},
		[]string{"status"},
	)

	PaymentsVerified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paygate_payments_verified_total",
		Help: "Total number of observed payments classified as verified",
	})

	PaymentsWrong = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paygate_payments_wrong_total",
		Help: "Total number of observed payments classified as wrong",
	})

	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_transactions_submitted_total",
			Help: "Total number of transactions submitted, by terminal outcome",
		},
		[]string{"outcome"},
	)

	ProviderFailovers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paygate_provider_failovers_total",
		Help: "Total number of provider reconnections triggered by downstream failures",
	})

	ProviderState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paygate_provider_state",
		Help: "Provider pool state (0=disconnected, 1=probing, 2=connected, 3=degraded)",
	})

	BalanceCacheStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paygate_balance_cache_stale_total",
		Help: "Total number of balance reads served stale after a provider error",
	})
)
