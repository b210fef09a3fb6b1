// Package metrics holds the Prometheus collectors of the settlement server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recompute outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeSplitError  = "split_error"
	OutcomeValidation  = "validation_error"
	OutcomePersistence = "persistence_error"
	OutcomeNotFound    = "not_found"
	OutcomeLockTimeout = "lock_timeout"
	OutcomeCanceled    = "canceled"
)

// Metrics holds the settlement collectors.
//
// Metrics:
//   - settle_recompute_duration_seconds{outcome} - Histogram of recompute latency, lock wait included
//   - settle_recomputes_total{outcome} - Count of recomputes by outcome
//   - settle_split_failures_total - Count of expenses that could not be split
//   - settle_open_transfers{trip_id} - Open transfers in each trip's latest snapshot
//   - settle_rpc_duration_seconds{procedure,code} - Histogram of RPC latency
type Metrics struct {
	RecomputeDuration *prometheus.HistogramVec
	RecomputesTotal   *prometheus.CounterVec
	SplitFailures     prometheus.Counter
	OpenTransfers     *prometheus.GaugeVec
	RPCDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Each server and
// test passes its own registry, so registration never collides.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RecomputeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settle_recompute_duration_seconds",
			Help:    "Duration of settlement recomputes in seconds by outcome",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		RecomputesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_recomputes_total",
			Help: "Total number of settlement recomputes by outcome",
		}, []string{"outcome"}),
		SplitFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "settle_split_failures_total",
			Help: "Total number of expenses that could not be split",
		}),
		OpenTransfers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "settle_open_transfers",
			Help: "Number of open transfers in the trip's most recently committed snapshot",
		}, []string{"trip_id"}),
		RPCDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settle_rpc_duration_seconds",
			Help:    "Duration of RPC handling in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"procedure", "code"}),
	}
}

// Discard returns collectors registered nowhere.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}
