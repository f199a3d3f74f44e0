// Package metrics defines the Prometheus counters, histograms, and gauges
// shared by the ingestion, hot-path, and cold-path services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"tradecore/pkg/circuitbreaker"
)

// Registry bundles every metric this module exposes, so each service wires
// exactly the subset it produces and registers the rest as zero-valued.
type Registry struct {
	TradesIngested      *prometheus.CounterVec
	TradesRejected      *prometheus.CounterVec
	DLQMessages         *prometheus.CounterVec
	ArchiveWrites        *prometheus.CounterVec
	PublishLatency      prometheus.Histogram
	PositionsUpdated    *prometheus.CounterVec
	PnLComputeLatency   prometheus.Histogram
	RebalanceEvents     *prometheus.CounterVec
	CachePublishSkipped prometheus.Counter
	EnrichmentMisses    *prometheus.CounterVec
	StoreBatchRows      prometheus.Counter
	StoreBatchErrors    prometheus.Counter
	StoreBatchDuration  prometheus.Histogram
	CircuitBreakerState *prometheus.GaugeVec
	ConsumerLag         *prometheus.GaugeVec
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		TradesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradecore", Subsystem: "ingestion", Name: "trades_ingested_total",
			Help: "Trades accepted and published to the trades log.",
		}, []string{"exchange"}),
		TradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradecore", Subsystem: "ingestion", Name: "trades_rejected_total",
			Help: "Trades rejected by validation before publish.",
		}, []string{"reason"}),
		DLQMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradecore", Name: "dlq_messages_total",
			Help: "Messages routed to the dead-letter queue.",
		}, []string{"service", "reason"}),
		ArchiveWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradecore", Subsystem: "ingestion", Name: "archive_writes_total",
			Help: "Raw payload archive writes, by outcome.",
		}, []string{"outcome"}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tradecore", Subsystem: "ingestion", Name: "publish_latency_seconds",
			Help: "Latency of publishing a trade to the trades log.",
			Buckets: prometheus.DefBuckets,
		}),
		PositionsUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradecore", Subsystem: "hotpath", Name: "positions_updated_total",
			Help: "Position snapshots produced.",
		}, []string{"symbol"}),
		PnLComputeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tradecore", Subsystem: "hotpath", Name: "pnl_compute_latency_seconds",
			Help: "Latency of computing a position snapshot from a trade.",
			Buckets: prometheus.DefBuckets,
		}),
		RebalanceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradecore", Subsystem: "hotpath", Name: "rebalance_events_total",
			Help: "Partition assignment/revocation events observed.",
		}, []string{"kind"}),
		CachePublishSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore", Subsystem: "hotpath", Name: "cache_publish_skipped_total",
			Help: "Position snapshot publishes skipped because the cache hash write failed or its circuit breaker was open.",
		}),
		EnrichmentMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradecore", Subsystem: "coldpath", Name: "enrichment_misses_total",
			Help: "Reference-data lookups that missed during enrichment.",
		}, []string{"table"}),
		StoreBatchRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore", Subsystem: "coldpath", Name: "store_batch_rows_total",
			Help: "Rows written to the relational store.",
		}),
		StoreBatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tradecore", Subsystem: "coldpath", Name: "store_batch_errors_total",
			Help: "Batch flushes that failed after exhausting retries.",
		}),
		StoreBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tradecore", Subsystem: "coldpath", Name: "store_batch_duration_seconds",
			Help: "Duration of a batch insert into the relational store.",
			Buckets: prometheus.DefBuckets,
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tradecore", Name: "circuit_breaker_state",
			Help: "Circuit breaker state: 0=CLOSED, 1=OPEN, 2=HALF_OPEN.",
		}, []string{"name"}),
		ConsumerLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tradecore", Name: "consumer_lag_records",
			Help: "Estimated consumer lag in records, per partition.",
		}, []string{"topic", "partition"}),
	}

	reg.MustRegister(
		r.TradesIngested, r.TradesRejected, r.DLQMessages, r.ArchiveWrites,
		r.PublishLatency, r.PositionsUpdated, r.PnLComputeLatency,
		r.RebalanceEvents, r.CachePublishSkipped, r.EnrichmentMisses, r.StoreBatchRows,
		r.StoreBatchErrors, r.StoreBatchDuration, r.CircuitBreakerState,
		r.ConsumerLag,
	)
	return r
}

// BreakerListener returns a circuitbreaker.Listener that mirrors every
// state transition into CircuitBreakerState, so every breaker constructed
// with it is observable without its owning service touching Prometheus
// directly.
func (r *Registry) BreakerListener() circuitbreaker.Listener {
	return func(name string, from, to circuitbreaker.State) {
		r.CircuitBreakerState.WithLabelValues(name).Set(BreakerStateValue(to.String()))
	}
}

// BreakerStateValue maps a breaker state name to the gauge value used by
// CircuitBreakerState.
func BreakerStateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF_OPEN":
		return 2
	default:
		return 0
	}
}
