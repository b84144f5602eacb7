package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	blocksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rwascope",
		Name:      "blocks_processed_total",
		Help:      "Blocks fully ingested per network.",
	}, []string{"network"})

	eventsIndexed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rwascope",
		Name:      "events_indexed_total",
		Help:      "Raw log events stored per network.",
	}, []string{"network"})

	eventsUnrecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rwascope",
		Name:      "events_unrecognized_total",
		Help:      "Events whose topic0 matched no known signature.",
	}, []string{"network"})

	decodedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rwascope",
		Name:      "decoded_events_total",
		Help:      "Decoded domain events per network and kind.",
	}, []string{"network", "kind"})

	blockProcessingTime = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rwascope",
		Name:      "block_processing_seconds",
		Help:      "Wall time to ingest one block.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"network"})

	checkpointHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rwascope",
		Name:      "checkpoint_height",
		Help:      "Last fully processed block per network.",
	}, []string{"network"})

	reorgsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rwascope",
		Name:      "reorgs_detected_total",
		Help:      "Chain reorganizations handled per network.",
	}, []string{"network"})

	alertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rwascope",
		Name:      "alerts_fired_total",
		Help:      "Alerts emitted per severity.",
	}, []string{"severity"})

	rpcRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rwascope",
		Name:      "rpc_retries_total",
		Help:      "RPC calls retried per network.",
	}, []string{"network"})
)

// ObserveBlock records the instrumentation for one ingested block.
func ObserveBlock(network string, events, unrecognized int, elapsed time.Duration) {
	blocksProcessed.WithLabelValues(network).Inc()
	eventsIndexed.WithLabelValues(network).Add(float64(events))
	eventsUnrecognized.WithLabelValues(network).Add(float64(unrecognized))
	blockProcessingTime.WithLabelValues(network).Observe(elapsed.Seconds())
}

// IncDecoded counts one decoded domain event.
func IncDecoded(network, kind string) {
	decodedEvents.WithLabelValues(network, kind).Inc()
}

// SetCheckpointHeight exposes the cursor position.
func SetCheckpointHeight(network string, height uint64) {
	checkpointHeight.WithLabelValues(network).Set(float64(height))
}

// IncReorg counts one handled reorganization.
func IncReorg(network string) {
	reorgsDetected.WithLabelValues(network).Inc()
}

// IncAlert counts one emitted alert.
func IncAlert(severity string) {
	alertsFired.WithLabelValues(severity).Inc()
}

// IncRetry counts one retried RPC call.
func IncRetry(network string) {
	rpcRetries.WithLabelValues(network).Inc()
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
