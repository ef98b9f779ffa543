// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Push channel metrics
	PushMessagesReceived *prometheus.CounterVec
	PushErrors           prometheus.Counter

	// Monitor metrics
	ChainHeight      prometheus.Gauge
	HeightsStored    prometheus.Counter
	EndpointSwitches *prometheus.CounterVec
	MonitorState     *prometheus.GaugeVec
	StalenessChecks  *prometheus.CounterVec

	// Ingestion metrics
	CandidatesEnqueued *prometheus.CounterVec
	CandidatesDropped  prometheus.Counter
	QueueDepth         prometheus.Gauge
	PollRuns           *prometheus.CounterVec

	// Cosigning metrics
	CandidateOutcomes *prometheus.CounterVec
	SignedAmountXEM   prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulPoll   prometheus.Gauge
	LastHeightObservedAt prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nem_cosigner"
	}

	return &Metrics{
		PushMessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "messages_received_total",
			Help:      "Total number of push messages received by topic kind",
		}, []string{"topic"}),
		PushErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "errors_total",
			Help:      "Total number of push transport errors surfaced to the owner",
		}),

		ChainHeight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "chain_height",
			Help:      "Highest confirmed chain height seen",
		}),
		HeightsStored: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "heights_stored_total",
			Help:      "Total number of new height observations stored",
		}),
		EndpointSwitches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "endpoint_switches_total",
			Help:      "Total number of push reconnects by reason",
		}, []string{"reason"}),
		MonitorState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "state",
			Help:      "Current health monitor state (1 for the active state)",
		}, []string{"state"}),
		StalenessChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "staleness_checks_total",
			Help:      "Total number of staleness checks by result",
		}, []string{"result"}),

		CandidatesEnqueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "candidates_enqueued_total",
			Help:      "Total number of transaction candidates enqueued by source",
		}, []string{"source"}),
		CandidatesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "candidates_dropped_total",
			Help:      "Total number of candidates dropped because the queue was full",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "queue_depth",
			Help:      "Current number of candidates waiting for the engine",
		}),
		PollRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "poll_runs_total",
			Help:      "Total number of fallback poll cycles by status",
		}, []string{"status"}),

		CandidateOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cosign",
			Name:      "candidate_outcomes_total",
			Help:      "Total number of handled candidates by outcome",
		}, []string{"outcome"}),
		SignedAmountXEM: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cosign",
			Name:      "signed_amount_xem_total",
			Help:      "Total XEM amount of co-signed transactions",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "nem",
			Name:      "rpc_call_latency_seconds",
			Help:      "NIS REST call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LastSuccessfulPoll: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of last successful fallback poll",
		}),
		LastHeightObservedAt: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_height_observed_timestamp",
			Help:      "Unix timestamp of the last stored height observation",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPushMessage increments the push message counter for topic kind.
func RecordPushMessage(topic string) {
	DefaultMetrics.PushMessagesReceived.WithLabelValues(topic).Inc()
}

// RecordPushError increments the push error counter.
func RecordPushError() {
	DefaultMetrics.PushErrors.Inc()
}

// RecordHeight updates the chain height gauge and, when stored, the stored counter.
func RecordHeight(height int64, stored bool, observedAtSeconds float64) {
	DefaultMetrics.ChainHeight.Set(float64(height))
	if stored {
		DefaultMetrics.HeightsStored.Inc()
		DefaultMetrics.LastHeightObservedAt.Set(observedAtSeconds)
	}
}

// RecordEndpointSwitch records a push reconnect.
func RecordEndpointSwitch(reason string) {
	DefaultMetrics.EndpointSwitches.WithLabelValues(reason).Inc()
}

// RecordStalenessCheck records a staleness check result.
func RecordStalenessCheck(result string) {
	DefaultMetrics.StalenessChecks.WithLabelValues(result).Inc()
}

// SetMonitorState marks state as the active monitor state.
func SetMonitorState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		DefaultMetrics.MonitorState.WithLabelValues(s).Set(v)
	}
}

// RecordCandidateEnqueued increments the enqueued counter for source.
func RecordCandidateEnqueued(source string, depth int) {
	DefaultMetrics.CandidatesEnqueued.WithLabelValues(source).Inc()
	DefaultMetrics.QueueDepth.Set(float64(depth))
}

// RecordCandidateDropped increments the dropped counter.
func RecordCandidateDropped() {
	DefaultMetrics.CandidatesDropped.Inc()
}

// UpdateQueueDepth updates the queue depth gauge.
func UpdateQueueDepth(depth int) {
	DefaultMetrics.QueueDepth.Set(float64(depth))
}

// RecordPollRun records a fallback poll cycle.
func RecordPollRun(status string, finishedAtSeconds float64) {
	DefaultMetrics.PollRuns.WithLabelValues(status).Inc()
	if status == "success" {
		DefaultMetrics.LastSuccessfulPoll.Set(finishedAtSeconds)
	}
}

// RecordOutcome records a cosigning outcome.
func RecordOutcome(outcome string) {
	DefaultMetrics.CandidateOutcomes.WithLabelValues(outcome).Inc()
}

// RecordSignedAmount adds a co-signed amount.
func RecordSignedAmount(amount float64) {
	DefaultMetrics.SignedAmountXEM.Add(amount)
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
