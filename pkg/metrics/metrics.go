package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduling metrics
	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_submissions_total",
			Help: "Total number of tasks assigned, by selection reason",
		},
		[]string{"reason"},
	)

	ReloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ember_reloads_total",
			Help: "Total number of assignments that force a worker to switch environment",
		},
	)

	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_completions_total",
			Help: "Total number of tasks retired from a backlog, by outcome",
		},
		[]string{"outcome"},
	)

	SchedulingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_scheduling_errors_total",
			Help: "Total number of rejected transitions, by error kind",
		},
		[]string{"kind"},
	)

	OrphansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_orphans_total",
			Help: "Tasks orphaned by worker removal, by resubmission outcome",
		},
		[]string{"outcome"},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ember_scheduling_latency_seconds",
			Help:    "Time taken to commit a submit transition in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Pool metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ember_workers_total",
			Help: "Number of registered workers by readiness",
		},
		[]string{"ready"},
	)

	WorkerBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ember_worker_backlog_tasks",
			Help: "Number of tasks queued on each worker",
		},
		[]string{"worker_id"},
	)

	WorkerBacklogSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ember_worker_backlog_seconds",
			Help: "Estimated time to drain each worker's backlog",
		},
		[]string{"worker_id"},
	)

	HistoryLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_history_length",
			Help: "Number of records held in the request history",
		},
	)

	ProbeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_probe_failures_total",
			Help: "Total number of failed worker health probes",
		},
		[]string{"worker_id"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ember_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ember_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	APIRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ember_api_rejected_requests_total",
			Help: "Requests refused before reaching a handler, by reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(ReloadsTotal)
	prometheus.MustRegister(CompletionsTotal)
	prometheus.MustRegister(SchedulingErrorsTotal)
	prometheus.MustRegister(OrphansTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkerBacklog)
	prometheus.MustRegister(WorkerBacklogSeconds)
	prometheus.MustRegister(HistoryLength)
	prometheus.MustRegister(ProbeFailuresTotal)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(APIRejectedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
