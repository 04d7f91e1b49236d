/*
Package metrics exposes Ember's Prometheus metrics and the health endpoints.

All metrics are package-level collectors registered with the default registry
in init, so any package can record against them directly:

	metrics.SubmissionsTotal.WithLabelValues(string(a.Reason)).Inc()
	if a.Reload {
		metrics.ReloadsTotal.Inc()
	}

	timer := metrics.NewTimer()
	res, err := committer.Commit(ctx, cmd)
	timer.ObserveDuration(metrics.SchedulingLatency)

# Metrics

Scheduling:

	ember_submissions_total{reason}          warm | affinity | least-cost
	ember_reloads_total
	ember_completions_total{outcome}         completed | cancelled
	ember_scheduling_errors_total{kind}      no_worker | duplicate_task | ...
	ember_orphans_total{outcome}             resubmitted | dropped
	ember_scheduling_latency_seconds

Pool (refreshed by Collector and after every transition):

	ember_workers_total{ready}
	ember_worker_backlog_tasks{worker_id}
	ember_worker_backlog_seconds{worker_id}
	ember_history_length
	ember_probe_failures_total{worker_id}

Raft (replicated deployments only):

	ember_raft_is_leader
	ember_raft_peers_total
	ember_raft_log_index
	ember_raft_applied_index

API:

	ember_api_requests_total{method,status}
	ember_api_request_duration_seconds{method}

# Health

HealthChecker aggregates named components. /health is unhealthy when any
component reports unhealthy; /ready additionally requires every critical
component to be registered and healthy. The server marks "workers" critical,
so a node with no ready worker answers 503 on /ready.
*/
package metrics
