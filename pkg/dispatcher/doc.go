/*
Package dispatcher owns the authoritative scheduler and turns API and CLI
requests into committed transitions.

# Architecture

	 API / supervisor / replay
	           │
	           ▼
	┌──────────────────────┐  log, metrics, events
	│      Dispatcher      ├───────────────────────►
	│  builds tasks        │
	│  resubmits orphans   │
	└──────────┬───────────┘
	           │ Commit(cmd) / State()
	           ▼
	┌──────────────────────┐        ┌──────────────────────┐
	│ Local (one goroutine)│   or   │ manager.Manager      │
	│ + optional Store     │        │ (Raft FSM)           │
	└──────────────────────┘        └──────────────────────┘

balancer.Scheduler is a value with no locks. A Committer decides which copy
is authoritative and applies balancer.Command values to it one at a time.
Local does this with a single owner goroutine and, when given a Store,
saves a snapshot after each successful transition. manager.Manager does it
through a replicated Raft log.

# Tasks

Submit builds the task from a SubmitRequest. Without an explicit id a uuid
is generated; a positive weight produces a types.WeightedID, otherwise the
task is a types.RunID of cost one. Weights above the limit set with
WithMaxWeight are rejected. Submitting an id whose name is still queued,
whatever its kind, fails with balancer.ErrDuplicateTaskID.

# Worker removal

RemoveWorker commits the removal and then resubmits the orphaned backlog in
its original order, each task once. Tasks that no remaining worker can take
are returned in Reassignment.Dropped and published as task.dropped. The
dispatcher does not retry them.

# Errors

Transition errors are returned unchanged so callers can use errors.Is with
the balancer sentinels. ErrorKind maps them to the short labels used by
ember_scheduling_errors_total and the HTTP API.
*/
package dispatcher
