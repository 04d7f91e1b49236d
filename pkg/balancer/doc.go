/*
Package balancer assigns snippet runs to warm worker processes.

A worker can hold one environment (toolchain target plus build settings) at
a time. Running a task in a different environment forces a reload, which is
far more expensive than the task itself. The balancer keeps the scheduling
state as an immutable value and turns each request into a chosen worker plus
a new state.

# Architecture

	┌──────────────────────────── Scheduler ────────────────────────────┐
	│                                                                    │
	│   workers (ordered)            history (bounded)     cost model    │
	│   ┌──────────────────┐         ┌──────────────┐     ┌───────────┐  │
	│   │ id               │         │ env, origin  │     │ TaskCost  │  │
	│   │ environment      │         │ env, origin  │     │ ReloadCost│  │
	│   │ backlog (FIFO)   │         │ ...          │     └───────────┘  │
	│   │ state.Ready()    │         └──────────────┘                    │
	│   └──────────────────┘                                             │
	│                                                                    │
	│   Submit(task) ──► Policy ──► (Assignment, Scheduler')             │
	│   Complete / Cancel / AddWorker / RemoveWorker / UpdateState       │
	└────────────────────────────────────────────────────────────────────┘

# Selection

The default policy, WarmFirst, considers ready workers only:

 1. Workers already warmed with the task's environment win. Among them the
    smallest backlog load wins.
 2. Otherwise, if the client's previous request used an environment that an
    idle worker still holds, that worker wins. Affinity never preempts queued
    work.
 3. Otherwise the worker with the smallest projected cost wins, where
    projected cost is the backlog load plus the reload cost if the
    environment differs.

Ties go to the lowest index, so identical inputs always produce identical
outputs. The chosen worker takes the task's environment and the assignment is
appended to the history ledger.

Backlog load is the sum of TaskCost times each queued task's Cost().

# Usage

	sched, err := balancer.New(balancer.Config{
		HistoryCapacity: 100,
		TaskCost:        2 * time.Second,
		ReloadCost:      30 * time.Second,
	})
	sched, err = sched.AddWorker("w1", env, types.WorkerStatusReady)

	a, sched, err := sched.Submit(types.NewTask(env, "10.0.0.7", types.RunID{Snippet: "s1"}))
	// a.Worker == "w1", a.Reason == balancer.ReasonWarm

	sched, err = sched.Complete(a.Worker, a.Task.ID)

Every method leaves the receiver unchanged, including on error, so a failed
call never needs rollback and old values can be kept for replay or debugging.

# Concurrency

Scheduler has no locks. Two Submit calls against the same value would both
see the same idle worker, so the owner must serialise transitions against
one authoritative value. See pkg/dispatcher for a single-goroutine owner and
pkg/manager for a Raft-replicated one; both drive transitions through
Command and Apply.

# Errors

ErrNoWorkerAvailable is recoverable by backing off. ErrWorkerNotFound,
ErrTaskNotFound, ErrDuplicateWorkerID and ErrDuplicateTaskID indicate caller
bookkeeping bugs and are never retried here.
*/
package balancer
