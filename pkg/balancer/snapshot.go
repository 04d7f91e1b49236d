package balancer

import (
	"fmt"
	"time"

	"github.com/cuemby/ember/pkg/types"
)

// Snapshot is the serialisable form of a Scheduler. The policy is not part
// of it and is supplied again on Restore.
type Snapshot struct {
	HistoryCapacity int              `json:"history_capacity"`
	TaskCost        time.Duration    `json:"task_cost"`
	ReloadCost      time.Duration    `json:"reload_cost"`
	Workers         []WorkerSnapshot `json:"workers"`
	History         []Record         `json:"history"`
}

// WorkerSnapshot is the serialisable form of a Worker
type WorkerSnapshot struct {
	ID          types.WorkerID    `json:"id"`
	Environment types.Environment `json:"environment"`
	State       types.StateRef    `json:"state"`
	Backlog     []types.Task      `json:"backlog"`
}

// Snapshot captures the scheduler state
func (s Scheduler) Snapshot() Snapshot {
	snap := Snapshot{
		HistoryCapacity: s.history.Capacity(),
		TaskCost:        s.cost.TaskCost,
		ReloadCost:      s.cost.ReloadCost,
		Workers:         make([]WorkerSnapshot, 0, len(s.workers)),
		History:         s.history.Records(),
	}
	for _, w := range s.workers {
		snap.Workers = append(snap.Workers, WorkerSnapshot{
			ID:          w.ID,
			Environment: w.Environment,
			State:       types.StateRefOf(w.State),
			Backlog:     w.Backlog.Tasks(),
		})
	}
	return snap
}

// Restore rebuilds a scheduler from a snapshot. The snapshot must satisfy
// the scheduler invariants: unique worker ids and every task queued at most
// once. History beyond the capacity keeps only the newest records.
func Restore(snap Snapshot, policy Policy) (Scheduler, error) {
	s, err := New(Config{
		HistoryCapacity: snap.HistoryCapacity,
		TaskCost:        snap.TaskCost,
		ReloadCost:      snap.ReloadCost,
		Policy:          policy,
	})
	if err != nil {
		return Scheduler{}, err
	}

	seen := make(map[string]types.WorkerID)
	for _, ws := range snap.Workers {
		state, err := ws.State.WorkerState()
		if err != nil {
			return Scheduler{}, fmt.Errorf("worker %s: %w", ws.ID, err)
		}
		if s, err = s.AddWorker(ws.ID, ws.Environment, state); err != nil {
			return Scheduler{}, err
		}
		for _, t := range ws.Backlog {
			if t.ID == nil {
				return Scheduler{}, fmt.Errorf("%w: worker %s has a task without an id", ErrInvalidTask, ws.ID)
			}
			if owner, dup := seen[t.ID.String()]; dup {
				return Scheduler{}, fmt.Errorf("%w: %v queued on %s and %s", ErrDuplicateTaskID, t.ID, owner, ws.ID)
			}
			seen[t.ID.String()] = ws.ID
		}
		s.workers[len(s.workers)-1].Backlog = NewBacklog(ws.Backlog...)
	}

	for _, r := range snap.History {
		s.history = s.history.Record(r)
	}
	return s, nil
}
