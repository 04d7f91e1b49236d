package balancer

import (
	"fmt"
	"time"

	"github.com/cuemby/ember/pkg/types"
)

// Config is fixed at construction
type Config struct {
	HistoryCapacity int
	TaskCost        time.Duration
	ReloadCost      time.Duration
	// Policy defaults to WarmFirst
	Policy Policy
}

// Validate checks the configuration bounds
func (c Config) Validate() error {
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("%w: history capacity must be positive, got %d", ErrInvalidConfig, c.HistoryCapacity)
	}
	if c.TaskCost < 0 {
		return fmt.Errorf("%w: task cost must not be negative, got %s", ErrInvalidConfig, c.TaskCost)
	}
	if c.ReloadCost < 0 {
		return fmt.Errorf("%w: reload cost must not be negative, got %s", ErrInvalidConfig, c.ReloadCost)
	}
	return nil
}

// Scheduler is the complete scheduling state. It is a value: every
// transition returns a new Scheduler and leaves the receiver untouched, also
// when it fails. Callers own serialisation of transitions against the one
// authoritative copy.
type Scheduler struct {
	workers []Worker
	history History
	cost    CostModel
	policy  Policy
}

// Assignment describes where a submitted task went
type Assignment struct {
	Worker types.WorkerID
	Task   types.Task
	Reason Reason
	// Reload is true when the worker must switch environment first
	Reload bool
	// Wait is the projected time before the task starts
	Wait time.Duration
}

// New creates a scheduler with no workers
func New(cfg Config) (Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return Scheduler{}, err
	}
	history, err := NewHistory(cfg.HistoryCapacity)
	if err != nil {
		return Scheduler{}, err
	}
	policy := cfg.Policy
	if policy == nil {
		policy = WarmFirst
	}
	return Scheduler{
		history: history,
		cost:    CostModel{TaskCost: cfg.TaskCost, ReloadCost: cfg.ReloadCost},
		policy:  policy,
	}, nil
}

// Workers returns a copy of the workers in scheduling order
func (s Scheduler) Workers() []Worker {
	out := make([]Worker, len(s.workers))
	copy(out, s.workers)
	return out
}

// Worker looks up a worker by id
func (s Scheduler) Worker(id types.WorkerID) (Worker, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.workers[i], true
	}
	return Worker{}, false
}

// History returns the assignment ledger
func (s Scheduler) History() History {
	return s.history
}

// Cost returns the cost model
func (s Scheduler) Cost() CostModel {
	return s.cost
}

// Locate finds the worker whose backlog holds the task
func (s Scheduler) Locate(id types.TaskID) (types.WorkerID, bool) {
	for _, w := range s.workers {
		if w.Backlog.Contains(id) {
			return w.ID, true
		}
	}
	return "", false
}

// Submit assigns a task to a worker
func (s Scheduler) Submit(task types.Task) (Assignment, Scheduler, error) {
	if task.ID == nil {
		return Assignment{}, s, fmt.Errorf("%w: task has no id", ErrInvalidTask)
	}
	if owner, ok := s.Locate(task.ID); ok {
		return Assignment{}, s, fmt.Errorf("%w: %v already queued on %s", ErrDuplicateTaskID, task.ID, owner)
	}

	policy := s.policy
	if policy == nil {
		policy = WarmFirst
	}
	d, ok := policy(s.workers, s.history, s.cost, task)
	if !ok {
		return Assignment{}, s, fmt.Errorf("%w: %d workers, none ready", ErrNoWorkerAvailable, len(s.workers))
	}

	chosen := s.workers[d.Index]
	assignment := Assignment{
		Worker: chosen.ID,
		Task:   task,
		Reason: d.Reason,
		Reload: chosen.Environment != task.Environment,
		Wait:   s.cost.ProjectedCost(chosen, task.Environment),
	}

	chosen.Environment = task.Environment
	chosen.Backlog = chosen.Backlog.Enqueue(task)

	next := s.withWorker(d.Index, chosen)
	next.history = s.history.Record(Record{Environment: task.Environment, Origin: task.Origin})

	return assignment, next, nil
}

// Complete retires a finished task. The worker's environment and the
// history are left as they are.
func (s Scheduler) Complete(workerID types.WorkerID, taskID types.TaskID) (Scheduler, error) {
	i := s.indexOf(workerID)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
	}

	w := s.workers[i]
	_, backlog, err := w.Backlog.DequeueMatching(taskID)
	if err != nil {
		return s, fmt.Errorf("worker %s: %w", workerID, err)
	}
	w.Backlog = backlog

	return s.withWorker(i, w), nil
}

// Cancel retires an abandoned task. It is the same transition as Complete;
// callers report it differently.
func (s Scheduler) Cancel(workerID types.WorkerID, taskID types.TaskID) (Scheduler, error) {
	return s.Complete(workerID, taskID)
}

// AddWorker appends a worker with an empty backlog
func (s Scheduler) AddWorker(id types.WorkerID, env types.Environment, state types.WorkerState) (Scheduler, error) {
	if s.indexOf(id) >= 0 {
		return s, fmt.Errorf("%w: %s", ErrDuplicateWorkerID, id)
	}

	next := s
	next.workers = make([]Worker, len(s.workers), len(s.workers)+1)
	copy(next.workers, s.workers)
	next.workers = append(next.workers, NewWorker(id, env, state))
	return next, nil
}

// RemoveWorker drops a worker and returns its backlog in submission order
// so the caller can resubmit it
func (s Scheduler) RemoveWorker(id types.WorkerID) ([]types.Task, Scheduler, error) {
	i := s.indexOf(id)
	if i < 0 {
		return nil, s, fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}

	orphans := s.workers[i].Backlog.Tasks()

	next := s
	next.workers = make([]Worker, 0, len(s.workers)-1)
	next.workers = append(next.workers, s.workers[:i]...)
	next.workers = append(next.workers, s.workers[i+1:]...)
	return orphans, next, nil
}

// UpdateState replaces a worker's state verbatim
func (s Scheduler) UpdateState(id types.WorkerID, state types.WorkerState) (Scheduler, error) {
	i := s.indexOf(id)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrWorkerNotFound, id)
	}

	w := s.workers[i]
	w.State = state
	return s.withWorker(i, w), nil
}

func (s Scheduler) indexOf(id types.WorkerID) int {
	for i, w := range s.workers {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// withWorker returns a copy of s with workers[i] replaced
func (s Scheduler) withWorker(i int, w Worker) Scheduler {
	next := s
	next.workers = make([]Worker, len(s.workers))
	copy(next.workers, s.workers)
	next.workers[i] = w
	return next
}
