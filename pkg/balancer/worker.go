package balancer

import (
	"fmt"

	"github.com/cuemby/ember/pkg/types"
)

// Backlog is a FIFO queue of tasks assigned to a worker and not yet
// finished. Operations return a new Backlog.
type Backlog struct {
	tasks []types.Task
}

// NewBacklog creates a backlog holding tasks in the given order
func NewBacklog(tasks ...types.Task) Backlog {
	if len(tasks) == 0 {
		return Backlog{}
	}
	b := Backlog{tasks: make([]types.Task, len(tasks))}
	copy(b.tasks, tasks)
	return b
}

// Enqueue appends a task
func (b Backlog) Enqueue(t types.Task) Backlog {
	next := make([]types.Task, len(b.tasks), len(b.tasks)+1)
	copy(next, b.tasks)
	return Backlog{tasks: append(next, t)}
}

// sameTask compares task ids by their string form. Two ids of different
// kinds that print the same name are the same task.
func sameTask(a, b types.TaskID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// DequeueMatching removes the one entry with the given id
func (b Backlog) DequeueMatching(id types.TaskID) (types.Task, Backlog, error) {
	for i, t := range b.tasks {
		if !sameTask(t.ID, id) {
			continue
		}
		next := make([]types.Task, 0, len(b.tasks)-1)
		next = append(next, b.tasks[:i]...)
		next = append(next, b.tasks[i+1:]...)
		return t, Backlog{tasks: next}, nil
	}
	return types.Task{}, b, fmt.Errorf("%w: %v", ErrTaskNotFound, id)
}

// Contains reports whether a task with the id is queued
func (b Backlog) Contains(id types.TaskID) bool {
	for _, t := range b.tasks {
		if sameTask(t.ID, id) {
			return true
		}
	}
	return false
}

// Len returns the number of queued tasks
func (b Backlog) Len() int {
	return len(b.tasks)
}

// Tasks returns a copy of the queue in submission order
func (b Backlog) Tasks() []types.Task {
	out := make([]types.Task, len(b.tasks))
	copy(out, b.tasks)
	return out
}

// Worker is the scheduler's record of one worker process
type Worker struct {
	ID types.WorkerID
	// Environment is the environment of the most recently assigned task,
	// which may not be loaded yet
	Environment types.Environment
	Backlog     Backlog
	State       types.WorkerState
}

// NewWorker creates a worker with an empty backlog
func NewWorker(id types.WorkerID, env types.Environment, state types.WorkerState) Worker {
	return Worker{ID: id, Environment: env, State: state}
}

// Ready reports whether the worker can accept work
func (w Worker) Ready() bool {
	return w.State != nil && w.State.Ready()
}

// Idle reports whether the backlog is empty
func (w Worker) Idle() bool {
	return w.Backlog.Len() == 0
}
