// Package balancertest provides fixtures for tests that drive a
// balancer.Scheduler.
package balancertest

import (
	"fmt"
	"testing"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sequence hands out unique identifiers. Create one per test.
type Sequence struct {
	task   int
	worker int
	addr   int
}

// NewSequence creates a fresh sequence
func NewSequence() *Sequence {
	return &Sequence{}
}

// TaskID returns the next run id
func (s *Sequence) TaskID() types.TaskID {
	s.task++
	return types.RunID{Snippet: fmt.Sprintf("task-%d", s.task)}
}

// WorkerID returns the next worker id
func (s *Sequence) WorkerID() types.WorkerID {
	s.worker++
	return types.WorkerID(fmt.Sprintf("worker-%d", s.worker))
}

// Address returns the next client address
func (s *Sequence) Address() types.ClientAddress {
	s.addr++
	return types.ClientAddress(fmt.Sprintf("10.0.%d.%d", s.addr/256, s.addr%256))
}

// Task returns a task for env from origin with the next id
func (s *Sequence) Task(env string, origin types.ClientAddress) types.Task {
	return types.NewTask(Env(env), origin, s.TaskID())
}

// Env builds an environment from a target name
func Env(target string) types.Environment {
	return types.Environment{Target: target}
}

// DefaultConfig is a small scheduler configuration with a reload far more
// expensive than a task
func DefaultConfig() balancer.Config {
	return balancer.Config{
		HistoryCapacity: 20,
		TaskCost:        2 * time.Second,
		ReloadCost:      20 * time.Second,
	}
}

// Scheduler builds a scheduler with one ready worker per environment, in
// order, and returns their ids
func Scheduler(t testing.TB, seq *Sequence, cfg balancer.Config, envs ...string) (balancer.Scheduler, []types.WorkerID) {
	t.Helper()

	s, err := balancer.New(cfg)
	require.NoError(t, err)

	ids := make([]types.WorkerID, 0, len(envs))
	for _, env := range envs {
		id := seq.WorkerID()
		s, err = s.AddWorker(id, Env(env), types.WorkerStatusReady)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return s, ids
}

// Submit submits a task and fails the test on error
func Submit(t testing.TB, s balancer.Scheduler, task types.Task) (balancer.Assignment, balancer.Scheduler) {
	t.Helper()

	a, next, err := s.Submit(task)
	require.NoError(t, err)
	return a, next
}

// AssertEnvironments checks each worker's environment target, in order
func AssertEnvironments(t testing.TB, s balancer.Scheduler, targets ...string) {
	t.Helper()

	workers := s.Workers()
	got := make([]string, len(workers))
	for i, w := range workers {
		got[i] = w.Environment.Target
	}
	assert.Equal(t, targets, got)
}

// AssertHistory checks the history ledger contents, oldest first
func AssertHistory(t testing.TB, s balancer.Scheduler, records ...balancer.Record) {
	t.Helper()

	if len(records) == 0 {
		assert.Zero(t, s.History().Len())
		return
	}
	assert.Equal(t, records, s.History().Records())
}

// AssertBacklog checks the ids queued on a worker, in order
func AssertBacklog(t testing.TB, s balancer.Scheduler, id types.WorkerID, want ...types.TaskID) {
	t.Helper()

	w, ok := s.Worker(id)
	require.True(t, ok, "worker %s not found", id)

	got := make([]types.TaskID, 0, w.Backlog.Len())
	for _, task := range w.Backlog.Tasks() {
		got = append(got, task.ID)
	}
	if len(want) == 0 {
		assert.Empty(t, got)
		return
	}
	assert.Equal(t, want, got)
}

// AssertNoDoubleAssignment checks that no task is queued twice
func AssertNoDoubleAssignment(t testing.TB, s balancer.Scheduler) {
	t.Helper()

	seen := make(map[string]types.WorkerID)
	for _, w := range s.Workers() {
		for _, task := range w.Backlog.Tasks() {
			if owner, dup := seen[task.ID.String()]; dup {
				t.Errorf("task %v queued on both %s and %s", task.ID, owner, w.ID)
			}
			seen[task.ID.String()] = w.ID
		}
	}
}
