package balancer_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/balancer/balancertest"
	"github.com/cuemby/ember/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  balancer.Config
		ok   bool
	}{
		{name: "valid", cfg: balancer.Config{HistoryCapacity: 1}, ok: true},
		{name: "zero capacity", cfg: balancer.Config{HistoryCapacity: 0}},
		{name: "negative task cost", cfg: balancer.Config{HistoryCapacity: 1, TaskCost: -time.Second}},
		{name: "negative reload cost", cfg: balancer.Config{HistoryCapacity: 1, ReloadCost: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := balancer.New(tt.cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, balancer.ErrInvalidConfig))
			}
		})
	}
}

func TestSubmitWithoutWorkers(t *testing.T) {
	seq := balancertest.NewSequence()
	s, _ := balancertest.Scheduler(t, seq, balancertest.DefaultConfig())

	_, next, err := s.Submit(seq.Task("1", seq.Address()))
	assert.True(t, errors.Is(err, balancer.ErrNoWorkerAvailable))
	balancertest.AssertHistory(t, next)
}

func TestSubmitWithoutReadyWorkers(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "2")

	var err error
	s, err = s.UpdateState(ids[0], types.WorkerStatusDown)
	require.NoError(t, err)
	s, err = s.UpdateState(ids[1], types.WorkerStatusStarting)
	require.NoError(t, err)

	_, _, err = s.Submit(seq.Task("1", seq.Address()))
	assert.True(t, errors.Is(err, balancer.ErrNoWorkerAvailable))
}

func TestSubmitRejectsInvalidTasks(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	_, _, err := s.Submit(types.Task{Environment: balancertest.Env("1")})
	assert.True(t, errors.Is(err, balancer.ErrInvalidTask))

	task := seq.Task("1", "a")
	_, s = balancertest.Submit(t, s, task)
	_, after, err := s.Submit(task)
	assert.True(t, errors.Is(err, balancer.ErrDuplicateTaskID))
	balancertest.AssertBacklog(t, after, ids[0], task.ID)
}

// Scenario A: a warm match beats an idle worker in another environment
func TestSubmitRoutesToWarmWorker(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "2")

	task := seq.Task("1", seq.Address())
	a, s := balancertest.Submit(t, s, task)

	assert.Equal(t, ids[0], a.Worker)
	assert.Equal(t, balancer.ReasonWarm, a.Reason)
	assert.False(t, a.Reload)
	assert.Equal(t, time.Duration(0), a.Wait)
	balancertest.AssertBacklog(t, s, ids[0], task.ID)
	balancertest.AssertBacklog(t, s, ids[1])
}

// Scenario B: among warm matches the smaller backlog wins
func TestSubmitPrefersLessLoadedWarmWorker(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "1")

	t1, t2 := seq.Task("1", "a"), seq.Task("1", "a")
	// Queue two tasks on X while Y is down
	var err error
	s, err = s.UpdateState(ids[1], types.WorkerStatusDown)
	require.NoError(t, err)
	_, s = balancertest.Submit(t, s, t1)
	_, s = balancertest.Submit(t, s, t2)
	s, err = s.UpdateState(ids[1], types.WorkerStatusReady)
	require.NoError(t, err)

	t3 := seq.Task("1", seq.Address())
	a, s := balancertest.Submit(t, s, t3)

	assert.Equal(t, ids[1], a.Worker)
	assert.Equal(t, balancer.ReasonWarm, a.Reason)
	balancertest.AssertBacklog(t, s, ids[0], t1.ID, t2.ID)
	balancertest.AssertBacklog(t, s, ids[1], t3.ID)
}

func TestSubmitAvoidsHeavilyLoadedWarmWorker(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "1")

	heavy := types.NewTask(balancertest.Env("1"), "a", types.WeightedID{ID: "heavy", Weight: 5_000_000_000})
	var err error
	s, err = s.UpdateState(ids[1], types.WorkerStatusDown)
	require.NoError(t, err)
	_, s = balancertest.Submit(t, s, heavy)
	s, err = s.UpdateState(ids[1], types.WorkerStatusReady)
	require.NoError(t, err)

	assert.Greater(t, int64(s.Cost().BacklogLoad(mustWorker(t, s, ids[0]))), int64(0))

	a, _ := balancertest.Submit(t, s, seq.Task("1", "a"))
	assert.Equal(t, ids[1], a.Worker)
	assert.Equal(t, time.Duration(0), a.Wait)
}

func mustWorker(t *testing.T, s balancer.Scheduler, id types.WorkerID) balancer.Worker {
	t.Helper()
	w, ok := s.Worker(id)
	require.True(t, ok)
	return w
}

// Scenario C: the only ready worker takes the task despite the reload
func TestSubmitReloadsSoleWorker(t *testing.T) {
	seq := balancertest.NewSequence()
	cfg := balancertest.DefaultConfig()
	cfg.TaskCost = 2 * time.Second
	cfg.ReloadCost = 100 * time.Second
	s, ids := balancertest.Scheduler(t, seq, cfg, "1")

	task := seq.Task("2", seq.Address())
	a, s := balancertest.Submit(t, s, task)

	assert.Equal(t, ids[0], a.Worker)
	assert.True(t, a.Reload)
	assert.Equal(t, 100*time.Second, a.Wait)
	assert.Equal(t, balancer.ReasonLeastCost, a.Reason)
	balancertest.AssertEnvironments(t, s, "2")
}

// Scenario D: removing a worker hands back its backlog in order
func TestRemoveWorkerReturnsOrphansInOrder(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "2")

	t1, t2 := seq.Task("1", "a"), seq.Task("1", "b")
	_, s = balancertest.Submit(t, s, t1)
	_, s = balancertest.Submit(t, s, t2)
	balancertest.AssertBacklog(t, s, ids[0], t1.ID, t2.ID)

	orphans, next, err := s.RemoveWorker(ids[0])
	require.NoError(t, err)
	assert.Equal(t, []types.Task{t1, t2}, orphans)

	_, ok := next.Worker(ids[0])
	assert.False(t, ok)
	assert.Len(t, next.Workers(), 1)

	// Resubmitting in order keeps FIFO on the remaining pool
	for _, task := range orphans {
		_, next = balancertest.Submit(t, next, task)
	}
	balancertest.AssertBacklog(t, next, ids[1], t1.ID, t2.ID)
}

func TestSubmitSpreadsDistinctEnvironments(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "0", "0", "0")

	var got []types.WorkerID
	for _, env := range []string{"1", "2", "3"} {
		a, next := balancertest.Submit(t, s, seq.Task(env, seq.Address()))
		s = next
		got = append(got, a.Worker)
	}

	// Each reload goes to the cheapest worker, and a busy worker is
	// never cheaper than an idle one
	assert.Equal(t, ids, got)
	balancertest.AssertEnvironments(t, s, "1", "2", "3")
}

func TestSubmitConsolidatesRepeatedEnvironment(t *testing.T) {
	seq := balancertest.NewSequence()
	cfg := balancertest.DefaultConfig()
	cfg.TaskCost = time.Second
	cfg.ReloadCost = 10 * time.Second
	s, ids := balancertest.Scheduler(t, seq, cfg, "0", "0")

	for i := 0; i < 5; i++ {
		a, next := balancertest.Submit(t, s, seq.Task("1", "a"))
		s = next
		assert.Equal(t, ids[0], a.Worker, "submission %d", i)
	}
	balancertest.AssertEnvironments(t, s, "1", "0")
}

func TestSubmitAffinityToIdleWorker(t *testing.T) {
	seq := balancertest.NewSequence()
	cfg := balancertest.DefaultConfig()
	s, ids := balancertest.Scheduler(t, seq, cfg, "1", "2")
	client := seq.Address()

	// The client's last request was for "2", served by the second worker
	first := seq.Task("2", client)
	_, s = balancertest.Submit(t, s, first)
	var err error
	s, err = s.Complete(ids[1], first.ID)
	require.NoError(t, err)

	// A new environment: both workers are idle and need a reload, so pure
	// cost would pick index 0. Affinity pins the client to worker 2.
	a, s := balancertest.Submit(t, s, seq.Task("3", client))
	assert.Equal(t, ids[1], a.Worker)
	assert.Equal(t, balancer.ReasonAffinity, a.Reason)
	assert.True(t, a.Reload)
	balancertest.AssertEnvironments(t, s, "1", "3")
}

func TestSubmitAffinityNeverPreemptsQueuedWork(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "2")
	client := seq.Address()

	_, s = balancertest.Submit(t, s, seq.Task("2", client))

	// Worker 2 is busy, so affinity does not apply
	a, _ := balancertest.Submit(t, s, seq.Task("3", client))
	assert.Equal(t, ids[0], a.Worker)
	assert.Equal(t, balancer.ReasonLeastCost, a.Reason)
}

func TestSubmitWarmMatchBeatsAffinity(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "2")
	client := seq.Address()

	prev := seq.Task("2", client)
	_, s = balancertest.Submit(t, s, prev)
	var err error
	s, err = s.Complete(ids[1], prev.ID)
	require.NoError(t, err)

	// Load the warm worker: a warm match still wins over an idle affinity
	// worker because it avoids the reload entirely
	_, s = balancertest.Submit(t, s, seq.Task("1", "other"))
	a, _ := balancertest.Submit(t, s, seq.Task("1", client))
	assert.Equal(t, ids[0], a.Worker)
	assert.Equal(t, balancer.ReasonWarm, a.Reason)
}

func TestSubmitSkipsNotReadyWarmWorker(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "2")

	var err error
	s, err = s.UpdateState(ids[0], types.ProbeState{Healthy: false, ConsecutiveFailures: 3})
	require.NoError(t, err)

	a, s := balancertest.Submit(t, s, seq.Task("1", seq.Address()))
	assert.Equal(t, ids[1], a.Worker)
	assert.True(t, a.Reload)
	balancertest.AssertEnvironments(t, s, "1", "1")
}

func TestSubmitLeavesReceiverUntouched(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	_, next := balancertest.Submit(t, s, seq.Task("2", "a"))

	balancertest.AssertEnvironments(t, s, "1")
	balancertest.AssertBacklog(t, s, ids[0])
	balancertest.AssertHistory(t, s)

	balancertest.AssertEnvironments(t, next, "2")
	balancertest.AssertHistory(t, next, record("2", "a"))
}

func TestComplete(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	t1, t2 := seq.Task("2", "a"), seq.Task("2", "a")
	_, s = balancertest.Submit(t, s, t1)
	_, s = balancertest.Submit(t, s, t2)
	before := s.History().Records()

	next, err := s.Complete(ids[0], t1.ID)
	require.NoError(t, err)
	balancertest.AssertBacklog(t, next, ids[0], t2.ID)
	balancertest.AssertEnvironments(t, next, "2")
	assert.Equal(t, before, next.History().Records())

	// Completing twice is a bookkeeping error and changes nothing
	again, err := next.Complete(ids[0], t1.ID)
	assert.True(t, errors.Is(err, balancer.ErrTaskNotFound))
	balancertest.AssertBacklog(t, again, ids[0], t2.ID)

	_, err = next.Complete("ghost", t2.ID)
	assert.True(t, errors.Is(err, balancer.ErrWorkerNotFound))
}

func TestCompleteOutOfOrder(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	t1, t2, t3 := seq.Task("1", "a"), seq.Task("1", "a"), seq.Task("1", "a")
	for _, task := range []types.Task{t1, t2, t3} {
		_, s = balancertest.Submit(t, s, task)
	}

	s, err := s.Complete(ids[0], t2.ID)
	require.NoError(t, err)
	balancertest.AssertBacklog(t, s, ids[0], t1.ID, t3.ID)
}

func TestCancelBehavesLikeComplete(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	task := seq.Task("1", "a")
	_, s = balancertest.Submit(t, s, task)

	next, err := s.Cancel(ids[0], task.ID)
	require.NoError(t, err)
	balancertest.AssertBacklog(t, next, ids[0])

	_, err = next.Cancel(ids[0], task.ID)
	assert.True(t, errors.Is(err, balancer.ErrTaskNotFound))
}

func TestAddWorker(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	next, err := s.AddWorker("extra", balancertest.Env("2"), types.WorkerStatusStarting)
	require.NoError(t, err)
	assert.Len(t, s.Workers(), 1)
	require.Len(t, next.Workers(), 2)

	w := next.Workers()[1]
	assert.Equal(t, types.WorkerID("extra"), w.ID)
	assert.True(t, w.Idle())
	assert.False(t, w.Ready())

	_, err = next.AddWorker(ids[0], balancertest.Env("3"), types.WorkerStatusReady)
	assert.True(t, errors.Is(err, balancer.ErrDuplicateWorkerID))
}

func TestRemoveUnknownWorker(t *testing.T) {
	seq := balancertest.NewSequence()
	s, _ := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	orphans, next, err := s.RemoveWorker("ghost")
	assert.True(t, errors.Is(err, balancer.ErrWorkerNotFound))
	assert.Nil(t, orphans)
	assert.Len(t, next.Workers(), 1)
}

func TestUpdateState(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	task := seq.Task("1", "a")
	_, s = balancertest.Submit(t, s, task)

	probe := types.ProbeState{Healthy: false, Message: "connection refused", ConsecutiveFailures: 3}
	next, err := s.UpdateState(ids[0], probe)
	require.NoError(t, err)

	w, ok := next.Worker(ids[0])
	require.True(t, ok)
	assert.Equal(t, types.WorkerState(probe), w.State)
	balancertest.AssertBacklog(t, next, ids[0], task.ID)

	_, err = next.UpdateState("ghost", types.WorkerStatusReady)
	assert.True(t, errors.Is(err, balancer.ErrWorkerNotFound))
}

func TestLocate(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "2")

	task := seq.Task("2", "a")
	_, s = balancertest.Submit(t, s, task)

	owner, ok := s.Locate(task.ID)
	assert.True(t, ok)
	assert.Equal(t, ids[1], owner)

	_, ok = s.Locate(types.RunID{Snippet: "nope"})
	assert.False(t, ok)

	// identity is the name, whatever the id kind
	owner, ok = s.Locate(types.WeightedID{ID: task.ID.String(), Weight: 7})
	assert.True(t, ok)
	assert.Equal(t, ids[1], owner)
}

func TestSubmitRejectsSameNameOfAnotherKind(t *testing.T) {
	seq := balancertest.NewSequence()
	s, _ := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	_, s = balancertest.Submit(t, s, types.NewTask(balancertest.Env("1"), "a", types.RunID{Snippet: "job"}))
	_, _, err := s.Submit(types.NewTask(balancertest.Env("1"), "a", types.WeightedID{ID: "job", Weight: 3}))
	assert.ErrorIs(t, err, balancer.ErrDuplicateTaskID)
}

// listID is a task id that cannot be compared with ==
type listID struct {
	parts []string
}

func (l listID) Cost() int      { return len(l.parts) }
func (l listID) String() string { return strings.Join(l.parts, "/") }

func TestUncomparableTaskIDs(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1")

	task := types.NewTask(balancertest.Env("1"), "a", listID{parts: []string{"build", "x"}})
	_, s = balancertest.Submit(t, s, task)

	_, _, err := s.Submit(types.NewTask(balancertest.Env("1"), "a", listID{parts: []string{"build", "x"}}))
	assert.ErrorIs(t, err, balancer.ErrDuplicateTaskID)

	owner, ok := s.Locate(listID{parts: []string{"build", "x"}})
	require.True(t, ok)
	assert.Equal(t, ids[0], owner)

	s, err = s.Complete(ids[0], listID{parts: []string{"build", "x"}})
	require.NoError(t, err)
	balancertest.AssertBacklog(t, s, ids[0])
}
