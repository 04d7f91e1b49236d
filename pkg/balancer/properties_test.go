package balancer_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/balancer/balancertest"
	"github.com/cuemby/ember/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// walk drives a scheduler through a seeded random mix of transitions and
// checks the invariants after every step
func walk(t *testing.T, seed int64, steps int) {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))
	seq := balancertest.NewSequence()
	cfg := balancertest.DefaultConfig()
	cfg.HistoryCapacity = 5
	s, _ := balancertest.Scheduler(t, seq, cfg, "0", "1", "2")

	envs := []string{"0", "1", "2", "3", "4"}
	origins := []types.ClientAddress{"a", "b", "c", "d"}
	var submitted []balancer.Record

	for step := 0; step < steps; step++ {
		prev := s
		workers := s.Workers()

		switch op := rng.Intn(10); {
		case op < 5:
			task := seq.Task(envs[rng.Intn(len(envs))], origins[rng.Intn(len(origins))])
			a, next, err := s.Submit(task)
			if err != nil {
				require.ErrorIs(t, err, balancer.ErrNoWorkerAvailable)
				assert.Equal(t, prev.Snapshot(), next.Snapshot())
				continue
			}
			checkWarmPriority(t, prev, task, a)
			submitted = append(submitted, balancer.Record{Environment: task.Environment, Origin: task.Origin})
			s = next

		case op < 8:
			if len(workers) == 0 {
				continue
			}
			w := workers[rng.Intn(len(workers))]
			if w.Backlog.Len() == 0 {
				continue
			}
			task := w.Backlog.Tasks()[rng.Intn(w.Backlog.Len())]
			next, err := s.Complete(w.ID, task.ID)
			require.NoError(t, err)
			after, _ := next.Worker(w.ID)
			assert.Equal(t, w.Backlog.Len()-1, after.Backlog.Len())
			assert.Equal(t, w.Environment, after.Environment)
			assert.Equal(t, prev.History().Records(), next.History().Records())
			s = next

		case op < 9:
			if len(workers) == 0 {
				continue
			}
			w := workers[rng.Intn(len(workers))]
			var state types.WorkerState = types.WorkerStatusReady
			if rng.Intn(3) == 0 {
				state = types.WorkerStatusDown
			}
			next, err := s.UpdateState(w.ID, state)
			require.NoError(t, err)
			s = next

		default:
			if len(workers) > 1 && rng.Intn(2) == 0 {
				w := workers[rng.Intn(len(workers))]
				orphans, next, err := s.RemoveWorker(w.ID)
				require.NoError(t, err)
				s = next
				for _, task := range orphans {
					_, next, err := s.Submit(task)
					if err != nil {
						continue
					}
					submitted = append(submitted, balancer.Record{Environment: task.Environment, Origin: task.Origin})
					s = next
				}
			} else {
				next, err := s.AddWorker(seq.WorkerID(), balancertest.Env(envs[rng.Intn(len(envs))]), types.WorkerStatusReady)
				require.NoError(t, err)
				s = next
			}
		}

		balancertest.AssertNoDoubleAssignment(t, s)
		checkHistoryBound(t, s, submitted)
	}
}

func checkWarmPriority(t *testing.T, before balancer.Scheduler, task types.Task, a balancer.Assignment) {
	t.Helper()

	cost := before.Cost()
	found := false
	var bestLoad int64
	for _, w := range before.Workers() {
		if !w.Ready() || w.Environment != task.Environment {
			continue
		}
		load := int64(cost.BacklogLoad(w))
		if !found || load < bestLoad {
			found, bestLoad = true, load
		}
	}
	if !found {
		return
	}

	chosen, ok := before.Worker(a.Worker)
	require.True(t, ok)
	assert.Equal(t, task.Environment, chosen.Environment, "warm match available but reload chosen")
	assert.Equal(t, bestLoad, int64(cost.BacklogLoad(chosen)), "warm match was not least loaded")
}

func checkHistoryBound(t *testing.T, s balancer.Scheduler, submitted []balancer.Record) {
	t.Helper()

	h := s.History()
	require.LessOrEqual(t, h.Len(), h.Capacity())

	want := submitted
	if len(want) > h.Capacity() {
		want = want[len(want)-h.Capacity():]
	}
	if len(want) == 0 {
		assert.Zero(t, h.Len())
		return
	}
	assert.Equal(t, want, h.Records())
}

func TestSchedulerInvariants(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			walk(t, seed, 300)
		})
	}
}

func TestSubmitIsDeterministic(t *testing.T) {
	seq := balancertest.NewSequence()
	s, _ := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "2", "1", "3")

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		_, s = balancertest.Submit(t, s, seq.Task(fmt.Sprint(rng.Intn(4)), types.ClientAddress(fmt.Sprint(rng.Intn(3)))))
	}

	task := seq.Task("2", "0")
	a1, s1, err1 := s.Submit(task)
	a2, s2, err2 := s.Submit(task)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, a1, a2)
	assert.Equal(t, s1.Snapshot(), s2.Snapshot())
}
