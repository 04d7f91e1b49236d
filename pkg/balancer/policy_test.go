package balancer_test

import (
	"errors"
	"testing"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/balancer/balancertest"
	"github.com/cuemby/ember/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{"", balancer.PolicyWarmFirst, balancer.PolicyLeastCost} {
		p, err := balancer.PolicyByName(name)
		require.NoError(t, err, name)
		assert.NotNil(t, p)
	}

	_, err := balancer.PolicyByName("round-robin")
	assert.True(t, errors.Is(err, balancer.ErrInvalidConfig))
	assert.Equal(t, []string{"least-cost", "warm-first"}, balancer.PolicyNames())
}

func TestWarmFirstTieBreaksByIndex(t *testing.T) {
	seq := balancertest.NewSequence()
	cfg := balancertest.DefaultConfig()
	history, err := balancer.NewHistory(cfg.HistoryCapacity)
	require.NoError(t, err)
	cost := balancer.CostModel{TaskCost: cfg.TaskCost, ReloadCost: cfg.ReloadCost}

	workers := []balancer.Worker{
		balancer.NewWorker("a", balancertest.Env("2"), types.WorkerStatusReady),
		balancer.NewWorker("b", balancertest.Env("1"), types.WorkerStatusReady),
		balancer.NewWorker("c", balancertest.Env("1"), types.WorkerStatusReady),
	}

	d, ok := balancer.WarmFirst(workers, history, cost, seq.Task("1", "x"))
	require.True(t, ok)
	assert.Equal(t, balancer.Decision{Index: 1, Reason: balancer.ReasonWarm}, d)

	d, ok = balancer.WarmFirst(workers, history, cost, seq.Task("9", "x"))
	require.True(t, ok)
	assert.Equal(t, balancer.Decision{Index: 0, Reason: balancer.ReasonLeastCost}, d)
}

func TestWarmFirstNoReadyWorkers(t *testing.T) {
	seq := balancertest.NewSequence()
	history, err := balancer.NewHistory(1)
	require.NoError(t, err)

	workers := []balancer.Worker{
		balancer.NewWorker("a", balancertest.Env("1"), types.WorkerStatusDraining),
	}
	_, ok := balancer.WarmFirst(workers, history, balancer.CostModel{}, seq.Task("1", "x"))
	assert.False(t, ok)

	_, ok = balancer.WarmFirst(nil, history, balancer.CostModel{}, seq.Task("1", "x"))
	assert.False(t, ok)
}

func TestLeastCostIgnoresAffinityAndPricesReload(t *testing.T) {
	seq := balancertest.NewSequence()
	cfg := balancertest.DefaultConfig()
	cfg.Policy = balancer.LeastCost
	s, ids := balancertest.Scheduler(t, seq, cfg, "1", "2")

	// Five tasks on the warm worker cost 10s, still cheaper than a 20s reload
	for i := 0; i < 5; i++ {
		_, s = balancertest.Submit(t, s, seq.Task("1", "a"))
	}
	a, s := balancertest.Submit(t, s, seq.Task("1", "a"))
	assert.Equal(t, ids[0], a.Worker)
	assert.Equal(t, balancer.ReasonLeastCost, a.Reason)

	// Once eleven tasks are queued the reload is cheaper
	for i := 0; i < 5; i++ {
		_, s = balancertest.Submit(t, s, seq.Task("1", "a"))
	}
	a, _ = balancertest.Submit(t, s, seq.Task("1", "a"))
	assert.Equal(t, ids[1], a.Worker)
	assert.True(t, a.Reload)
}

func TestWarmFirstKeepsWarmWorkerUnderLoad(t *testing.T) {
	seq := balancertest.NewSequence()
	s, ids := balancertest.Scheduler(t, seq, balancertest.DefaultConfig(), "1", "2")

	for i := 0; i < 20; i++ {
		a, next := balancertest.Submit(t, s, seq.Task("1", "a"))
		s = next
		require.Equal(t, ids[0], a.Worker)
	}
	balancertest.AssertEnvironments(t, s, "1", "2")
}
