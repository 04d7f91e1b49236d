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

func TestBacklogFIFO(t *testing.T) {
	seq := balancertest.NewSequence()
	t1, t2, t3 := seq.Task("1", "a"), seq.Task("1", "a"), seq.Task("2", "b")

	b := balancer.NewBacklog().Enqueue(t1).Enqueue(t2).Enqueue(t3)
	assert.Equal(t, []types.Task{t1, t2, t3}, b.Tasks())
	assert.True(t, b.Contains(t2.ID))

	got, rest, err := b.DequeueMatching(t2.ID)
	require.NoError(t, err)
	assert.Equal(t, t2, got)
	assert.Equal(t, []types.Task{t1, t3}, rest.Tasks())
	assert.False(t, rest.Contains(t2.ID))

	// The original backlog is unchanged
	assert.Equal(t, 3, b.Len())
}

func TestBacklogDequeueMissing(t *testing.T) {
	seq := balancertest.NewSequence()
	b := balancer.NewBacklog(seq.Task("1", "a"))

	_, rest, err := b.DequeueMatching(types.RunID{Snippet: "nope"})
	assert.True(t, errors.Is(err, balancer.ErrTaskNotFound))
	assert.Equal(t, b.Tasks(), rest.Tasks())
}

func TestBacklogEnqueueDoesNotAlias(t *testing.T) {
	seq := balancertest.NewSequence()
	base := balancer.NewBacklog(seq.Task("1", "a"))

	left := base.Enqueue(seq.Task("1", "a"))
	right := base.Enqueue(seq.Task("1", "b"))

	assert.NotEqual(t, left.Tasks()[1], right.Tasks()[1])
	assert.Equal(t, 1, base.Len())
}

func TestWorkerReady(t *testing.T) {
	tests := []struct {
		name  string
		state types.WorkerState
		want  bool
	}{
		{name: "ready status", state: types.WorkerStatusReady, want: true},
		{name: "starting status", state: types.WorkerStatusStarting, want: false},
		{name: "healthy probe", state: types.ProbeState{Healthy: true}, want: true},
		{name: "failing probe", state: types.ProbeState{ConsecutiveFailures: 3}, want: false},
		{name: "no state", state: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := balancer.NewWorker("w", balancertest.Env("1"), tt.state)
			assert.Equal(t, tt.want, w.Ready())
			assert.True(t, w.Idle())
		})
	}
}
