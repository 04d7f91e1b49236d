package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentEquality(t *testing.T) {
	a := Environment{Target: "jvm-2.13", Settings: "cats"}
	b := Environment{Target: "jvm-2.13", Settings: "cats"}
	c := Environment{Target: "jvm-3", Settings: "cats"}

	assert.True(t, a == b)
	assert.False(t, a == c)
	assert.Equal(t, "jvm-2.13/cats", a.String())
	assert.Equal(t, "js", Environment{Target: "js"}.String())
	assert.True(t, Environment{}.IsZero())
}

func TestTaskIDCost(t *testing.T) {
	tests := []struct {
		name string
		id   TaskID
		want int
	}{
		{name: "run", id: RunID{Snippet: "s1"}, want: 1},
		{name: "weighted", id: WeightedID{ID: "s2", Weight: 5}, want: 5},
		{name: "zero weight", id: WeightedID{ID: "s3"}, want: 0},
		{name: "negative weight clamps", id: WeightedID{ID: "s4", Weight: -3}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.id.Cost())
		})
	}
}

func TestTaskIDComparable(t *testing.T) {
	var a, b TaskID = RunID{Snippet: "x"}, RunID{Snippet: "x"}
	assert.True(t, a == b)

	var c TaskID = WeightedID{ID: "x", Weight: 1}
	assert.False(t, a == c, "different kinds with the same name are distinct tasks")
}

func TestTaskRef(t *testing.T) {
	for _, id := range []TaskID{RunID{Snippet: "r"}, WeightedID{ID: "w", Weight: 3}} {
		got, err := RefOf(id).TaskID()
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}

	_, err := TaskRef{Kind: "bogus", ID: "x"}.TaskID()
	assert.Error(t, err)

	_, err = TaskRef{Kind: TaskKindRun}.TaskID()
	assert.Error(t, err)
}

func TestTaskJSON(t *testing.T) {
	task := NewTask(Environment{Target: "jvm-3"}, "10.0.0.1", WeightedID{ID: "t1", Weight: 2})

	data, err := json.Marshal(task)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"weighted"`)

	var decoded Task
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, task, decoded)

	_, err = json.Marshal(Task{})
	assert.Error(t, err)
}

func TestWorkerStatus(t *testing.T) {
	assert.True(t, WorkerStatusReady.Ready())
	assert.False(t, WorkerStatusStarting.Ready())
	assert.False(t, WorkerStatusDraining.Ready())
	assert.False(t, WorkerStatusDown.Ready())

	st, err := ParseWorkerStatus("draining")
	require.NoError(t, err)
	assert.Equal(t, WorkerStatusDraining, st)

	_, err = ParseWorkerStatus("asleep")
	assert.Error(t, err)
}

func TestStateRef(t *testing.T) {
	states := []WorkerState{
		WorkerStatusReady,
		WorkerStatusDown,
		ProbeState{Healthy: false, Message: "refused", ConsecutiveFailures: 3},
	}

	for _, st := range states {
		got, err := StateRefOf(st).WorkerState()
		require.NoError(t, err)
		assert.Equal(t, st, got)
		assert.Equal(t, st.Ready(), got.Ready())
	}

	_, err := StateRef{Kind: "other"}.WorkerState()
	assert.Error(t, err)
}
