package types

import "fmt"

// TaskID identifies an in-flight task. Identity is the String form: ids of
// different kinds with the same name refer to the same task.
type TaskID interface {
	// Cost is the relative amount of work the task represents, never negative
	Cost() int
	String() string
}

// Task identifier kinds in wire form
const (
	TaskKindRun      = "run"
	TaskKindWeighted = "weighted"
)

// RunID identifies a single compile-and-run of a snippet
type RunID struct {
	Snippet string
}

// Cost of a run is one unit
func (r RunID) Cost() int { return 1 }

func (r RunID) String() string { return r.Snippet }

// WeightedID identifies a task whose cost is known up front, for example a
// run that also resolves dependencies
type WeightedID struct {
	ID     string
	Weight int
}

// Cost returns the weight, clamped at zero
func (w WeightedID) Cost() int {
	if w.Weight < 0 {
		return 0
	}
	return w.Weight
}

func (w WeightedID) String() string { return w.ID }

// TaskRef is the serialisable form of a TaskID
type TaskRef struct {
	Kind   string `json:"kind" yaml:"kind"`
	ID     string `json:"id" yaml:"id"`
	Weight int    `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// RefOf converts a TaskID to its wire form
func RefOf(id TaskID) TaskRef {
	switch v := id.(type) {
	case RunID:
		return TaskRef{Kind: TaskKindRun, ID: v.Snippet}
	case WeightedID:
		return TaskRef{Kind: TaskKindWeighted, ID: v.ID, Weight: v.Weight}
	default:
		// Unknown implementations keep their cost
		return TaskRef{Kind: TaskKindWeighted, ID: id.String(), Weight: id.Cost()}
	}
}

// TaskID converts the wire form back to a TaskID
func (r TaskRef) TaskID() (TaskID, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("task ref has empty id")
	}
	switch r.Kind {
	case TaskKindRun, "":
		return RunID{Snippet: r.ID}, nil
	case TaskKindWeighted:
		return WeightedID{ID: r.ID, Weight: r.Weight}, nil
	default:
		return nil, fmt.Errorf("unknown task kind: %s", r.Kind)
	}
}
