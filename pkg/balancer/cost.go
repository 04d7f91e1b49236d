package balancer

import (
	"math"
	"time"

	"github.com/cuemby/ember/pkg/types"
)

// CostModel prices queued work and environment switches
type CostModel struct {
	// TaskCost is the duration of one unit of task cost
	TaskCost time.Duration
	// ReloadCost is the fixed duration of switching a worker's environment
	ReloadCost time.Duration
}

// maxLoad is where load arithmetic saturates
const maxLoad = time.Duration(math.MaxInt64)

// BacklogLoad is the time a worker needs to drain its backlog. The sum
// saturates at the largest Duration instead of wrapping.
func (c CostModel) BacklogLoad(w Worker) time.Duration {
	var load time.Duration
	for _, t := range w.Backlog.tasks {
		load = addLoad(load, c.taskLoad(t.ID.Cost()))
	}
	return load
}

func (c CostModel) taskLoad(units int) time.Duration {
	if units <= 0 || c.TaskCost <= 0 {
		return 0
	}
	if int64(units) > int64(maxLoad/c.TaskCost) {
		return maxLoad
	}
	return c.TaskCost * time.Duration(units)
}

// addLoad adds two non-negative durations, saturating at maxLoad
func addLoad(a, b time.Duration) time.Duration {
	if b > maxLoad-a {
		return maxLoad
	}
	return a + b
}

// ProjectedCost is the expected wait before a task of env appended to the
// worker's backlog would start executing
func (c CostModel) ProjectedCost(w Worker, env types.Environment) time.Duration {
	cost := c.BacklogLoad(w)
	if w.Environment != env {
		cost = addLoad(cost, c.ReloadCost)
	}
	return cost
}
