package balancer

import (
	"fmt"
	"sort"

	"github.com/cuemby/ember/pkg/types"
)

// Reason explains why a worker was chosen
type Reason string

const (
	// ReasonWarm: the worker was already warmed with the task's environment
	ReasonWarm Reason = "warm"
	// ReasonAffinity: the worker is idle and warmed with the environment the
	// same client used last
	ReasonAffinity Reason = "affinity"
	// ReasonLeastCost: the worker had the lowest projected wait including
	// any reload
	ReasonLeastCost Reason = "least-cost"
)

// Decision is the outcome of a Policy: an index into the worker slice
type Decision struct {
	Index  int
	Reason Reason
}

// Policy picks the worker for a task. It must be a pure function of its
// arguments and return ok=false only when no worker is ready.
type Policy func(workers []Worker, history History, cost CostModel, task types.Task) (d Decision, ok bool)

// Policy names accepted by PolicyByName
const (
	PolicyWarmFirst = "warm-first"
	PolicyLeastCost = "least-cost"
)

var policies = map[string]Policy{
	PolicyWarmFirst: WarmFirst,
	PolicyLeastCost: LeastCost,
}

// PolicyByName resolves a configured policy name. The empty name selects
// WarmFirst.
func PolicyByName(name string) (Policy, error) {
	if name == "" {
		return WarmFirst, nil
	}
	p, ok := policies[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown policy %q (known: %v)", ErrInvalidConfig, name, PolicyNames())
	}
	return p, nil
}

// PolicyNames lists the registered policies
func PolicyNames() []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WarmFirst is the default policy:
//
//  1. among ready workers warmed with the task's environment, the one with
//     the smallest backlog load
//  2. otherwise an idle ready worker warmed with the environment the same
//     origin requested last
//  3. otherwise the ready worker with the smallest projected cost
//
// Ties always go to the lowest index.
func WarmFirst(workers []Worker, history History, cost CostModel, task types.Task) (Decision, bool) {
	best := -1
	var bestLoad int64
	anyReady := false

	for i, w := range workers {
		if !w.Ready() {
			continue
		}
		anyReady = true
		if w.Environment != task.Environment {
			continue
		}
		load := int64(cost.BacklogLoad(w))
		if best < 0 || load < bestLoad {
			best, bestLoad = i, load
		}
	}

	if !anyReady {
		return Decision{}, false
	}
	if best >= 0 {
		return Decision{Index: best, Reason: ReasonWarm}, true
	}

	if env, ok := history.MostRecentFor(task.Origin); ok {
		for i, w := range workers {
			if w.Ready() && w.Environment == env && cost.BacklogLoad(w) == 0 {
				return Decision{Index: i, Reason: ReasonAffinity}, true
			}
		}
	}

	return LeastCost(workers, history, cost, task)
}

// LeastCost ignores warm matches and history and picks the ready worker with
// the smallest projected cost. Reload cost is still priced in, so a warm
// worker wins whenever its backlog is short enough.
func LeastCost(workers []Worker, _ History, cost CostModel, task types.Task) (Decision, bool) {
	best := -1
	var bestCost int64

	for i, w := range workers {
		if !w.Ready() {
			continue
		}
		c := int64(cost.ProjectedCost(w, task.Environment))
		if best < 0 || c < bestCost {
			best, bestCost = i, c
		}
	}

	if best < 0 {
		return Decision{}, false
	}
	return Decision{Index: best, Reason: ReasonLeastCost}, true
}
