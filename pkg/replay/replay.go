package replay

import (
	"fmt"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/types"
)

// Decision is one placed task
type Decision struct {
	Step        int           `json:"step" yaml:"step"`
	TaskID      string        `json:"task_id" yaml:"task_id"`
	Origin      string        `json:"origin" yaml:"origin"`
	Environment string        `json:"environment" yaml:"environment"`
	Worker      string        `json:"worker" yaml:"worker"`
	Reason      string        `json:"reason" yaml:"reason"`
	Reload      bool          `json:"reload" yaml:"reload"`
	Wait        time.Duration `json:"wait" yaml:"wait"`
	// Orphan is set for tasks resubmitted after their worker was removed
	Orphan bool `json:"orphan,omitempty" yaml:"orphan,omitempty"`
}

// Rejection is a task the scheduler refused
type Rejection struct {
	Step   int    `json:"step" yaml:"step"`
	TaskID string `json:"task_id" yaml:"task_id"`
	Error  string `json:"error" yaml:"error"`
}

// Report summarises one replay
type Report struct {
	Policy    string        `json:"policy" yaml:"policy"`
	Decisions []Decision    `json:"decisions" yaml:"decisions"`
	Rejected  []Rejection   `json:"rejected" yaml:"rejected"`
	Reloads   int           `json:"reloads" yaml:"reloads"`
	TotalWait time.Duration `json:"total_wait" yaml:"total_wait"`
	MaxWait   time.Duration `json:"max_wait" yaml:"max_wait"`

	Final balancer.Scheduler `json:"-" yaml:"-"`
}

// MeanWait is the average projected wait per placed task
func (r Report) MeanWait() time.Duration {
	if len(r.Decisions) == 0 {
		return 0
	}
	return r.TotalWait / time.Duration(len(r.Decisions))
}

// Config merges the trace's scheduler settings over base
func (t Trace) Config(base balancer.Config) balancer.Config {
	cfg := base
	if t.Scheduler.HistoryCapacity > 0 {
		cfg.HistoryCapacity = t.Scheduler.HistoryCapacity
	}
	if t.Scheduler.TaskCost > 0 {
		cfg.TaskCost = t.Scheduler.TaskCost
	}
	if t.Scheduler.ReloadCost > 0 {
		cfg.ReloadCost = t.Scheduler.ReloadCost
	}
	return cfg
}

// Run replays the trace with the named policy. Refused submissions are
// reported; any other failing step aborts the replay.
func Run(t Trace, base balancer.Config, policy string) (Report, error) {
	p, err := balancer.PolicyByName(policy)
	if err != nil {
		return Report{}, err
	}
	if policy == "" {
		policy = balancer.PolicyWarmFirst
	}

	cfg := t.Config(base)
	cfg.Policy = p
	s, err := balancer.New(cfg)
	if err != nil {
		return Report{}, err
	}

	r := &runner{state: s, report: Report{Policy: policy}}

	for _, w := range t.Workers {
		if err := r.addWorker(w); err != nil {
			return Report{}, fmt.Errorf("workers: %w", err)
		}
	}
	for i, step := range t.Steps {
		if err := r.apply(i, step); err != nil {
			return Report{}, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	r.report.Final = r.state
	return r.report, nil
}

// Compare replays the trace once per policy
func Compare(t Trace, base balancer.Config, policies ...string) ([]Report, error) {
	if len(policies) == 0 {
		policies = balancer.PolicyNames()
	}
	reports := make([]Report, 0, len(policies))
	for _, name := range policies {
		rep, err := Run(t, base, name)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

type runner struct {
	state  balancer.Scheduler
	report Report
}

func (r *runner) apply(step int, s Step) error {
	switch {
	case s.Submit != nil:
		r.submit(step, s.Submit.task(step), false)
		return nil
	case s.Complete != nil:
		return r.complete(*s.Complete)
	case s.AddWorker != nil:
		return r.addWorker(*s.AddWorker)
	case s.RemoveWorker != "":
		return r.removeWorker(step, types.WorkerID(s.RemoveWorker))
	case s.SetState != nil:
		status, err := types.ParseWorkerStatus(s.SetState.Status)
		if err != nil {
			return err
		}
		next, err := r.state.UpdateState(types.WorkerID(s.SetState.Worker), status)
		if err != nil {
			return err
		}
		r.state = next
		return nil
	default:
		return fmt.Errorf("empty step")
	}
}

func (r *runner) submit(step int, task types.Task, orphan bool) {
	a, next, err := r.state.Submit(task)
	if err != nil {
		r.report.Rejected = append(r.report.Rejected, Rejection{
			Step:   step,
			TaskID: task.ID.String(),
			Error:  err.Error(),
		})
		return
	}
	r.state = next

	r.report.Decisions = append(r.report.Decisions, Decision{
		Step:        step,
		TaskID:      task.ID.String(),
		Origin:      string(task.Origin),
		Environment: task.Environment.String(),
		Worker:      string(a.Worker),
		Reason:      string(a.Reason),
		Reload:      a.Reload,
		Wait:        a.Wait,
		Orphan:      orphan,
	})
	if a.Reload {
		r.report.Reloads++
	}
	r.report.TotalWait += a.Wait
	if a.Wait > r.report.MaxWait {
		r.report.MaxWait = a.Wait
	}
}

func (r *runner) complete(c Complete) error {
	worker := types.WorkerID(c.Worker)
	for _, w := range r.state.Workers() {
		if worker != "" && w.ID != worker {
			continue
		}
		for _, t := range w.Backlog.Tasks() {
			if t.ID.String() != c.ID {
				continue
			}
			next, err := r.state.Complete(w.ID, t.ID)
			if err != nil {
				return err
			}
			r.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s", balancer.ErrTaskNotFound, c.ID)
}

func (r *runner) addWorker(w Worker) error {
	status := types.WorkerStatusReady
	if w.State != "" {
		st, err := types.ParseWorkerStatus(w.State)
		if err != nil {
			return err
		}
		status = st
	}
	next, err := r.state.AddWorker(types.WorkerID(w.ID), w.Environment, status)
	if err != nil {
		return err
	}
	r.state = next
	return nil
}

func (r *runner) removeWorker(step int, id types.WorkerID) error {
	orphans, next, err := r.state.RemoveWorker(id)
	if err != nil {
		return err
	}
	r.state = next
	for _, t := range orphans {
		r.submit(step, t, true)
	}
	return nil
}

func (s Submit) task(step int) types.Task {
	id := s.ID
	if id == "" {
		id = fmt.Sprintf("req-%d", step)
	}
	var tid types.TaskID = types.RunID{Snippet: id}
	if s.Weight > 0 {
		tid = types.WeightedID{ID: id, Weight: s.Weight}
	}
	return types.NewTask(s.Environment, types.ClientAddress(s.Origin), tid)
}
