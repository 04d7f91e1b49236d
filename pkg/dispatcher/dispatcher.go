package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/events"
	"github.com/cuemby/ember/pkg/log"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/cuemby/ember/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Dispatcher is the entry point for everything that changes the worker pool.
// It builds tasks, commits transitions and reports them through logs,
// metrics and events.
type Dispatcher struct {
	committer Committer
	broker    *events.Broker
	logger    zerolog.Logger
	newID     func() string
	maxWeight int
}

// DefaultMaxWeight caps task weights unless WithMaxWeight says otherwise
const DefaultMaxWeight = 1000

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithBroker publishes an event for every committed transition
func WithBroker(b *events.Broker) Option {
	return func(d *Dispatcher) { d.broker = b }
}

// WithIDGenerator replaces the uuid task id generator
func WithIDGenerator(f func() string) Option {
	return func(d *Dispatcher) { d.newID = f }
}

// WithMaxWeight rejects submissions weighing more than max. Values below one
// keep the default.
func WithMaxWeight(max int) Option {
	return func(d *Dispatcher) {
		if max >= 1 {
			d.maxWeight = max
		}
	}
}

// New creates a dispatcher on top of c
func New(c Committer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		committer: c,
		logger:    log.WithComponent("dispatcher"),
		newID:     uuid.NewString,
		maxWeight: DefaultMaxWeight,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SubmitRequest asks for one snippet run to be placed
type SubmitRequest struct {
	Environment types.Environment
	Origin      types.ClientAddress
	// ID is optional; a uuid is generated when empty
	ID string
	// Weight greater than zero makes a weighted task of that cost
	Weight int
}

// Reassignment reports what happened to the backlog of a removed worker
type Reassignment struct {
	Worker  types.WorkerID
	Orphans []types.Task
	Placed  []balancer.Assignment
	Dropped []types.Task
}

// NewTask builds the task for req
func (d *Dispatcher) NewTask(req SubmitRequest) (types.Task, error) {
	if req.Environment.Target == "" {
		return types.Task{}, fmt.Errorf("%w: environment target is required", balancer.ErrInvalidTask)
	}
	if req.Weight < 0 {
		return types.Task{}, fmt.Errorf("%w: negative weight %d", balancer.ErrInvalidTask, req.Weight)
	}
	if req.Weight > d.maxWeight {
		return types.Task{}, fmt.Errorf("%w: weight %d exceeds maximum %d", balancer.ErrInvalidTask, req.Weight, d.maxWeight)
	}

	id := req.ID
	if id == "" {
		id = d.newID()
	}

	var tid types.TaskID = types.RunID{Snippet: id}
	if req.Weight > 0 {
		tid = types.WeightedID{ID: id, Weight: req.Weight}
	}
	return types.NewTask(req.Environment, req.Origin, tid), nil
}

// Submit builds a task and places it
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (balancer.Assignment, error) {
	task, err := d.NewTask(req)
	if err != nil {
		metrics.SchedulingErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
		return balancer.Assignment{}, err
	}
	return d.SubmitTask(ctx, task)
}

// SubmitTask places an already built task
func (d *Dispatcher) SubmitTask(ctx context.Context, task types.Task) (balancer.Assignment, error) {
	timer := metrics.NewTimer()
	res, err := d.committer.Commit(ctx, balancer.SubmitCommand(task))
	timer.ObserveDuration(metrics.SchedulingLatency)

	if err == nil && res.Assignment == nil {
		err = fmt.Errorf("submit committed without an assignment")
	}
	if err != nil {
		d.rejected(task, err)
		return balancer.Assignment{}, err
	}

	a := *res.Assignment
	metrics.SubmissionsTotal.WithLabelValues(string(a.Reason)).Inc()
	if a.Reload {
		metrics.ReloadsTotal.Inc()
	}

	d.logger.Info().
		Str("task_id", a.Task.ID.String()).
		Str("worker_id", string(a.Worker)).
		Str("environment", a.Task.Environment.String()).
		Str("origin", string(a.Task.Origin)).
		Str("reason", string(a.Reason)).
		Bool("reload", a.Reload).
		Dur("projected_wait", a.Wait).
		Msg("task assigned")

	d.publish(&events.Event{
		Type:     events.EventTaskAssigned,
		WorkerID: string(a.Worker),
		TaskID:   a.Task.ID.String(),
		Message:  fmt.Sprintf("assigned to %s (%s)", a.Worker, a.Reason),
		Metadata: map[string]string{
			"reason":         string(a.Reason),
			"reload":         strconv.FormatBool(a.Reload),
			"projected_wait": a.Wait.String(),
			"environment":    a.Task.Environment.String(),
			"origin":         string(a.Task.Origin),
		},
	})

	d.observe(ctx)
	return a, nil
}

func (d *Dispatcher) rejected(task types.Task, err error) {
	kind := ErrorKind(err)
	metrics.SchedulingErrorsTotal.WithLabelValues(kind).Inc()

	id := ""
	if task.ID != nil {
		id = task.ID.String()
	}
	d.logger.Warn().
		Err(err).
		Str("task_id", id).
		Str("environment", task.Environment.String()).
		Str("kind", kind).
		Msg("task rejected")

	d.publish(&events.Event{
		Type:    events.EventTaskRejected,
		TaskID:  id,
		Message: err.Error(),
		Metadata: map[string]string{
			"kind": kind,
		},
	})
}

// Complete retires a task that finished on worker
func (d *Dispatcher) Complete(ctx context.Context, worker types.WorkerID, id types.TaskID) error {
	return d.retire(ctx, worker, id, false)
}

// Cancel retires a task that was abandoned
func (d *Dispatcher) Cancel(ctx context.Context, worker types.WorkerID, id types.TaskID) error {
	return d.retire(ctx, worker, id, true)
}

func (d *Dispatcher) retire(ctx context.Context, worker types.WorkerID, id types.TaskID, cancelled bool) error {
	cmd := balancer.CompleteCommand(worker, id)
	outcome, event := "completed", events.EventTaskCompleted
	if cancelled {
		cmd = balancer.CancelCommand(worker, id)
		outcome, event = "cancelled", events.EventTaskCancelled
	}

	if _, err := d.committer.Commit(ctx, cmd); err != nil {
		metrics.SchedulingErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
		return err
	}

	metrics.CompletionsTotal.WithLabelValues(outcome).Inc()
	logger := log.ForTask("dispatcher", worker, id)
	logger.Debug().Str("outcome", outcome).Msg("task retired")
	d.publish(&events.Event{Type: event, WorkerID: string(worker), TaskID: id.String()})

	d.observe(ctx)
	return nil
}

// AddWorker registers a worker
func (d *Dispatcher) AddWorker(ctx context.Context, id types.WorkerID, env types.Environment, state types.WorkerState) error {
	if id == "" {
		return fmt.Errorf("worker id is required")
	}
	if state == nil {
		state = types.WorkerStatusStarting
	}

	if _, err := d.committer.Commit(ctx, balancer.AddWorkerCommand(id, env, state)); err != nil {
		metrics.SchedulingErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
		return err
	}

	d.logger.Info().
		Str("worker_id", string(id)).
		Str("environment", env.String()).
		Str("state", state.String()).
		Msg("worker added")
	d.publish(&events.Event{
		Type:     events.EventWorkerAdded,
		WorkerID: string(id),
		Metadata: map[string]string{"environment": env.String(), "state": state.String()},
	})

	d.observe(ctx)
	return nil
}

// EnsureWorker adds the worker unless one with the same id exists. It
// reports whether the worker was added.
func (d *Dispatcher) EnsureWorker(ctx context.Context, id types.WorkerID, env types.Environment, state types.WorkerState) (bool, error) {
	err := d.AddWorker(ctx, id, env, state)
	if errors.Is(err, balancer.ErrDuplicateWorkerID) {
		return false, nil
	}
	return err == nil, err
}

// RemoveWorker drops a worker and resubmits its backlog, one task at a
// time in the order it was queued. Tasks that cannot be placed are
// reported in Dropped.
func (d *Dispatcher) RemoveWorker(ctx context.Context, id types.WorkerID) (Reassignment, error) {
	res, err := d.committer.Commit(ctx, balancer.RemoveWorkerCommand(id))
	if err != nil {
		metrics.SchedulingErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
		return Reassignment{}, err
	}

	d.logger.Info().
		Str("worker_id", string(id)).
		Int("orphans", len(res.Orphans)).
		Msg("worker removed")
	d.publish(&events.Event{
		Type:     events.EventWorkerRemoved,
		WorkerID: string(id),
		Metadata: map[string]string{"orphans": strconv.Itoa(len(res.Orphans))},
	})

	out := Reassignment{Worker: id, Orphans: res.Orphans}
	for _, task := range res.Orphans {
		d.publish(&events.Event{Type: events.EventTaskOrphaned, WorkerID: string(id), TaskID: task.ID.String()})

		a, err := d.SubmitTask(ctx, task)
		if err != nil {
			metrics.OrphansTotal.WithLabelValues("dropped").Inc()
			d.logger.Warn().Err(err).Str("task_id", task.ID.String()).Msg("orphaned task dropped")
			d.publish(&events.Event{Type: events.EventTaskDropped, TaskID: task.ID.String(), Message: err.Error()})
			out.Dropped = append(out.Dropped, task)
			continue
		}
		metrics.OrphansTotal.WithLabelValues("resubmitted").Inc()
		out.Placed = append(out.Placed, a)
	}

	d.observe(ctx)
	return out, nil
}

// UpdateState replaces a worker's reported state
func (d *Dispatcher) UpdateState(ctx context.Context, id types.WorkerID, state types.WorkerState) error {
	if state == nil {
		return fmt.Errorf("worker %s: state is required", id)
	}
	if _, err := d.committer.Commit(ctx, balancer.UpdateStateCommand(id, state)); err != nil {
		metrics.SchedulingErrorsTotal.WithLabelValues(ErrorKind(err)).Inc()
		return err
	}

	d.logger.Info().
		Str("worker_id", string(id)).
		Str("state", state.String()).
		Bool("ready", state.Ready()).
		Msg("worker state updated")
	d.publish(&events.Event{
		Type:     events.EventWorkerState,
		WorkerID: string(id),
		Message:  state.String(),
		Metadata: map[string]string{"ready": strconv.FormatBool(state.Ready())},
	})

	d.observe(ctx)
	return nil
}

// Lookup finds the id of a task queued on worker by its string form
func (d *Dispatcher) Lookup(ctx context.Context, worker types.WorkerID, name string) (types.TaskID, error) {
	s, err := d.committer.State(ctx)
	if err != nil {
		return nil, err
	}
	w, ok := s.Worker(worker)
	if !ok {
		return nil, fmt.Errorf("%w: %s", balancer.ErrWorkerNotFound, worker)
	}
	for _, t := range w.Backlog.Tasks() {
		if t.ID.String() == name {
			return t.ID, nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", balancer.ErrTaskNotFound, name, worker)
}

// State returns the current scheduler value
func (d *Dispatcher) State(ctx context.Context) (balancer.Scheduler, error) {
	return d.committer.State(ctx)
}

// Workers returns the pool in scheduling order
func (d *Dispatcher) Workers(ctx context.Context) ([]balancer.Worker, error) {
	s, err := d.committer.State(ctx)
	if err != nil {
		return nil, err
	}
	return s.Workers(), nil
}

// History returns the retained request records, oldest first
func (d *Dispatcher) History(ctx context.Context) ([]balancer.Record, error) {
	s, err := d.committer.State(ctx)
	if err != nil {
		return nil, err
	}
	return s.History().Records(), nil
}

func (d *Dispatcher) publish(e *events.Event) {
	if d.broker != nil {
		d.broker.Publish(e)
	}
}

func (d *Dispatcher) observe(ctx context.Context) {
	s, err := d.committer.State(ctx)
	if err != nil {
		return
	}
	metrics.ObserveScheduler(s)
}

// ErrorKind maps an error to the label used in metrics and API responses
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, balancer.ErrNoWorkerAvailable):
		return "no_worker"
	case errors.Is(err, balancer.ErrDuplicateTaskID):
		return "duplicate_task"
	case errors.Is(err, balancer.ErrDuplicateWorkerID):
		return "duplicate_worker"
	case errors.Is(err, balancer.ErrWorkerNotFound):
		return "worker_not_found"
	case errors.Is(err, balancer.ErrTaskNotFound):
		return "task_not_found"
	case errors.Is(err, balancer.ErrInvalidTask):
		return "invalid_task"
	case errors.Is(err, balancer.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, ErrNotLeader):
		return "not_leader"
	case errors.Is(err, ErrStopped), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "unavailable"
	default:
		return "internal"
	}
}
