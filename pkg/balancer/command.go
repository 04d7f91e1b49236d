package balancer

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/ember/pkg/types"
)

// Op names a scheduler transition
type Op string

const (
	OpSubmit       Op = "submit"
	OpComplete     Op = "complete"
	OpCancel       Op = "cancel"
	OpAddWorker    Op = "add_worker"
	OpRemoveWorker Op = "remove_worker"
	OpUpdateState  Op = "update_state"
)

// Command is a serialisable request for one transition. Commands let the
// same transitions be driven by a local owner goroutine or replayed from a
// replicated log.
type Command struct {
	Op          Op                `json:"op"`
	Task        *types.Task       `json:"task,omitempty"`
	Worker      types.WorkerID    `json:"worker,omitempty"`
	TaskID      *types.TaskRef    `json:"task_id,omitempty"`
	Environment types.Environment `json:"environment"`
	State       *types.StateRef   `json:"state,omitempty"`
}

// Result carries the output of an applied command
type Result struct {
	Assignment *Assignment
	Orphans    []types.Task
}

// SubmitCommand places task
func SubmitCommand(task types.Task) Command {
	return Command{Op: OpSubmit, Task: &task}
}

// CompleteCommand retires a finished task from worker
func CompleteCommand(worker types.WorkerID, id types.TaskID) Command {
	ref := types.RefOf(id)
	return Command{Op: OpComplete, Worker: worker, TaskID: &ref}
}

// CancelCommand retires an abandoned task from worker
func CancelCommand(worker types.WorkerID, id types.TaskID) Command {
	ref := types.RefOf(id)
	return Command{Op: OpCancel, Worker: worker, TaskID: &ref}
}

// AddWorkerCommand registers a worker warmed with env
func AddWorkerCommand(id types.WorkerID, env types.Environment, state types.WorkerState) Command {
	ref := types.StateRefOf(state)
	return Command{Op: OpAddWorker, Worker: id, Environment: env, State: &ref}
}

// RemoveWorkerCommand drops a worker; its backlog comes back as orphans
func RemoveWorkerCommand(id types.WorkerID) Command {
	return Command{Op: OpRemoveWorker, Worker: id}
}

// UpdateStateCommand replaces a worker's readiness state
func UpdateStateCommand(id types.WorkerID, state types.WorkerState) Command {
	ref := types.StateRefOf(state)
	return Command{Op: OpUpdateState, Worker: id, State: &ref}
}

// Encode serialises the command for a replicated log
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeCommand parses a command written by Encode
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	if err := json.Unmarshal(data, &c); err != nil {
		return Command{}, fmt.Errorf("failed to unmarshal command: %w", err)
	}
	return c, nil
}

// Apply performs the transition named by the command
func (s Scheduler) Apply(cmd Command) (Result, Scheduler, error) {
	switch cmd.Op {
	case OpSubmit:
		if cmd.Task == nil {
			return Result{}, s, fmt.Errorf("%w: submit without task", ErrInvalidTask)
		}
		a, next, err := s.Submit(*cmd.Task)
		if err != nil {
			return Result{}, s, err
		}
		return Result{Assignment: &a}, next, nil

	case OpComplete, OpCancel:
		if cmd.TaskID == nil {
			return Result{}, s, fmt.Errorf("%w: %s without task id", ErrInvalidTask, cmd.Op)
		}
		id, err := cmd.TaskID.TaskID()
		if err != nil {
			return Result{}, s, fmt.Errorf("%w: %v", ErrInvalidTask, err)
		}
		next, err := s.Complete(cmd.Worker, id)
		return Result{}, next, err

	case OpAddWorker:
		state, err := stateOf(cmd)
		if err != nil {
			return Result{}, s, err
		}
		next, err := s.AddWorker(cmd.Worker, cmd.Environment, state)
		return Result{}, next, err

	case OpRemoveWorker:
		orphans, next, err := s.RemoveWorker(cmd.Worker)
		return Result{Orphans: orphans}, next, err

	case OpUpdateState:
		state, err := stateOf(cmd)
		if err != nil {
			return Result{}, s, err
		}
		next, err := s.UpdateState(cmd.Worker, state)
		return Result{}, next, err

	default:
		return Result{}, s, fmt.Errorf("unknown command: %q", cmd.Op)
	}
}

func stateOf(cmd Command) (types.WorkerState, error) {
	if cmd.State == nil {
		return nil, fmt.Errorf("%s without state", cmd.Op)
	}
	return cmd.State.WorkerState()
}
