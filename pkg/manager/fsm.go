package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/hashicorp/raft"
)

// SchedulerFSM implements the Raft finite state machine over a
// balancer.Scheduler. Every node applies the same log, so every node ends
// up holding the same scheduler value.
type SchedulerFSM struct {
	mu     sync.RWMutex
	state  balancer.Scheduler
	policy balancer.Policy
}

// applyResponse is what Apply hands back to the proposing node
type applyResponse struct {
	Result balancer.Result
	Err    error
}

// NewSchedulerFSM creates an FSM holding initial. policy is used again
// when a snapshot is restored.
func NewSchedulerFSM(initial balancer.Scheduler, policy balancer.Policy) *SchedulerFSM {
	return &SchedulerFSM{state: initial, policy: policy}
}

// Apply applies a Raft log entry. Rejected transitions leave the state
// untouched and return the error to the proposer.
func (f *SchedulerFSM) Apply(l *raft.Log) interface{} {
	cmd, err := balancer.DecodeCommand(l.Data)
	if err != nil {
		return &applyResponse{Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	res, next, err := f.state.Apply(cmd)
	if err != nil {
		return &applyResponse{Err: err}
	}
	f.state = next
	return &applyResponse{Result: res}
}

// State returns the scheduler as of the last applied entry
func (f *SchedulerFSM) State() balancer.Scheduler {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Snapshot captures the current scheduler. The value is immutable, so the
// snapshot can be persisted while Apply keeps running.
func (f *SchedulerFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &schedulerSnapshot{snap: f.State().Snapshot()}, nil
}

// Restore replaces the state with a snapshot written by Persist
func (f *SchedulerFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap balancer.Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	s, err := balancer.Restore(snap, f.policy)
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}

	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	return nil
}

type schedulerSnapshot struct {
	snap balancer.Snapshot
}

// Persist writes the snapshot to the sink
func (s *schedulerSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.snap); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
		return err
	}
	return nil
}

// Release is a no-op
func (s *schedulerSnapshot) Release() {}
