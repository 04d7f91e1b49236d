package api

import (
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/dispatcher"
	"github.com/cuemby/ember/pkg/types"
)

// SubmitRequest is the body of POST /v1/tasks
type SubmitRequest struct {
	Environment types.Environment `json:"environment"`
	Origin      string            `json:"origin"`
	// ID is generated when empty
	ID     string `json:"id,omitempty"`
	Weight int    `json:"weight,omitempty"`
}

// AssignmentResponse describes where a task was placed
type AssignmentResponse struct {
	TaskID        string `json:"task_id"`
	WorkerID      string `json:"worker_id"`
	Environment   string `json:"environment"`
	Reason        string `json:"reason"`
	Reload        bool   `json:"reload"`
	ProjectedWait string `json:"projected_wait"`
}

// TaskResponse is a queued task
type TaskResponse struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	Cost        int               `json:"cost"`
	Environment types.Environment `json:"environment"`
	Origin      string            `json:"origin"`
}

// WorkerResponse is one worker of the pool
type WorkerResponse struct {
	ID          string            `json:"id"`
	Environment types.Environment `json:"environment"`
	State       types.StateRef    `json:"state"`
	Ready       bool              `json:"ready"`
	Backlog     []TaskResponse    `json:"backlog"`
	BacklogLoad string            `json:"backlog_load"`
}

// AddWorkerRequest is the body of POST /v1/workers
type AddWorkerRequest struct {
	ID          string            `json:"id"`
	Environment types.Environment `json:"environment"`
	// State defaults to starting
	State *types.StateRef `json:"state,omitempty"`
}

// ReassignmentResponse reports the fate of a removed worker's backlog
type ReassignmentResponse struct {
	WorkerID string               `json:"worker_id"`
	Orphans  int                  `json:"orphans"`
	Placed   []AssignmentResponse `json:"placed"`
	Dropped  []TaskResponse       `json:"dropped"`
}

// HistoryResponse lists the retained request records, oldest first
type HistoryResponse struct {
	Capacity int               `json:"capacity"`
	Records  []balancer.Record `json:"records"`
}

// ClusterResponse describes the Raft cluster as seen by this node
type ClusterResponse struct {
	NodeID   string           `json:"node_id"`
	IsLeader bool             `json:"is_leader"`
	Leader   string           `json:"leader"`
	Servers  []ServerResponse `json:"servers"`
}

// ServerResponse is one Raft server
type ServerResponse struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Suffrage string `json:"suffrage"`
}

// JoinRequest asks the leader to add a voter
type JoinRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
	Token   string `json:"token"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func assignmentResponse(a balancer.Assignment) AssignmentResponse {
	return AssignmentResponse{
		TaskID:        a.Task.ID.String(),
		WorkerID:      string(a.Worker),
		Environment:   a.Task.Environment.String(),
		Reason:        string(a.Reason),
		Reload:        a.Reload,
		ProjectedWait: a.Wait.String(),
	}
}

func taskResponse(t types.Task) TaskResponse {
	ref := types.RefOf(t.ID)
	return TaskResponse{
		ID:          ref.ID,
		Kind:        ref.Kind,
		Cost:        t.ID.Cost(),
		Environment: t.Environment,
		Origin:      string(t.Origin),
	}
}

func workerResponse(w balancer.Worker, load time.Duration) WorkerResponse {
	tasks := w.Backlog.Tasks()
	backlog := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		backlog = append(backlog, taskResponse(t))
	}
	return WorkerResponse{
		ID:          string(w.ID),
		Environment: w.Environment,
		State:       types.StateRefOf(w.State),
		Ready:       w.Ready(),
		Backlog:     backlog,
		BacklogLoad: load.String(),
	}
}

func reassignmentResponse(r dispatcher.Reassignment) ReassignmentResponse {
	out := ReassignmentResponse{
		WorkerID: string(r.Worker),
		Orphans:  len(r.Orphans),
		Placed:   make([]AssignmentResponse, 0, len(r.Placed)),
		Dropped:  make([]TaskResponse, 0, len(r.Dropped)),
	}
	for _, a := range r.Placed {
		out.Placed = append(out.Placed, assignmentResponse(a))
	}
	for _, t := range r.Dropped {
		out.Dropped = append(out.Dropped, taskResponse(t))
	}
	return out
}
