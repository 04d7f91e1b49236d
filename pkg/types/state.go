package types

import (
	"fmt"
	"time"
)

// WorkerState is the supervisor's view of a worker process. The scheduler
// only asks whether the worker can take work.
type WorkerState interface {
	Ready() bool
	String() string
}

// WorkerStatus is the lifecycle state reported by the process supervisor
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusReady    WorkerStatus = "ready"
	WorkerStatusDraining WorkerStatus = "draining"
	WorkerStatusDown     WorkerStatus = "down"
)

// Ready is true only for WorkerStatusReady
func (s WorkerStatus) Ready() bool { return s == WorkerStatusReady }

func (s WorkerStatus) String() string { return string(s) }

// ParseWorkerStatus validates a status string
func ParseWorkerStatus(s string) (WorkerStatus, error) {
	switch st := WorkerStatus(s); st {
	case WorkerStatusStarting, WorkerStatusReady, WorkerStatusDraining, WorkerStatusDown:
		return st, nil
	default:
		return "", fmt.Errorf("unknown worker status: %q", s)
	}
}

// ProbeState is the outcome of health probing a worker
type ProbeState struct {
	Healthy             bool
	Message             string
	CheckedAt           time.Time
	ConsecutiveFailures int
}

// Ready mirrors the probe result
func (p ProbeState) Ready() bool { return p.Healthy }

func (p ProbeState) String() string {
	if p.Healthy {
		return "healthy"
	}
	return fmt.Sprintf("unhealthy (%d failures)", p.ConsecutiveFailures)
}

// Worker state kinds in wire form
const (
	StateKindStatus = "status"
	StateKindProbe  = "probe"
)

// StateRef is the serialisable form of a WorkerState
type StateRef struct {
	Kind                string    `json:"kind"`
	Status              string    `json:"status,omitempty"`
	Healthy             bool      `json:"healthy,omitempty"`
	Message             string    `json:"message,omitempty"`
	CheckedAt           time.Time `json:"checked_at,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures,omitempty"`
}

// StateRefOf converts a WorkerState to its wire form. States of unknown
// types are flattened to a status carrying only readiness.
func StateRefOf(s WorkerState) StateRef {
	switch v := s.(type) {
	case WorkerStatus:
		return StateRef{Kind: StateKindStatus, Status: string(v)}
	case ProbeState:
		return StateRef{
			Kind:                StateKindProbe,
			Healthy:             v.Healthy,
			Message:             v.Message,
			CheckedAt:           v.CheckedAt,
			ConsecutiveFailures: v.ConsecutiveFailures,
		}
	case nil:
		return StateRef{Kind: StateKindStatus, Status: string(WorkerStatusDown)}
	default:
		if s.Ready() {
			return StateRef{Kind: StateKindStatus, Status: string(WorkerStatusReady)}
		}
		return StateRef{Kind: StateKindStatus, Status: string(WorkerStatusDown)}
	}
}

// WorkerState converts the wire form back to a WorkerState
func (r StateRef) WorkerState() (WorkerState, error) {
	switch r.Kind {
	case StateKindStatus, "":
		return ParseWorkerStatus(r.Status)
	case StateKindProbe:
		return ProbeState{
			Healthy:             r.Healthy,
			Message:             r.Message,
			CheckedAt:           r.CheckedAt,
			ConsecutiveFailures: r.ConsecutiveFailures,
		}, nil
	default:
		return nil, fmt.Errorf("unknown worker state kind: %s", r.Kind)
	}
}
