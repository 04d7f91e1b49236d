package types

import (
	"encoding/json"
	"fmt"
)

// Environment is the configuration a worker is warmed with: the toolchain
// target plus the canonical build settings of the snippet. Two environments
// are the same only when both fields are equal.
type Environment struct {
	Target   string `json:"target" yaml:"target" toml:"target"`
	Settings string `json:"settings" yaml:"settings" toml:"settings"`
}

// String returns a compact label for logs and metrics
func (e Environment) String() string {
	if e.Settings == "" {
		return e.Target
	}
	return e.Target + "/" + e.Settings
}

// IsZero reports whether the environment is unset
func (e Environment) IsZero() bool {
	return e == Environment{}
}

// ClientAddress identifies the origin of a request
type ClientAddress string

// WorkerID identifies a worker process for its whole lifetime
type WorkerID string

// Task is one unit of submitted work
type Task struct {
	Environment Environment
	Origin      ClientAddress
	ID          TaskID
}

// NewTask creates a task
func NewTask(env Environment, origin ClientAddress, id TaskID) Task {
	return Task{Environment: env, Origin: origin, ID: id}
}

type taskJSON struct {
	Environment Environment   `json:"environment"`
	Origin      ClientAddress `json:"origin"`
	ID          TaskRef       `json:"id"`
}

// MarshalJSON encodes the task with its identifier in wire form
func (t Task) MarshalJSON() ([]byte, error) {
	if t.ID == nil {
		return nil, fmt.Errorf("task has no id")
	}
	return json.Marshal(taskJSON{
		Environment: t.Environment,
		Origin:      t.Origin,
		ID:          RefOf(t.ID),
	})
}

// UnmarshalJSON decodes a task written by MarshalJSON
func (t *Task) UnmarshalJSON(data []byte) error {
	var raw taskJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := raw.ID.TaskID()
	if err != nil {
		return err
	}
	*t = Task{Environment: raw.Environment, Origin: raw.Origin, ID: id}
	return nil
}
