package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cuemby/ember/pkg/types"
	"gopkg.in/yaml.v3"
)

// Trace is a recorded sequence of pool changes and requests
type Trace struct {
	Scheduler SchedulerSettings `yaml:"scheduler"`
	Workers   []Worker          `yaml:"workers"`
	Steps     []Step            `yaml:"steps"`
}

// SchedulerSettings overrides the scheduler configuration for a replay.
// Zero fields keep the caller's defaults.
type SchedulerSettings struct {
	HistoryCapacity int           `yaml:"history_capacity"`
	TaskCost        time.Duration `yaml:"task_cost"`
	ReloadCost      time.Duration `yaml:"reload_cost"`
}

// Worker is a worker present when the replay starts or added by a step
type Worker struct {
	ID          string            `yaml:"id"`
	Environment types.Environment `yaml:"environment"`
	// State defaults to ready
	State string `yaml:"state"`
}

// Step is one event of the trace. Exactly one field is set.
type Step struct {
	Submit       *Submit   `yaml:"submit,omitempty"`
	Complete     *Complete `yaml:"complete,omitempty"`
	AddWorker    *Worker   `yaml:"add_worker,omitempty"`
	RemoveWorker string    `yaml:"remove_worker,omitempty"`
	SetState     *SetState `yaml:"set_state,omitempty"`
}

// Submit requests a task
type Submit struct {
	ID          string            `yaml:"id"`
	Origin      string            `yaml:"origin"`
	Environment types.Environment `yaml:"environment"`
	Weight      int               `yaml:"weight"`
}

// Complete retires a task. Worker may be omitted; the task is then looked
// up wherever the replay placed it.
type Complete struct {
	ID     string `yaml:"id"`
	Worker string `yaml:"worker"`
}

// SetState changes a worker's status
type SetState struct {
	Worker string `yaml:"worker"`
	Status string `yaml:"status"`
}

// Load reads a YAML trace from path
func Load(path string) (Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Trace{}, fmt.Errorf("failed to read trace: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a YAML trace and validates its shape
func Parse(r io.Reader) (Trace, error) {
	var t Trace
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return Trace{}, fmt.Errorf("failed to parse trace: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Trace{}, err
	}
	return t, nil
}

// Validate checks that every worker has an id and every step sets exactly
// one action
func (t Trace) Validate() error {
	var errs []error
	for i, w := range t.Workers {
		if w.ID == "" {
			errs = append(errs, fmt.Errorf("workers[%d]: id is required", i))
		}
	}
	for i, s := range t.Steps {
		n := 0
		if s.Submit != nil {
			n++
			if s.Submit.Environment.Target == "" {
				errs = append(errs, fmt.Errorf("steps[%d]: submit needs an environment target", i))
			}
		}
		if s.Complete != nil {
			n++
			if s.Complete.ID == "" {
				errs = append(errs, fmt.Errorf("steps[%d]: complete needs an id", i))
			}
		}
		if s.AddWorker != nil {
			n++
			if s.AddWorker.ID == "" {
				errs = append(errs, fmt.Errorf("steps[%d]: add_worker needs an id", i))
			}
		}
		if s.RemoveWorker != "" {
			n++
		}
		if s.SetState != nil {
			n++
		}
		if n != 1 {
			errs = append(errs, fmt.Errorf("steps[%d]: expected exactly one action, got %d", i, n))
		}
	}
	return errors.Join(errs...)
}
