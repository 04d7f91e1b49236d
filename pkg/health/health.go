package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/ember/pkg/types"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeExec CheckType = "exec"
	CheckTypeGRPC CheckType = "grpc"
)

// Result represents the outcome of a health check
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface that all health checkers must implement
type Checker interface {
	// Check performs the health check and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of health check
	Type() CheckType
}

// Spec describes how to probe one worker
type Spec struct {
	Type CheckType `yaml:"type" toml:"type" json:"type"`
	// Target is a URL for http checks and host:port for tcp and grpc checks
	Target  string   `yaml:"target,omitempty" toml:"target" json:"target,omitempty"`
	Command []string `yaml:"command,omitempty" toml:"command" json:"command,omitempty"`
	// Expect is text an http check requires in the response body
	Expect string `yaml:"expect,omitempty" toml:"expect" json:"expect,omitempty"`
	// Service is the grpc health service name to query
	Service string `yaml:"service,omitempty" toml:"service" json:"service,omitempty"`
	Config  `yaml:",inline"`
}

// Config contains common configuration for all health checks
type Config struct {
	// Interval is the time between health checks
	Interval time.Duration `yaml:"interval" toml:"interval" json:"interval"`

	// Timeout is the maximum time to wait for a health check to complete
	Timeout time.Duration `yaml:"timeout" toml:"timeout" json:"timeout"`

	// Retries is the number of consecutive failures before marking as unhealthy
	Retries int `yaml:"retries" toml:"retries" json:"retries"`

	// StartPeriod is a grace period during which failures are not counted
	StartPeriod time.Duration `yaml:"start_period" toml:"start_period" json:"start_period"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: 10 * time.Second,
		Timeout:  5 * time.Second,
		Retries:  3,
	}
}

// WithDefaults fills zero fields from DefaultConfig
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Retries <= 0 {
		c.Retries = d.Retries
	}
	return c
}

// NewChecker builds the checker described by spec
func NewChecker(spec Spec) (Checker, error) {
	cfg := spec.Config.WithDefaults()

	switch spec.Type {
	case CheckTypeHTTP:
		if spec.Target == "" {
			return nil, fmt.Errorf("http check requires a target URL")
		}
		return NewHTTPChecker(spec.Target).WithExpect(spec.Expect).WithTimeout(cfg.Timeout), nil
	case CheckTypeTCP:
		if spec.Target == "" {
			return nil, fmt.Errorf("tcp check requires a target address")
		}
		return NewTCPChecker(spec.Target).WithTimeout(cfg.Timeout), nil
	case CheckTypeExec:
		if len(spec.Command) == 0 {
			return nil, fmt.Errorf("exec check requires a command")
		}
		return NewExecChecker(spec.Command).WithTimeout(cfg.Timeout), nil
	case CheckTypeGRPC:
		if spec.Target == "" {
			return nil, fmt.Errorf("grpc check requires a target address")
		}
		return NewGRPCChecker(spec.Target).WithService(spec.Service).WithTimeout(cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown check type: %q", spec.Type)
	}
}

// Status tracks the probe history of one worker
type Status struct {
	// ConsecutiveFailures tracks the number of consecutive failed checks
	ConsecutiveFailures int

	// ConsecutiveSuccesses tracks the number of consecutive successful checks
	ConsecutiveSuccesses int

	// LastCheck is the timestamp of the last health check
	LastCheck time.Time

	// LastResult is the result of the last health check
	LastResult Result

	// Healthy is false until the first successful check
	Healthy bool

	// StartedAt is when health monitoring started for this worker
	StartedAt time.Time
}

// NewStatus creates a new Status with default values
func NewStatus() *Status {
	return &Status{StartedAt: time.Now()}
}

// Update folds a new result into the status and reports whether Healthy
// changed
func (s *Status) Update(result Result, config Config) bool {
	before := s.Healthy
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return before != s.Healthy
	}

	s.ConsecutiveSuccesses = 0
	if s.InStartPeriod(config) {
		return false
	}
	s.ConsecutiveFailures++
	if s.ConsecutiveFailures >= config.Retries {
		s.Healthy = false
	}
	return before != s.Healthy
}

// InStartPeriod returns true if we're still in the startup grace period
func (s *Status) InStartPeriod(config Config) bool {
	if config.StartPeriod == 0 {
		return false
	}
	return time.Since(s.StartedAt) < config.StartPeriod
}

// ProbeState converts the status into the worker state the scheduler keeps
func (s *Status) ProbeState() types.ProbeState {
	return types.ProbeState{
		Healthy:             s.Healthy,
		Message:             s.LastResult.Message,
		CheckedAt:           s.LastCheck,
		ConsecutiveFailures: s.ConsecutiveFailures,
	}
}
