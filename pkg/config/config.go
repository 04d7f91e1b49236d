package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/health"
	"github.com/cuemby/ember/pkg/types"
	"gopkg.in/yaml.v3"
)

// Storage drivers
const (
	DriverNone   = "none"
	DriverBolt   = "bolt"
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config holds all server configuration
type Config struct {
	Scheduler  SchedulerConfig  `yaml:"scheduler" toml:"scheduler"`
	API        APIConfig        `yaml:"api" toml:"api"`
	Log        LogConfig        `yaml:"log" toml:"log"`
	Storage    StorageConfig    `yaml:"storage" toml:"storage"`
	Raft       RaftConfig       `yaml:"raft" toml:"raft"`
	Supervisor SupervisorConfig `yaml:"supervisor" toml:"supervisor"`
	Workers    []WorkerConfig   `yaml:"workers" toml:"workers"`
}

// SchedulerConfig sets the cost model and policy
type SchedulerConfig struct {
	HistoryCapacity int           `yaml:"history_capacity" toml:"history_capacity"`
	TaskCost        time.Duration `yaml:"task_cost" toml:"task_cost"`
	ReloadCost      time.Duration `yaml:"reload_cost" toml:"reload_cost"`
	Policy          string        `yaml:"policy" toml:"policy"`
	// MaxTaskWeight caps the weight a submission may carry
	MaxTaskWeight int `yaml:"max_task_weight" toml:"max_task_weight"`
}

// APIConfig controls the HTTP and gRPC listeners
type APIConfig struct {
	HTTPAddr    string   `yaml:"http_addr" toml:"http_addr"`
	GRPCAddr    string   `yaml:"grpc_addr" toml:"grpc_addr"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
	// RateLimit throttles task submissions per client address
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
	// AllowedIPs and DeniedIPs take single addresses or CIDR ranges. Deny
	// wins; an empty allow list admits everyone not denied.
	AllowedIPs []string `yaml:"allowed_ips" toml:"allowed_ips"`
	DeniedIPs  []string `yaml:"denied_ips" toml:"denied_ips"`
	// TrustedProxies are the peers whose X-Forwarded-For and X-Real-IP
	// headers are believed. Other peers are identified by their own address.
	TrustedProxies []string `yaml:"trusted_proxies" toml:"trusted_proxies"`
}

// RateLimitConfig is a token bucket. Zero RequestsPerSecond disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int     `yaml:"burst" toml:"burst"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	JSON  bool   `yaml:"json" toml:"json"`
}

// StorageConfig selects where scheduler snapshots are persisted
type StorageConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	// Path is the database file for bolt and sqlite
	Path string `yaml:"path" toml:"path"`
	// URL is the redis connection string
	URL string `yaml:"url" toml:"url"`
	// Key namespaces the snapshot within a shared store
	Key string `yaml:"key" toml:"key"`
}

// RaftConfig enables replicated scheduling state
type RaftConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	NodeID    string `yaml:"node_id" toml:"node_id"`
	BindAddr  string `yaml:"bind_addr" toml:"bind_addr"`
	DataDir   string `yaml:"data_dir" toml:"data_dir"`
	Bootstrap bool   `yaml:"bootstrap" toml:"bootstrap"`
}

// SupervisorConfig holds probe defaults for workers that do not set their own
type SupervisorConfig struct {
	Defaults health.Config `yaml:"defaults" toml:"defaults"`
}

// WorkerConfig registers a worker at startup
type WorkerConfig struct {
	ID          string            `yaml:"id" toml:"id"`
	Environment types.Environment `yaml:"environment" toml:"environment"`
	// State is the initial status. It defaults to ready, or to starting
	// when a probe is configured.
	State string       `yaml:"state" toml:"state"`
	Probe *health.Spec `yaml:"probe,omitempty" toml:"probe"`
}

// InitialState resolves the configured or implied starting status
func (w WorkerConfig) InitialState() (types.WorkerStatus, error) {
	if w.State == "" {
		if w.Probe != nil {
			return types.WorkerStatusStarting, nil
		}
		return types.WorkerStatusReady, nil
	}
	return types.ParseWorkerStatus(w.State)
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			HistoryCapacity: 64,
			TaskCost:        2 * time.Second,
			ReloadCost:      20 * time.Second,
			Policy:          balancer.PolicyWarmFirst,
			MaxTaskWeight:   1000,
		},
		API: APIConfig{
			HTTPAddr: "127.0.0.1:7070",
			GRPCAddr: "127.0.0.1:7071",
		},
		Log: LogConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			Driver: DriverNone,
			Key:    "ember",
		},
		Raft: RaftConfig{
			BindAddr: "127.0.0.1:7072",
			DataDir:  "./data/raft",
		},
		Supervisor: SupervisorConfig{
			Defaults: health.DefaultConfig(),
		},
	}
}

// Load reads a YAML or TOML file over the defaults. The format is chosen by
// extension: .toml is TOML, anything else is YAML.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	return cfg, cfg.Validate()
}

// Validate checks the whole configuration and reports every problem found
func (c Config) Validate() error {
	var errs []error

	if _, err := c.BalancerConfig(); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage.Driver {
	case "", DriverNone:
	case DriverBolt, DriverSQLite:
		if c.Storage.Path == "" {
			errs = append(errs, fmt.Errorf("storage: %s driver requires path", c.Storage.Driver))
		}
	case DriverRedis:
		if c.Storage.URL == "" {
			errs = append(errs, fmt.Errorf("storage: redis driver requires url"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}

	if c.Raft.Enabled {
		if c.Raft.NodeID == "" {
			errs = append(errs, fmt.Errorf("raft: node_id is required"))
		}
		if c.Raft.BindAddr == "" {
			errs = append(errs, fmt.Errorf("raft: bind_addr is required"))
		}
		if c.Raft.DataDir == "" {
			errs = append(errs, fmt.Errorf("raft: data_dir is required"))
		}
	}

	if c.Scheduler.MaxTaskWeight < 1 {
		errs = append(errs, fmt.Errorf("scheduler: max_task_weight must be at least 1"))
	}

	if c.API.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("api: rate_limit.requests_per_second must not be negative"))
	}
	if c.API.RateLimit.RequestsPerSecond > 0 && c.API.RateLimit.Burst < 1 {
		errs = append(errs, fmt.Errorf("api: rate_limit.burst must be at least 1"))
	}
	lists := append(append([]string{}, c.API.AllowedIPs...), c.API.DeniedIPs...)
	for _, cidr := range append(lists, c.API.TrustedProxies...) {
		if !validAddress(cidr) {
			errs = append(errs, fmt.Errorf("api: invalid address or CIDR %q", cidr))
		}
	}

	seen := make(map[string]bool, len(c.Workers))
	for i, w := range c.Workers {
		if w.ID == "" {
			errs = append(errs, fmt.Errorf("workers[%d]: id is required", i))
			continue
		}
		if seen[w.ID] {
			errs = append(errs, fmt.Errorf("workers[%d]: duplicate id %q", i, w.ID))
		}
		seen[w.ID] = true
		if _, err := w.InitialState(); err != nil {
			errs = append(errs, fmt.Errorf("workers[%d]: %w", i, err))
		}
		if w.Probe != nil {
			if _, err := health.NewChecker(*w.Probe); err != nil {
				errs = append(errs, fmt.Errorf("workers[%d]: probe: %w", i, err))
			}
		}
	}

	return errors.Join(errs...)
}

// BalancerConfig converts the scheduler section
func (c Config) BalancerConfig() (balancer.Config, error) {
	policy, err := balancer.PolicyByName(c.Scheduler.Policy)
	if err != nil {
		return balancer.Config{}, fmt.Errorf("scheduler: %w", err)
	}
	cfg := balancer.Config{
		HistoryCapacity: c.Scheduler.HistoryCapacity,
		TaskCost:        c.Scheduler.TaskCost,
		ReloadCost:      c.Scheduler.ReloadCost,
		Policy:          policy,
	}
	if err := cfg.Validate(); err != nil {
		return balancer.Config{}, fmt.Errorf("scheduler: %w", err)
	}
	return cfg, nil
}

// ProbeConfig merges a worker's probe settings over the supervisor defaults
func (c Config) ProbeConfig(w WorkerConfig) health.Config {
	if w.Probe == nil {
		return c.Supervisor.Defaults.WithDefaults()
	}
	p := w.Probe.Config
	d := c.Supervisor.Defaults
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.Retries <= 0 {
		p.Retries = d.Retries
	}
	if p.StartPeriod <= 0 {
		p.StartPeriod = d.StartPeriod
	}
	return p.WithDefaults()
}

func validAddress(s string) bool {
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return net.ParseIP(s) != nil
}
