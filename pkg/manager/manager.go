package manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/dispatcher"
	"github.com/cuemby/ember/pkg/log"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

const (
	defaultApplyTimeout = 5 * time.Second
	joinTokenTTL        = 24 * time.Hour
)

var errNotStarted = errors.New("raft not initialized")

// Manager replicates the scheduler across a Raft quorum. The leader accepts
// commands; every node applies them in log order.
type Manager struct {
	nodeID       string
	bindAddr     string
	dataDir      string
	inMemory     bool
	applyTimeout time.Duration

	raft      *raft.Raft
	transport raft.Transport
	fsm       *SchedulerFSM
	tokens    *joinTokens
	closers   []io.Closer

	logger zerolog.Logger
}

// Config holds configuration for creating a Manager
type Config struct {
	NodeID    string
	BindAddr  string
	DataDir   string
	Scheduler balancer.Config

	// Transport replaces the TCP transport bound to BindAddr
	Transport raft.Transport
	// InMemory keeps the log, stable and snapshot stores in memory
	InMemory bool
	// ApplyTimeout bounds a single commit. Defaults to 5s.
	ApplyTimeout time.Duration
}

// NewManager creates a manager. Raft is not started until Bootstrap or
// Start is called.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.NodeID == "" {
		return nil, fmt.Errorf("node id is required")
	}
	if cfg.Transport == nil && cfg.BindAddr == "" {
		return nil, fmt.Errorf("bind address is required")
	}
	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	initial, err := balancer.New(cfg.Scheduler)
	if err != nil {
		return nil, err
	}

	timeout := cfg.ApplyTimeout
	if timeout <= 0 {
		timeout = defaultApplyTimeout
	}

	return &Manager{
		nodeID:       cfg.NodeID,
		bindAddr:     cfg.BindAddr,
		dataDir:      cfg.DataDir,
		inMemory:     cfg.InMemory,
		applyTimeout: timeout,
		transport:    cfg.Transport,
		fsm:          NewSchedulerFSM(initial, cfg.Scheduler.Policy),
		tokens:       newJoinTokens(),
		logger:       log.WithComponent("manager").With().Str("node_id", cfg.NodeID).Logger(),
	}, nil
}

// Bootstrap starts Raft and forms a single node cluster. A node that
// already holds Raft state keeps it.
func (m *Manager) Bootstrap() error {
	if err := m.Start(); err != nil {
		return err
	}

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      raft.ServerID(m.nodeID),
				Address: m.transport.LocalAddr(),
			},
		},
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		if errors.Is(err, raft.ErrCantBootstrap) {
			m.logger.Info().Msg("existing raft state found, skipping bootstrap")
			return nil
		}
		return fmt.Errorf("failed to bootstrap cluster: %w", err)
	}

	m.logger.Info().Str("address", string(m.transport.LocalAddr())).Msg("cluster bootstrapped")
	return nil
}

// Start starts Raft without bootstrapping. Use it for a node that will be
// added to an existing cluster with AddVoter.
func (m *Manager) Start() error {
	if m.raft != nil {
		return nil
	}

	out := raftLogWriter{logger: m.logger}

	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	config.LogOutput = out
	config.LogLevel = "WARN"

	if m.transport == nil {
		addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve bind address: %w", err)
		}
		transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, out)
		if err != nil {
			return fmt.Errorf("failed to create transport: %w", err)
		}
		m.transport = transport
		m.closers = append(m.closers, transport)
	}

	var (
		logStore      raft.LogStore
		stableStore   raft.StableStore
		snapshotStore raft.SnapshotStore
	)

	if m.inMemory {
		store := raft.NewInmemStore()
		logStore, stableStore = store, store
		snapshotStore = raft.NewInmemSnapshotStore()
	} else {
		snapshots, err := raft.NewFileSnapshotStore(m.dataDir, 2, out)
		if err != nil {
			return fmt.Errorf("failed to create snapshot store: %w", err)
		}
		snapshotStore = snapshots

		logs, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
		if err != nil {
			return fmt.Errorf("failed to create log store: %w", err)
		}
		m.closers = append(m.closers, logs)
		logStore = logs

		stable, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
		if err != nil {
			return fmt.Errorf("failed to create stable store: %w", err)
		}
		m.closers = append(m.closers, stable)
		stableStore = stable
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, m.transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r
	return nil
}

// Commit proposes cmd to the cluster and waits until it is applied. Only
// the leader accepts commands; followers return dispatcher.ErrNotLeader.
func (m *Manager) Commit(ctx context.Context, cmd balancer.Command) (balancer.Result, error) {
	if m.raft == nil {
		return balancer.Result{}, errNotStarted
	}
	if err := ctx.Err(); err != nil {
		return balancer.Result{}, err
	}
	if m.raft.State() != raft.Leader {
		return balancer.Result{}, m.notLeader()
	}

	data, err := cmd.Encode()
	if err != nil {
		return balancer.Result{}, fmt.Errorf("failed to marshal command: %w", err)
	}

	timeout := m.applyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}

	future := m.raft.Apply(data, timeout)
	done := make(chan error, 1)
	go func() { done <- future.Error() }()

	select {
	case err := <-done:
		if err != nil {
			if errors.Is(err, raft.ErrNotLeader) || errors.Is(err, raft.ErrLeadershipLost) {
				return balancer.Result{}, m.notLeader()
			}
			return balancer.Result{}, fmt.Errorf("failed to apply command: %w", err)
		}
	case <-ctx.Done():
		return balancer.Result{}, ctx.Err()
	}

	resp, ok := future.Response().(*applyResponse)
	if !ok {
		return balancer.Result{}, fmt.Errorf("unexpected apply response %T", future.Response())
	}
	return resp.Result, resp.Err
}

// State returns this node's copy of the scheduler. On a follower it may
// trail the leader.
func (m *Manager) State(ctx context.Context) (balancer.Scheduler, error) {
	if err := ctx.Err(); err != nil {
		return balancer.Scheduler{}, err
	}
	return m.fsm.State(), nil
}

func (m *Manager) notLeader() error {
	return fmt.Errorf("%w: current leader is %q", dispatcher.ErrNotLeader, m.LeaderAddr())
}

// WaitForLeader blocks until the cluster has elected a leader
func (m *Manager) WaitForLeader(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if m.LeaderAddr() != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("no leader elected: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// AddVoter adds a node to the cluster
func (m *Manager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return errNotStarted
	}
	if !m.IsLeader() {
		return m.notLeader()
	}

	m.logger.Info().Str("voter_id", nodeID).Str("address", address).Msg("adding voter")

	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a node from the cluster
func (m *Manager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return errNotStarted
	}
	if !m.IsLeader() {
		return m.notLeader()
	}

	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}

	m.logger.Info().Str("voter_id", nodeID).Msg("server removed")
	return nil
}

// Servers returns the current cluster configuration
func (m *Manager) Servers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, errNotStarted
	}

	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// NodeID returns this node's Raft id
func (m *Manager) NodeID() string {
	return m.nodeID
}

// Address returns this node's Raft address
func (m *Manager) Address() string {
	if m.transport != nil {
		return string(m.transport.LocalAddr())
	}
	return m.bindAddr
}

// IsLeader returns true if this node is the Raft leader
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// LeaderAddr returns the Raft address of the current leader
func (m *Manager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	addr, _ := m.raft.LeaderWithID()
	return string(addr)
}

// Stats returns Raft statistics
func (m *Manager) Stats() map[string]string {
	if m.raft == nil {
		return nil
	}
	return m.raft.Stats()
}

// GenerateJoinToken creates a token a new node presents to be added as a
// voter. Tokens are only issued by the leader and stay on it.
func (m *Manager) GenerateJoinToken() (JoinToken, error) {
	if !m.IsLeader() {
		return JoinToken{}, m.notLeader()
	}
	return m.tokens.issue(joinTokenTTL)
}

// JoinTokens lists the unexpired tokens this node has issued
func (m *Manager) JoinTokens() []JoinToken {
	return m.tokens.outstanding()
}

// Join adds nodeID as a voter if token is valid. The token is held for the
// duration of the join and is spent once the node was added.
func (m *Manager) Join(token, nodeID, address string) error {
	jt, err := m.tokens.reserve(token)
	if err != nil {
		return err
	}
	if err := m.AddVoter(nodeID, address); err != nil {
		m.tokens.release(jt)
		return err
	}
	return nil
}

// Shutdown stops Raft and closes its stores
func (m *Manager) Shutdown() error {
	var errs []error

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown raft: %w", err))
		}
	}

	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil

	return errors.Join(errs...)
}

// raftLogWriter forwards Raft's hclog output to zerolog
type raftLogWriter struct {
	logger zerolog.Logger
}

func (w raftLogWriter) Write(p []byte) (int, error) {
	line := strings.TrimSpace(string(p))
	if line == "" {
		return len(p), nil
	}

	event := w.logger.Warn()
	if strings.Contains(line, "[ERROR]") {
		event = w.logger.Error()
	}
	event.Str("source", "raft").Msg(line)
	return len(p), nil
}
