package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/config"
	"github.com/cuemby/ember/pkg/health"
	"github.com/cuemby/ember/pkg/log"
	"github.com/cuemby/ember/pkg/metrics"
	"github.com/cuemby/ember/pkg/types"
	"github.com/rs/zerolog"
)

const reportTimeout = 5 * time.Second

// Reporter receives a worker's new state when its probe flips
type Reporter interface {
	UpdateState(ctx context.Context, id types.WorkerID, state types.WorkerState) error
}

// Supervisor probes workers and reports readiness changes
type Supervisor struct {
	reporter Reporter

	mu        sync.Mutex
	monitors  map[types.WorkerID]*monitor
	cancelFns map[types.WorkerID]context.CancelFunc
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger zerolog.Logger
}

// monitor tracks probe state for a single worker
type monitor struct {
	worker  types.WorkerID
	checker health.Checker
	config  health.Config

	mu     sync.Mutex
	status *health.Status
	// pending is set when a flip has not been reported yet
	pending bool
}

// New creates a supervisor that reports through r
func New(r Reporter) *Supervisor {
	return &Supervisor{
		reporter:  r,
		monitors:  make(map[types.WorkerID]*monitor),
		cancelFns: make(map[types.WorkerID]context.CancelFunc),
		logger:    log.WithComponent("supervisor"),
	}
}

// Watch starts probing a worker. Probing begins immediately if the
// supervisor is running, otherwise on Start.
func (s *Supervisor) Watch(id types.WorkerID, checker health.Checker, cfg health.Config) error {
	if checker == nil {
		return fmt.Errorf("worker %s: checker is required", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.monitors[id]; exists {
		return fmt.Errorf("worker %s is already watched", id)
	}

	m := &monitor{
		worker:  id,
		checker: checker,
		config:  cfg.WithDefaults(),
		status:  health.NewStatus(),
	}
	s.monitors[id] = m

	if s.ctx != nil {
		s.launch(m)
	}
	return nil
}

// Unwatch stops probing a worker
func (s *Supervisor) Unwatch(id types.WorkerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unwatchLocked(id)
}

func (s *Supervisor) unwatchLocked(id types.WorkerID) {
	if cancel, ok := s.cancelFns[id]; ok {
		cancel()
		delete(s.cancelFns, id)
	}
	delete(s.monitors, id)
}

// Watched returns the ids being probed
func (s *Supervisor) Watched() []types.WorkerID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]types.WorkerID, 0, len(s.monitors))
	for id := range s.monitors {
		ids = append(ids, id)
	}
	return ids
}

// Status returns the last probe state of a worker
func (s *Supervisor) Status(id types.WorkerID) (types.ProbeState, bool) {
	s.mu.Lock()
	m, ok := s.monitors[id]
	s.mu.Unlock()
	if !ok {
		return types.ProbeState{}, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.ProbeState(), true
}

// Start launches one probe loop per watched worker
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, m := range s.monitors {
		s.launch(m)
	}
	s.logger.Info().Int("workers", len(s.monitors)).Msg("supervisor started")
}

// Stop cancels all probe loops and waits for them to exit
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// launch must be called with s.mu held
func (s *Supervisor) launch(m *monitor) {
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelFns[m.worker] = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.probeLoop(ctx, m)
	}()
}

func (s *Supervisor) probeLoop(ctx context.Context, m *monitor) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	// Run initial check immediately
	s.probe(ctx, m)

	for {
		select {
		case <-ticker.C:
			s.probe(ctx, m)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) probe(ctx context.Context, m *monitor) {
	checkCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	result := m.checker.Check(checkCtx)
	cancel()

	if ctx.Err() != nil {
		return
	}

	if !result.Healthy {
		metrics.ProbeFailuresTotal.WithLabelValues(string(m.worker)).Inc()
	}

	m.mu.Lock()
	if m.status.Update(result, m.config) {
		m.pending = true
	}
	pending := m.pending
	state := m.status.ProbeState()
	m.mu.Unlock()

	logger := log.ForWorker("supervisor", m.worker)
	logger.Debug().
		Bool("healthy", result.Healthy).
		Dur("duration", result.Duration).
		Str("message", result.Message).
		Msg("probe finished")

	if !pending {
		return
	}

	reportCtx, cancelReport := context.WithTimeout(ctx, reportTimeout)
	defer cancelReport()

	err := s.reporter.UpdateState(reportCtx, m.worker, state)
	switch {
	case errors.Is(err, balancer.ErrWorkerNotFound):
		logger.Info().Msg("worker no longer registered, probing stopped")
		s.mu.Lock()
		if s.monitors[m.worker] == m {
			s.unwatchLocked(m.worker)
		}
		s.mu.Unlock()
	case err != nil:
		logger.Warn().Err(err).Msg("failed to report probe state")
	default:
		m.mu.Lock()
		m.pending = false
		m.mu.Unlock()
		logger.Info().
			Bool("healthy", state.Healthy).
			Int("consecutive_failures", state.ConsecutiveFailures).
			Msg("worker readiness changed")
	}
}

// WatchConfigured watches every worker in cfg that declares a probe
func (s *Supervisor) WatchConfigured(cfg config.Config) error {
	for _, w := range cfg.Workers {
		if w.Probe == nil {
			continue
		}
		checker, err := health.NewChecker(*w.Probe)
		if err != nil {
			return fmt.Errorf("worker %s: %w", w.ID, err)
		}
		if err := s.Watch(types.WorkerID(w.ID), checker, cfg.ProbeConfig(w)); err != nil {
			return err
		}
	}
	return nil
}
