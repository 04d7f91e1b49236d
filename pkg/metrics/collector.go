package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
)

// Source exposes the current authoritative scheduler value
type Source interface {
	State(ctx context.Context) (balancer.Scheduler, error)
}

// RaftSource exposes consensus state for replicated deployments
type RaftSource interface {
	IsLeader() bool
	Stats() map[string]string
}

// Collector periodically samples the scheduler and refreshes the pool gauges
type Collector struct {
	source   Source
	raft     RaftSource
	health   *HealthChecker
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector. raft and health may be nil.
func NewCollector(source Source, raft RaftSource, health *HealthChecker, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		raft:     raft,
		health:   health,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect takes one sample immediately
func (c *Collector) Collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	if s, err := c.source.State(ctx); err == nil {
		ObserveScheduler(s)
		if c.health != nil {
			if readyCount(s) > 0 {
				c.health.Update("workers", true, "")
			} else {
				c.health.Update("workers", false, "no ready workers")
			}
		}
	}

	if c.raft != nil {
		c.collectRaftMetrics()
	}
}

// ObserveScheduler sets the pool gauges from s
func ObserveScheduler(s balancer.Scheduler) {
	cost := s.Cost()
	workers := s.Workers()

	WorkerBacklog.Reset()
	WorkerBacklogSeconds.Reset()
	ready := 0
	for _, w := range workers {
		id := string(w.ID)
		WorkerBacklog.WithLabelValues(id).Set(float64(w.Backlog.Len()))
		WorkerBacklogSeconds.WithLabelValues(id).Set(cost.BacklogLoad(w).Seconds())
		if w.Ready() {
			ready++
		}
	}

	WorkersTotal.WithLabelValues("true").Set(float64(ready))
	WorkersTotal.WithLabelValues("false").Set(float64(len(workers) - ready))
	HistoryLength.Set(float64(s.History().Len()))
}

func readyCount(s balancer.Scheduler) int {
	n := 0
	for _, w := range s.Workers() {
		if w.Ready() {
			n++
		}
	}
	return n
}

func (c *Collector) collectRaftMetrics() {
	if c.raft.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.raft.Stats()
	setFromStat(RaftLogIndex, stats["last_log_index"])
	setFromStat(RaftAppliedIndex, stats["applied_index"])
	setFromStat(RaftPeers, stats["num_peers"])
}

func setFromStat(g interface{ Set(float64) }, raw string) {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		g.Set(v)
	}
}
