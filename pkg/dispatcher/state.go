package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/log"
	"github.com/cuemby/ember/pkg/storage"
)

// LoadState returns the scheduler to start from. Without a store, or when the
// store holds nothing yet, it is an empty scheduler built from cfg. A stored
// snapshot keeps its workers, backlogs and history, but the cost model,
// history capacity and policy always come from cfg.
func LoadState(ctx context.Context, store storage.Store, cfg balancer.Config) (balancer.Scheduler, error) {
	if store == nil {
		return balancer.New(cfg)
	}

	snap, err := store.Load(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return balancer.New(cfg)
	}
	if err != nil {
		return balancer.Scheduler{}, fmt.Errorf("failed to load snapshot: %w", err)
	}

	snap.HistoryCapacity = cfg.HistoryCapacity
	snap.TaskCost = cfg.TaskCost
	snap.ReloadCost = cfg.ReloadCost

	s, err := balancer.Restore(snap, cfg.Policy)
	if err != nil {
		return balancer.Scheduler{}, fmt.Errorf("failed to restore snapshot: %w", err)
	}

	logger := log.WithComponent("dispatcher")
	logger.Info().
		Int("workers", len(s.Workers())).
		Int("history", s.History().Len()).
		Msg("restored scheduler snapshot")
	return s, nil
}
