package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/log"
)

// ErrTargetNotEmpty is returned when the target already holds a snapshot
// and overwriting was not requested
var ErrTargetNotEmpty = errors.New("target already holds a snapshot")

// MigrateOptions controls Migrate
type MigrateOptions struct {
	// DryRun reads and checks the source without writing the target
	DryRun bool
	// Overwrite replaces a snapshot already present in the target
	Overwrite bool
}

// MigrationReport summarises the copied snapshot
type MigrationReport struct {
	Workers     int
	Tasks       int
	History     int
	Overwritten bool
	Written     bool
}

// Migrate copies the snapshot held by from into to. The snapshot must
// restore cleanly before anything is written.
func Migrate(ctx context.Context, from, to Store, opts MigrateOptions) (MigrationReport, error) {
	logger := log.WithComponent("migrate")

	snap, err := from.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return MigrationReport{}, fmt.Errorf("source holds no snapshot: %w", err)
	}
	if err != nil {
		return MigrationReport{}, fmt.Errorf("failed to read source: %w", err)
	}

	if _, err := balancer.Restore(snap, nil); err != nil {
		return MigrationReport{}, fmt.Errorf("source snapshot is invalid: %w", err)
	}

	report := MigrationReport{
		Workers: len(snap.Workers),
		History: len(snap.History),
	}
	for _, w := range snap.Workers {
		report.Tasks += len(w.Backlog)
	}

	_, err = to.Load(ctx)
	switch {
	case err == nil:
		if !opts.Overwrite {
			return report, ErrTargetNotEmpty
		}
		report.Overwritten = true
	case errors.Is(err, ErrNotFound):
	default:
		return report, fmt.Errorf("failed to inspect target: %w", err)
	}

	if opts.DryRun {
		logger.Info().
			Int("workers", report.Workers).
			Int("tasks", report.Tasks).
			Msg("dry run, target left untouched")
		return report, nil
	}

	if err := to.Save(ctx, snap); err != nil {
		return report, fmt.Errorf("failed to write target: %w", err)
	}
	report.Written = true

	logger.Info().
		Int("workers", report.Workers).
		Int("tasks", report.Tasks).
		Int("history", report.History).
		Bool("overwritten", report.Overwritten).
		Msg("snapshot migrated")
	return report, nil
}
