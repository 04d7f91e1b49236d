package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	"github.com/cuemby/ember/pkg/config"
)

// ErrNotFound is returned by Load when nothing has been saved under the key
var ErrNotFound = errors.New("snapshot not found")

// Store persists the latest scheduler snapshot
type Store interface {
	// Save replaces the stored snapshot
	Save(ctx context.Context, snap balancer.Snapshot) error

	// Load returns the stored snapshot or ErrNotFound
	Load(ctx context.Context) (balancer.Snapshot, error)

	Close() error
}

// record is the stored form shared by every driver
type record struct {
	SavedAt  time.Time         `json:"saved_at"`
	Snapshot balancer.Snapshot `json:"snapshot"`
}

func encode(snap balancer.Snapshot) ([]byte, error) {
	data, err := json.Marshal(record{SavedAt: time.Now().UTC(), Snapshot: snap})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

func decode(data []byte) (balancer.Snapshot, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return balancer.Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return r.Snapshot, nil
}

// Open creates the store selected by cfg. With driver none it returns nil.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	key := cfg.Key
	if key == "" {
		key = "ember"
	}

	switch cfg.Driver {
	case "", config.DriverNone:
		return nil, nil
	case config.DriverBolt:
		return NewBoltStore(cfg.Path, key)
	case config.DriverSQLite:
		return NewSQLiteStore(ctx, cfg.Path, key)
	case config.DriverRedis:
		return NewRedisStore(ctx, cfg.URL, key)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
