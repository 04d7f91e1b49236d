package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	bolt "go.etcd.io/bbolt"
)

var bucketSnapshots = []byte("snapshots")

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db  *bolt.DB
	key []byte
}

// NewBoltStore opens or creates the database file at path
func NewBoltStore(path, key string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSnapshots); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketSnapshots, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, key: []byte(key)}, nil
}

// Save writes the snapshot in a single transaction
func (s *BoltStore) Save(_ context.Context, snap balancer.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put(s.key, data)
	})
}

// Load reads the last saved snapshot
func (s *BoltStore) Load(_ context.Context) (balancer.Snapshot, error) {
	var snap balancer.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get(s.key)
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, s.key)
		}
		var err error
		snap, err = decode(data)
		return err
	})
	return snap, err
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}
