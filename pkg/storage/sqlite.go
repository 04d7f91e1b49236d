package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/ember/pkg/balancer"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store in a single-table SQLite database
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLiteStore opens or creates the database file at path
func NewSQLiteStore(ctx context.Context, path, key string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	_, err = db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS snapshots (
		name     TEXT PRIMARY KEY,
		data     BLOB NOT NULL,
		saved_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &SQLiteStore{db: db, key: key}, nil
}

// Save upserts the snapshot row
func (s *SQLiteStore) Save(ctx context.Context, snap balancer.Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (name, data, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, saved_at = excluded.saved_at`,
		s.key, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot row
func (s *SQLiteStore) Load(ctx context.Context) (balancer.Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE name = ?`, s.key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return balancer.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, s.key)
	}
	if err != nil {
		return balancer.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return decode(data)
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
