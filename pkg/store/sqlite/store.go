// Package sqlite implements the catalog store on SQLite through
// modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// Config holds SQLite store settings
type Config struct {
	Path            string        `json:"path"`            // Database file path, or :memory:
	MaxOpenConns    int           `json:"maxOpenConns"`    // Pool size
	MaxIdleConns    int           `json:"maxIdleConns"`    // Idle connections kept open
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"` // Connection recycling interval
	BusyTimeout     time.Duration `json:"busyTimeout"`     // How long a writer waits for a lock
	Logger          core.Logger   `json:"-"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 2 * time.Hour,
		BusyTimeout:     5 * time.Second,
	}
}

// SQLiteStore implements store.Store on SQLite
type SQLiteStore struct {
	db     *sql.DB
	config Config
	closed atomic.Bool
	logger core.Logger
}

var (
	_ store.Store  = (*SQLiteStore)(nil)
	_ store.Writer = (*SQLiteStore)(nil)
)

// New creates a store for the database at path with default settings
func New(path string) (*SQLiteStore, error) {
	config := DefaultConfig()
	config.Path = path
	return NewWithConfig(config)
}

// NewWithConfig creates a store with a custom configuration. Init must be
// called before use.
func NewWithConfig(config Config) (*SQLiteStore, error) {
	if config.Path == "" {
		return nil, core.WrapError("init", fmt.Errorf("database path cannot be empty"))
	}
	defaults := DefaultConfig()
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = defaults.MaxOpenConns
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = defaults.MaxIdleConns
	}
	if config.Path == ":memory:" {
		// every connection would open its own empty database
		config.MaxOpenConns = 1
		config.MaxIdleConns = 1
		config.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		config: config,
		logger: core.OrNop(config.Logger),
	}, nil
}

// Init opens the database and creates the catalog tables
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.closed.Load() {
		return core.WrapError("init", core.ErrStoreClosed)
	}
	if s.db != nil {
		return nil
	}

	// Pragmas go in the DSN so that every pooled connection gets them;
	// foreign_keys is needed for the cascading deletes.
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		s.config.Path, s.config.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return core.WrapError("init", fmt.Errorf("failed to open database: %w", err))
	}

	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return core.WrapError("init", err)
	}

	s.db = db
	s.logger.Info("database initialized", "path", s.config.Path)
	return nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS refresh_state (
		entity_id TEXT PRIMARY KEY,
		entity_ref TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS final_entities (
		entity_id TEXT PRIMARY KEY,
		final_entity TEXT,
		FOREIGN KEY (entity_id) REFERENCES refresh_state(entity_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS refresh_state_references (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_entity_ref TEXT NOT NULL,
		target_entity_ref TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_state_references_target ON refresh_state_references(target_entity_ref);

	CREATE TABLE IF NOT EXISTS search (
		entity_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT,
		FOREIGN KEY (entity_id) REFERENCES refresh_state(entity_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_search_entity_id ON search(entity_id);
	CREATE INDEX IF NOT EXISTS idx_search_key_value ON search(key, value);
	`

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return err
		}
	}
	s.logger.Info("database connection closed")
	return nil
}

// GetDB returns the underlying database handle
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) ready(op string) error {
	if s.closed.Load() {
		return core.WrapError(op, core.ErrStoreClosed)
	}
	if s.db == nil {
		return core.WrapError(op, fmt.Errorf("store not initialized"))
	}
	return nil
}
