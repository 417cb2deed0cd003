// Package postgres implements the catalog store on PostgreSQL through a
// jackc/pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// pgxIConn is the part of a pool or connection the store needs
type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements store.Store on PostgreSQL
type PostgresStore struct {
	conn   pgxIConn
	pool   *pgxpool.Pool // nil when the connection is owned by the caller
	closed atomic.Bool
	logger core.Logger
}

var (
	_ store.Store  = (*PostgresStore)(nil)
	_ store.Writer = (*PostgresStore)(nil)
)

// Option configures a PostgresStore
type Option func(*options)

type options struct {
	logger   core.Logger
	maxConns int32
	migrate  bool
}

// WithLogger sets the store's logger
func WithLogger(l core.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxConns bounds the pool size
func WithMaxConns(n int32) Option {
	return func(o *options) { o.maxConns = n }
}

// WithMigrations applies the embedded schema migrations before the pool
// is opened
func WithMigrations() Option {
	return func(o *options) { o.migrate = true }
}

// New connects to dsn and verifies the connection
func New(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.migrate {
		if err := Migrate(dsn); err != nil {
			return nil, core.WrapError("init", err)
		}
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, core.WrapError("init", fmt.Errorf("failed to parse config: %w", err))
	}
	if o.maxConns > 0 {
		config.MaxConns = o.maxConns
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, config)
	if err != nil {
		return nil, core.WrapError("init", fmt.Errorf("failed to create pool: %w", err))
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, core.WrapError("init", fmt.Errorf("failed to ping database: %w", err))
	}

	s := newStore(pool, o)
	s.pool = pool
	s.logger.Info("database initialized", "host", config.ConnConfig.Host, "database", config.ConnConfig.Database)
	return s, nil
}

// NewWithConnection wraps an existing pool, connection or transaction. The
// caller keeps ownership; Close does not close it.
func NewWithConnection(conn pgxIConn, opts ...Option) *PostgresStore {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return newStore(conn, o)
}

func newStore(conn pgxIConn, o options) *PostgresStore {
	return &PostgresStore{
		conn:   conn,
		logger: core.OrNop(o.logger),
	}
}

// Close releases the pool if the store owns it
func (s *PostgresStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("database connection closed")
	}
	return nil
}

func (s *PostgresStore) ready(op string) error {
	if s.closed.Load() {
		return core.WrapError(op, core.ErrStoreClosed)
	}
	return nil
}
