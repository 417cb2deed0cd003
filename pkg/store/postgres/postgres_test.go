package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/sqcatalog/pkg/store/storetest"
)

// Set SQCATALOG_TEST_POSTGRES_DSN to a scratch database to run these tests.
// Every test truncates the catalog tables.
const dsnEnv = "SQCATALOG_TEST_POSTGRES_DSN"

func setupTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}

	ctx := context.Background()
	s, err := New(ctx, dsn, WithMigrations(), WithMaxConns(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.conn.Exec(ctx, `TRUNCATE refresh_state, final_entities, search, refresh_state_references RESTART IDENTITY`)
	require.NoError(t, err)
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return setupTestStore(t)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	require.NoError(t, Migrate(dsn))
	require.NoError(t, Migrate(dsn))
}

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@localhost:5432/db?sslmode=disable", migrateURL("postgres://u:p@localhost:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://localhost/db", migrateURL("postgresql://localhost/db"))
	assert.Equal(t, "pgx5://localhost/db", migrateURL("pgx5://localhost/db"))
}

func TestNewWithConnectionDoesNotOwnPool(t *testing.T) {
	owner := setupTestStore(t)
	borrowed := NewWithConnection(owner.conn)
	require.NoError(t, borrowed.Close())

	var one int
	require.NoError(t, owner.conn.QueryRow(context.Background(), "SELECT 1").Scan(&one))
	assert.Equal(t, 1, one)
}
