package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/filter"
	"github.com/liliang-cn/sqcatalog/pkg/store"
	"github.com/liliang-cn/sqcatalog/pkg/store/storetest"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Backend {
		return setupTestStore(t)
	})
}

func TestNewWithConfig(t *testing.T) {
	_, err := NewWithConfig(Config{})
	assert.Error(t, err)

	s, err := NewWithConfig(Config{Path: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.config.MaxOpenConns)

	_, err = s.QueryEntities(context.Background(), store.EntityQuery{})
	assert.Error(t, err, "query before init")

	require.NoError(t, s.Init(context.Background()))
	require.NoError(t, s.Init(context.Background()), "init twice")
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Init(context.Background()), core.ErrStoreClosed)
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var on int
			assert.NoError(t, s.GetDB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&on))
			assert.Equal(t, 1, on)
		}()
	}
	wg.Wait()
}

func TestDeleteRemovesFacts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutEntity(ctx, store.Record{EntityID: "a", Entity: storetest.Component("a", "x")}))
	require.NoError(t, s.DeleteRefreshState(ctx, "a"))

	var n int
	require.NoError(t, s.GetDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM search").Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, s.GetDB().QueryRowContext(ctx, "SELECT COUNT(*) FROM final_entities").Scan(&n))
	assert.Zero(t, n)
}

func TestCorruptDocumentIsReturnedVerbatim(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.PutEntity(ctx, store.Record{
		EntityID:  "a",
		EntityRef: "component:default/a",
		Raw:       []byte("{not json"),
		Facts:     []core.Fact{{Key: "kind", Value: "component"}},
	}))

	rows, err := s.QueryEntities(ctx, store.EntityQuery{Predicate: filter.HasFact{Key: "kind"}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "{not json", string(rows[0].FinalEntity))
}

func TestCanceledQuery(t *testing.T) {
	s := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchAll{}})
	assert.ErrorIs(t, err, context.Canceled)
}
