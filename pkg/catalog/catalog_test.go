package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/store"
	"github.com/liliang-cn/sqcatalog/pkg/store/memory"
	"github.com/liliang-cn/sqcatalog/pkg/store/sqlite"
	"github.com/liliang-cn/sqcatalog/pkg/store/storetest"
)

type backendFactory struct {
	name string
	open func(t *testing.T) storetest.Backend
}

var backends = []backendFactory{
	{"memory", func(t *testing.T) storetest.Backend {
		s := memory.New()
		t.Cleanup(func() { _ = s.Close() })
		return s
	}},
	{"sqlite", func(t *testing.T) storetest.Backend {
		s, err := sqlite.New(filepath.Join(t.TempDir(), "catalog.db"))
		require.NoError(t, err)
		require.NoError(t, s.Init(context.Background()))
		t.Cleanup(func() { _ = s.Close() })
		return s
	}},
}

// eachBackend runs fn once per store implementation
func eachBackend(t *testing.T, fn func(t *testing.T, b storetest.Backend)) {
	for _, f := range backends {
		t.Run(f.name, func(t *testing.T) {
			fn(t, f.open(t))
		})
	}
}

func entity(kind, name string) core.Entity {
	return core.Entity{
		"apiVersion": "backstage.io/v1alpha1",
		"kind":       kind,
		"metadata":   map[string]any{"name": name},
	}
}

func put(t *testing.T, w store.Writer, id string, e core.Entity, facts ...core.Fact) {
	t.Helper()
	rec := store.Record{EntityID: id, Entity: e}
	if len(facts) > 0 {
		rec.Facts = facts
	}
	require.NoError(t, w.PutEntity(context.Background(), rec))
}

func link(t *testing.T, w store.Writer, parent, child string) {
	t.Helper()
	require.NoError(t, w.PutReference(context.Background(), parent, child))
}

func names(entities []core.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i], _ = e.Metadata()["name"].(string)
	}
	return out
}
