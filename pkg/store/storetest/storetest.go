// Package storetest holds the behaviour every store.Store implementation
// must share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/filter"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// Backend is a store that also accepts fixture writes
type Backend interface {
	store.Store
	store.Writer
}

// Factory returns an empty backend. Cleanup is the factory's job.
type Factory func(t *testing.T) Backend

// Component builds a minimal component document
func Component(name, owner string) core.Entity {
	return core.Entity{
		"apiVersion": "backstage.io/v1alpha1",
		"kind":       "Component",
		"metadata":   map[string]any{"name": name},
		"spec":       map[string]any{"owner": owner, "type": "service"},
	}
}

// Run executes the shared contract against backends built by newBackend
func Run(t *testing.T, newBackend Factory) {
	t.Run("QueryOrderAndWindow", func(t *testing.T) { testQueryOrderAndWindow(t, newBackend(t)) })
	t.Run("UnprocessedExcluded", func(t *testing.T) { testUnprocessedExcluded(t, newBackend(t)) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newBackend(t)) })
	t.Run("Lookup", func(t *testing.T) { testLookup(t, newBackend(t)) })
	t.Run("ParentsOf", func(t *testing.T) { testParentsOf(t, newBackend(t)) })
	t.Run("PutReplaces", func(t *testing.T) { testPutReplaces(t, newBackend(t)) })
	t.Run("DuplicateRef", func(t *testing.T) { testDuplicateRef(t, newBackend(t)) })
	t.Run("MatchesEvaluator", func(t *testing.T) { testMatchesEvaluator(t, newBackend(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newBackend(t)) })
}

func ids(rows []store.EntityRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.EntityID
	}
	return out
}

func intp(i int) *int { return &i }

func testQueryOrderAndWindow(t *testing.T, b Backend) {
	ctx := context.Background()
	for _, id := range []string{"3", "1", "5", "2", "4"} {
		require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: id, Entity: Component("c"+id, "team-a")}))
	}

	rows, err := b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchAll{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(rows))

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchAll{}, Limit: intp(2), Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids(rows))

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchAll{}, Offset: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, ids(rows))

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchAll{}, Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchAll{}, Limit: intp(0)})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchAll{}, Limit: intp(-1), Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4", "5"}, ids(rows), "negative limit is unbounded")

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchAll{}, Limit: intp(math.MaxInt), Offset: math.MaxInt})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchNone{}})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testUnprocessedExcluded(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "a", Entity: Component("a", "x")}))
	require.NoError(t, b.PutEntity(ctx, store.Record{
		EntityID:  "b",
		EntityRef: "component:default/b",
		Facts:     []core.Fact{{Key: "kind", Value: "component"}},
	}))

	rows, err := b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.HasFact{Key: "kind"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(rows))

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.HasFact{Key: "kind", Negated: true}})
	require.NoError(t, err)
	assert.Empty(t, rows)

	row, ok, err := b.LookupEntity(ctx, "component:default/b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, row.FinalEntity)
}

func testDeleteCascades(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "a", Entity: Component("a", "x")}))
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "b", Entity: Component("b", "x")}))

	require.NoError(t, b.DeleteRefreshState(ctx, "a"))
	require.NoError(t, b.DeleteRefreshState(ctx, "a"), "removal is idempotent")
	require.NoError(t, b.DeleteRefreshState(ctx, "missing"))

	rows, err := b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.MatchAll{}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(rows))

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.HasFact{Key: "metadata.name", Values: []string{"a"}, Negated: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(rows))

	_, ok, err := b.LookupEntity(ctx, "component:default/a")
	require.NoError(t, err)
	assert.False(t, ok)

	// the ref is free again
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "c", Entity: Component("a", "x")}))
}

func testLookup(t *testing.T, b Backend) {
	ctx := context.Background()
	doc := Component("Svc", "x")
	doc["metadata"].(map[string]any)["namespace"] = "Prod"
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "a", Entity: doc}))

	row, ok, err := b.LookupEntity(ctx, "component:prod/svc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", row.EntityID)
	assert.JSONEq(t, `{"apiVersion":"backstage.io/v1alpha1","kind":"Component","metadata":{"name":"Svc","namespace":"Prod"},"spec":{"owner":"x","type":"service"}}`, string(row.FinalEntity))

	_, ok, err = b.LookupEntity(ctx, "component:default/svc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testParentsOf(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "1", Entity: Component("child", "x")}))
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "2", Entity: Component("p1", "x")}))
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "3", EntityRef: "component:default/p3"}))
	require.NoError(t, b.PutReference(ctx, "component:default/p1", "component:default/child"))
	require.NoError(t, b.PutReference(ctx, "Component:default/ghost", "component:default/child"))
	require.NoError(t, b.PutReference(ctx, "component:default/p3", "component:default/child"))
	require.NoError(t, b.PutReference(ctx, "component:default/child", "component:default/p1"))

	parents, err := b.ParentsOf(ctx, "component:default/child")
	require.NoError(t, err)
	require.Len(t, parents, 3)
	assert.Equal(t, "component:default/p1", parents[0].EntityRef)
	assert.NotNil(t, parents[0].FinalEntity)
	assert.Equal(t, "component:default/ghost", parents[1].EntityRef)
	assert.Nil(t, parents[1].FinalEntity)
	assert.Equal(t, "component:default/p3", parents[2].EntityRef)
	assert.Nil(t, parents[2].FinalEntity)

	parents, err = b.ParentsOf(ctx, "component:default/nobody")
	require.NoError(t, err)
	assert.Empty(t, parents)
}

func testPutReplaces(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "a", Entity: Component("old", "team-a")}))
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "a", Entity: Component("new", "team-b")}))

	rows, err := b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.HasFact{Key: "spec.owner", Values: []string{"team-a"}}})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = b.QueryEntities(ctx, store.EntityQuery{Predicate: filter.HasFact{Key: "spec.owner", Values: []string{"team-b"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(rows))

	_, ok, err := b.LookupEntity(ctx, "component:default/old")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = b.LookupEntity(ctx, "component:default/new")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testDuplicateRef(t *testing.T, b Backend) {
	ctx := context.Background()
	require.NoError(t, b.PutEntity(ctx, store.Record{EntityID: "a", Entity: Component("x", "y")}))
	err := b.PutEntity(ctx, store.Record{EntityID: "b", Entity: Component("x", "y")})
	assert.ErrorIs(t, err, store.ErrDuplicateRef)

	row, ok, err := b.LookupEntity(ctx, "component:default/x")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", row.EntityID)
}

func testClosed(t *testing.T, b Backend) {
	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "close is idempotent")
	_, err := b.QueryEntities(context.Background(), store.EntityQuery{Predicate: filter.MatchAll{}})
	assert.ErrorIs(t, err, core.ErrStoreClosed)
}

var (
	factKeys   = []string{"kind", "spec.owner", "spec.type", "spec.lifecycle"}
	factValues = []string{"a", "b", "c", "d"}
)

// randomFilter builds a random tree over a small key and value alphabet so
// that leaves hit and miss often
func randomFilter(r *rand.Rand, depth int) filter.Filter {
	if depth == 0 || r.Intn(3) == 0 {
		leaf := filter.Leaf{Key: factKeys[r.Intn(len(factKeys))]}
		for i, n := 0, r.Intn(3); i < n; i++ {
			leaf.MatchValueIn = append(leaf.MatchValueIn, factValues[r.Intn(len(factValues))])
		}
		switch r.Intn(4) {
		case 0:
			no := false
			leaf.MatchValueExists = &no
		case 1:
			yes := true
			leaf.MatchValueExists = &yes
		}
		return leaf
	}
	children := make([]filter.Filter, r.Intn(4))
	for i := range children {
		children[i] = randomFilter(r, depth-1)
	}
	if r.Intn(2) == 0 {
		return filter.AllOf(children)
	}
	return filter.AnyOf(children)
}

func testMatchesEvaluator(t *testing.T, b Backend) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(42))

	sets := make(map[string]filter.FactSet)
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("e%03d", i)
		var facts []core.Fact
		for _, key := range factKeys {
			for _, value := range factValues {
				if r.Intn(4) == 0 {
					facts = append(facts, core.Fact{Key: key, Value: value})
				}
			}
		}
		require.NoError(t, b.PutEntity(ctx, store.Record{
			EntityID: id,
			Entity:   Component(id, "unused"),
			Facts:    append(facts, core.Fact{Key: "id", Value: id}),
		}))
		sets[id] = filter.NewFactSet(facts)
	}

	for i := 0; i < 200; i++ {
		f := randomFilter(r, 4)
		pred, err := filter.Compile(f)
		require.NoError(t, err)

		var want []string
		for id, set := range sets {
			if filter.Eval(pred, set) {
				want = append(want, id)
			}
		}
		sort.Strings(want)

		rows, err := b.QueryEntities(ctx, store.EntityQuery{Predicate: pred})
		require.NoError(t, err)
		got := ids(rows)
		if len(want) == 0 {
			assert.Empty(t, got, "filter %#v", f)
		} else {
			assert.Equal(t, want, got, "filter %#v", f)
		}
	}
}
