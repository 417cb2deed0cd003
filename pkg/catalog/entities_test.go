package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/filter"
	"github.com/liliang-cn/sqcatalog/pkg/pagination"
	"github.com/liliang-cn/sqcatalog/pkg/store"
	"github.com/liliang-cn/sqcatalog/pkg/store/memory"
	"github.com/liliang-cn/sqcatalog/pkg/store/storetest"
)

func intp(i int) *int       { return &i }
func strp(s string) *string { return &s }

// countingStore records how often the store is queried
type countingStore struct {
	store.Store
	queries atomic.Int32
}

func (s *countingStore) QueryEntities(ctx context.Context, q store.EntityQuery) ([]store.EntityRow, error) {
	s.queries.Add(1)
	return s.Store.QueryEntities(ctx, q)
}

// rowsStore answers every entity query with fixed rows
type rowsStore struct {
	store.Store
	rows []store.EntityRow
	last store.EntityQuery
}

func (s *rowsStore) QueryEntities(ctx context.Context, q store.EntityQuery) ([]store.EntityRow, error) {
	s.last = q
	return s.rows, nil
}

func TestListEntitiesPaging(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		for i := 5; i >= 1; i-- {
			put(t, b, fmt.Sprint(i), entity("Component", fmt.Sprintf("e%d", i)))
		}
		c := New(b)
		ctx := context.Background()

		page, err := c.ListEntities(ctx, &EntitiesRequest{Pagination: &pagination.Request{Limit: intp(2), Offset: intp(0)}})
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e2"}, names(page.Entities))
		assert.True(t, page.PageInfo.HasNextPage)
		assert.Equal(t, pagination.Encode(2, 2), page.PageInfo.EndCursor)

		page, err = c.ListEntities(ctx, &EntitiesRequest{Pagination: &pagination.Request{After: strp(page.PageInfo.EndCursor)}})
		require.NoError(t, err)
		assert.Equal(t, []string{"e3", "e4"}, names(page.Entities))
		assert.True(t, page.PageInfo.HasNextPage)
		assert.Equal(t, pagination.Encode(2, 4), page.PageInfo.EndCursor)

		page, err = c.ListEntities(ctx, &EntitiesRequest{Pagination: &pagination.Request{After: strp(page.PageInfo.EndCursor)}})
		require.NoError(t, err)
		assert.Equal(t, []string{"e5"}, names(page.Entities))
		assert.False(t, page.PageInfo.HasNextPage)
		assert.Empty(t, page.PageInfo.EndCursor)
	})
}

func TestListEntitiesNoPagination(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		for i := 1; i <= 3; i++ {
			put(t, b, fmt.Sprint(i), entity("Component", fmt.Sprintf("e%d", i)))
		}
		c := New(b)

		page, err := c.ListEntities(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"e1", "e2", "e3"}, names(page.Entities))
		assert.False(t, page.PageInfo.HasNextPage)

		page, err = c.ListEntities(context.Background(), &EntitiesRequest{Pagination: &pagination.Request{Offset: intp(1)}})
		require.NoError(t, err)
		assert.Equal(t, []string{"e2", "e3"}, names(page.Entities))
		assert.False(t, page.PageInfo.HasNextPage)

		page, err = c.ListEntities(context.Background(), &EntitiesRequest{Pagination: &pagination.Request{Limit: intp(3)}})
		require.NoError(t, err)
		assert.Len(t, page.Entities, 3)
		assert.False(t, page.PageInfo.HasNextPage, "exactly limit rows left")
	})
}

func TestListEntitiesFilter(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		fact := func(k, v string) core.Fact { return core.Fact{Key: k, Value: v} }
		put(t, b, "1", entity("Component", "one"), fact("kind", "component"), fact("owner", "team-a"))
		put(t, b, "2", entity("Component", "two"), fact("kind", "component"), fact("owner", "team-c"))
		put(t, b, "3", entity("API", "three"), fact("kind", "api"), fact("owner", "team-a"))
		put(t, b, "4", entity("Component", "four"), fact("kind", "Component"), fact("owner", "Team-B"))
		put(t, b, "5", entity("Component", "five"), fact("kind", "component"))
		c := New(b)
		ctx := context.Background()

		page, err := c.ListEntities(ctx, &EntitiesRequest{Filter: filter.AllOf{
			filter.Match("kind", "component"),
			filter.Match("owner", "team-a", "team-b"),
		}})
		require.NoError(t, err)
		assert.Equal(t, []string{"one", "four"}, names(page.Entities))

		page, err = c.ListEntities(ctx, &EntitiesRequest{Filter: filter.NotMatch("owner")})
		require.NoError(t, err)
		assert.Equal(t, []string{"five"}, names(page.Entities))

		page, err = c.ListEntities(ctx, &EntitiesRequest{Filter: filter.NotMatch("owner", "team-a")})
		require.NoError(t, err)
		assert.Equal(t, []string{"two", "four", "five"}, names(page.Entities))

		page, err = c.ListEntities(ctx, &EntitiesRequest{Filter: filter.Match("owner", "nobody")})
		require.NoError(t, err)
		assert.Empty(t, page.Entities)
		assert.False(t, page.PageInfo.HasNextPage)
	})
}

func TestListEntitiesPagesConcatenate(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		for i := 0; i < 23; i++ {
			kind := "Component"
			if i%4 == 0 {
				kind = "API"
			}
			put(t, b, fmt.Sprintf("id-%02d", i), entity(kind, fmt.Sprintf("n%02d", i)))
		}
		c := New(b)
		ctx := context.Background()
		f := filter.NotMatch("kind", "api")

		all, err := c.ListEntities(ctx, &EntitiesRequest{Filter: f})
		require.NoError(t, err)
		require.Len(t, all.Entities, 17)

		for limit := 1; limit <= 18; limit++ {
			var got []string
			req := &EntitiesRequest{Filter: f, Pagination: &pagination.Request{Limit: intp(limit)}}
			for pages := 0; ; pages++ {
				require.Less(t, pages, 20, "paging does not terminate")
				page, err := c.ListEntities(ctx, req)
				require.NoError(t, err)
				got = append(got, names(page.Entities)...)
				if !page.PageInfo.HasNextPage {
					break
				}
				req.Pagination = &pagination.Request{After: strp(page.PageInfo.EndCursor)}
			}
			assert.Equal(t, names(all.Entities), got, "limit %d", limit)
		}
	})
}

func TestListEntitiesIntegerBoundary(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		for i := 1; i <= 3; i++ {
			put(t, b, fmt.Sprint(i), entity("Component", fmt.Sprintf("e%d", i)))
		}
		c := New(b)
		ctx := context.Background()

		cases := []struct {
			name    string
			req     *pagination.Request
			want    []string
			hasNext bool
		}{
			{"MaxLimitCursor", &pagination.Request{After: strp(pagination.Encode(math.MaxInt, 0))}, []string{"e1", "e2", "e3"}, false},
			{"MaxLimitRequest", &pagination.Request{Limit: intp(math.MaxInt), Offset: intp(1)}, []string{"e2", "e3"}, false},
			{"MaxOffsetCursor", &pagination.Request{After: strp(pagination.Encode(2, math.MaxInt))}, []string{}, false},
			{"MaxBoth", &pagination.Request{After: strp(pagination.Encode(math.MaxInt, math.MaxInt))}, []string{}, false},
			{"NearMaxLimit", &pagination.Request{Limit: intp(math.MaxInt - 1)}, []string{"e1", "e2", "e3"}, false},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				page, err := c.ListEntities(ctx, &EntitiesRequest{Pagination: tc.req})
				require.NoError(t, err)
				assert.Equal(t, tc.want, names(page.Entities))
				assert.Equal(t, tc.hasNext, page.PageInfo.HasNextPage)
				assert.Empty(t, page.PageInfo.EndCursor)
			})
		}
	})
}

func TestListEntitiesNextCursorDoesNotOverflow(t *testing.T) {
	s := &rowsStore{rows: []store.EntityRow{
		{EntityID: "1", FinalEntity: []byte(`{"kind":"Component","metadata":{"name":"e1"}}`)},
		{EntityID: "2", FinalEntity: []byte(`{"kind":"Component","metadata":{"name":"e2"}}`)},
	}}
	c := New(s)

	page, err := c.ListEntities(context.Background(), &EntitiesRequest{
		Pagination: &pagination.Request{After: strp(pagination.Encode(1, math.MaxInt))},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, names(page.Entities))
	assert.False(t, page.PageInfo.HasNextPage)
	assert.Empty(t, page.PageInfo.EndCursor)
	require.NotNil(t, s.last.Limit)
	assert.Equal(t, 2, *s.last.Limit)
	assert.Equal(t, math.MaxInt, s.last.Offset)
}

func TestListEntitiesZeroLimit(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		put(t, b, "1", entity("Component", "e1"))
		c := New(b)

		page, err := c.ListEntities(context.Background(), &EntitiesRequest{
			Pagination: &pagination.Request{Limit: intp(0), Offset: intp(0)},
		})
		require.NoError(t, err)
		assert.Empty(t, page.Entities)
		assert.True(t, page.PageInfo.HasNextPage)
		// the cursor repeats the same empty window
		assert.Equal(t, pagination.Encode(0, 0), page.PageInfo.EndCursor)
	})
}

func TestListEntitiesInputErrors(t *testing.T) {
	spy := &countingStore{Store: memory.New()}
	c := New(spy)
	ctx := context.Background()

	_, err := c.ListEntities(ctx, &EntitiesRequest{Pagination: &pagination.Request{After: strp("not a cursor")}})
	assert.Equal(t, core.KindMalformedCursor, core.KindOf(err))

	_, err = c.ListEntities(ctx, &EntitiesRequest{Pagination: &pagination.Request{Limit: intp(-1)}})
	assert.Equal(t, core.KindInvalidPagination, core.KindOf(err))

	_, err = c.ListEntities(ctx, &EntitiesRequest{Filter: filter.AllOf{filter.Leaf{}}})
	assert.Equal(t, core.KindInvalidFilter, core.KindOf(err))

	var catalogErr *core.CatalogError
	require.ErrorAs(t, err, &catalogErr)
	assert.Equal(t, "list_entities", catalogErr.Op)

	assert.Zero(t, spy.queries.Load())
}

func TestListEntitiesProjector(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		put(t, b, "1", storetest.Component("svc", "team-a"))
		c := New(b)
		ctx := context.Background()

		page, err := c.ListEntities(ctx, &EntitiesRequest{Fields: FieldsProjector("kind", "metadata.name")})
		require.NoError(t, err)
		require.Len(t, page.Entities, 1)
		assert.Equal(t, core.Entity{"kind": "Component", "metadata": map[string]any{"name": "svc"}}, page.Entities[0])

		projErr := errors.New("projection failed")
		_, err = c.ListEntities(ctx, &EntitiesRequest{Fields: func(core.Entity) (core.Entity, error) {
			return nil, projErr
		}})
		assert.True(t, err == projErr, "projector errors are returned unchanged")
	})
}

func TestListEntitiesCorruptDocument(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		put(t, b, "1", entity("Component", "ok"))
		require.NoError(t, b.PutEntity(context.Background(), store.Record{
			EntityID:  "2",
			EntityRef: "component:default/broken",
			Raw:       []byte("{broken"),
		}))
		c := New(b)

		_, err := c.ListEntities(context.Background(), nil)
		assert.Equal(t, core.KindDeserialization, core.KindOf(err))

		page, err := c.ListEntities(context.Background(), &EntitiesRequest{Pagination: &pagination.Request{Limit: intp(1)}})
		require.NoError(t, err, "the corrupt row is outside the window")
		assert.Equal(t, []string{"ok"}, names(page.Entities))
	})
}

func TestListEntitiesCanceled(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		put(t, b, "1", entity("Component", "a"))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		page, err := New(b).ListEntities(ctx, nil)
		assert.Nil(t, page)
		assert.ErrorIs(t, err, core.ErrCanceled)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRemoveEntityByUID(t *testing.T) {
	eachBackend(t, func(t *testing.T, b storetest.Backend) {
		put(t, b, "1", storetest.Component("a", "team-a"))
		put(t, b, "2", storetest.Component("b", "team-a"))
		put(t, b, "3", storetest.Component("c", "team-b"))
		c := New(b)
		ctx := context.Background()

		require.NoError(t, c.RemoveEntityByUID(ctx, "2"))
		require.NoError(t, c.RemoveEntityByUID(ctx, "2"))
		require.NoError(t, c.RemoveEntityByUID(ctx, "does-not-exist"))

		filters := []filter.Filter{
			nil,
			filter.Match("spec.owner", "team-a"),
			filter.Match("metadata.name", "b"),
			filter.NotMatch("metadata.name", "a"),
			filter.AnyOf{filter.Match("kind"), filter.NotMatch("kind")},
		}
		for _, f := range filters {
			page, err := c.ListEntities(ctx, &EntitiesRequest{Filter: f})
			require.NoError(t, err)
			assert.NotContains(t, names(page.Entities), "b")
		}

		_, err := c.Ancestry(ctx, "component:default/b")
		assert.Equal(t, core.KindNotFound, core.KindOf(err))
	})
}

func TestBatchAddOrUpdate(t *testing.T) {
	c := New(memory.New())
	err := c.BatchAddOrUpdate(context.Background(), []core.Entity{entity("Component", "a")})
	assert.ErrorIs(t, err, core.ErrUnsupported)
	assert.Equal(t, core.KindUnsupported, core.KindOf(err))
}
