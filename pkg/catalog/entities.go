package catalog

import (
	"context"
	"fmt"
	"math"

	"github.com/liliang-cn/sqcatalog/internal/encoding"
	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/filter"
	"github.com/liliang-cn/sqcatalog/pkg/pagination"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// Projector reshapes an entity before it is returned
type Projector func(core.Entity) (core.Entity, error)

// EntitiesRequest is the input of ListEntities. Every field is optional.
type EntitiesRequest struct {
	Filter     filter.Filter
	Pagination *pagination.Request
	Fields     Projector
}

// PageInfo tells the caller whether and how to continue
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor,omitempty"`
}

// EntitiesResponse is one page of entities ordered by entity id
type EntitiesResponse struct {
	Entities []core.Entity `json:"entities"`
	PageInfo PageInfo      `json:"pageInfo"`
}

// ListEntities returns the processed entities matching req.Filter within the
// requested window. One row beyond the window is fetched to learn whether a
// next page exists. Filter and cursor errors are returned before the store
// is touched; projector errors are returned unchanged.
func (c *Catalog) ListEntities(ctx context.Context, req *EntitiesRequest) (*EntitiesResponse, error) {
	const op = "list_entities"
	if req == nil {
		req = &EntitiesRequest{}
	}

	pred, err := filter.Compile(req.Filter)
	if err != nil {
		return nil, core.WrapError(op, err)
	}
	window, err := pagination.Resolve(req.Pagination)
	if err != nil {
		return nil, core.WrapError(op, err)
	}

	q := store.EntityQuery{Predicate: pred, Offset: window.Offset}
	// a limit of MaxInt already covers every row
	if window.Limit != nil && *window.Limit < math.MaxInt {
		fetch := *window.Limit + 1
		q.Limit = &fetch
	}

	rows, err := c.store.QueryEntities(ctx, q)
	if err != nil {
		return nil, fail(ctx, op, err)
	}

	var page PageInfo
	if window.Limit != nil && len(rows) > *window.Limit {
		limit := *window.Limit
		rows = rows[:limit]
		// no row can sit past the largest representable offset
		if window.Offset <= math.MaxInt-limit {
			page.HasNextPage = true
			page.EndCursor = pagination.Encode(limit, window.Offset+limit)
		}
	}

	entities := make([]core.Entity, 0, len(rows))
	for _, row := range rows {
		entity, err := encoding.DecodeEntity(row.FinalEntity)
		if err != nil {
			return nil, core.WrapError(op, fmt.Errorf("entity %s: %w", row.EntityID, err))
		}
		if req.Fields != nil {
			if entity, err = req.Fields(entity); err != nil {
				return nil, err
			}
		}
		entities = append(entities, entity)
	}

	c.logger.Debug("entities listed", "count", len(entities), "offset", window.Offset, "has_next_page", page.HasNextPage)

	return &EntitiesResponse{Entities: entities, PageInfo: page}, nil
}

// RemoveEntityByUID removes the entity with the given identity. Removing an
// unknown identity is a no-op.
func (c *Catalog) RemoveEntityByUID(ctx context.Context, uid string) error {
	if err := c.store.DeleteRefreshState(ctx, uid); err != nil {
		return fail(ctx, "remove_entity", err)
	}
	return nil
}

// BatchAddOrUpdate is not supported; entities enter the catalog through
// ingestion.
func (c *Catalog) BatchAddOrUpdate(ctx context.Context, entities []core.Entity) error {
	return core.WrapError("batch_add_or_update", core.ErrUnsupported)
}
