package catalog

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/liliang-cn/sqcatalog/internal/encoding"
	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// AncestryItem is one entity of an ancestry with its direct parents
type AncestryItem struct {
	Entity           core.Entity `json:"entity"`
	ParentEntityRefs []string    `json:"parentEntityRefs"`
}

// AncestryResponse lists every entity reachable from the root by following
// parent references, each exactly once
type AncestryResponse struct {
	RootEntityRef string         `json:"rootEntityRef"`
	Items         []AncestryItem `json:"items"`
}

type ancestryNode struct {
	entity core.Entity
	ref    string
}

// Ancestry walks the parents of rootRef breadth first. Each wave of the
// worklist looks up its parents concurrently, bounded by
// Config.AncestryParallelism; only this goroutine touches the seen set, so
// every reference is expanded at most once and cycles terminate.
//
// Parents that do not resolve to a processed entity are listed but not
// expanded. A cancelled context yields an error, never a partial ancestry.
func (c *Catalog) Ancestry(ctx context.Context, rootRef string) (*AncestryResponse, error) {
	const op = "ancestry"

	ref := core.NormalizeRef(rootRef)
	row, ok, err := c.store.LookupEntity(ctx, ref)
	if err != nil {
		return nil, fail(ctx, op, err)
	}
	if !ok || row.FinalEntity == nil {
		return nil, core.WrapError(op, fmt.Errorf("%w: %s", core.ErrNotFound, rootRef))
	}

	root, err := c.decodeNode(row.FinalEntity)
	if err != nil {
		return nil, core.WrapError(op, err)
	}

	seen := map[string]bool{ref: true, root.ref: true}
	worklist := []ancestryNode{root}
	var items []AncestryItem

	for len(worklist) > 0 {
		wave := worklist
		worklist = nil

		parents, err := c.parentsOf(ctx, wave)
		if err != nil {
			return nil, fail(ctx, op, err)
		}

		for i, current := range wave {
			item := AncestryItem{Entity: current.entity, ParentEntityRefs: []string{}}
			listed := make(map[string]bool, len(parents[i]))

			for _, p := range parents[i] {
				if !listed[p.EntityRef] {
					listed[p.EntityRef] = true
					item.ParentEntityRefs = append(item.ParentEntityRefs, p.EntityRef)
				}
				if seen[p.EntityRef] {
					continue
				}
				seen[p.EntityRef] = true

				if p.FinalEntity == nil {
					c.logger.Debug("dangling parent reference", "parent", p.EntityRef, "child", current.ref)
					continue
				}
				parent, err := c.decodeNode(p.FinalEntity)
				if err != nil {
					return nil, core.WrapError(op, fmt.Errorf("parent %s: %w", p.EntityRef, err))
				}
				if parent.ref != p.EntityRef {
					if seen[parent.ref] {
						continue
					}
					seen[parent.ref] = true
				}
				worklist = append(worklist, parent)
			}

			items = append(items, item)
		}
	}

	c.logger.Debug("ancestry resolved", "root", root.ref, "items", len(items))

	return &AncestryResponse{RootEntityRef: root.ref, Items: items}, nil
}

// parentsOf looks up the parents of every node in wave, keeping wave order
func (c *Catalog) parentsOf(ctx context.Context, wave []ancestryNode) ([][]store.ParentRow, error) {
	parents := make([][]store.ParentRow, len(wave))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.AncestryParallelism)
	for i, n := range wave {
		g.Go(func() error {
			rows, err := c.store.ParentsOf(gctx, n.ref)
			if err != nil {
				return err
			}
			parents[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parents, nil
}

func (c *Catalog) decodeNode(data []byte) (ancestryNode, error) {
	entity, err := encoding.DecodeEntity(data)
	if err != nil {
		return ancestryNode{}, err
	}
	ref, err := core.RefOf(entity)
	if err != nil {
		return ancestryNode{}, err
	}
	return ancestryNode{entity: entity, ref: ref}, nil
}
