// Package store defines the relational contract the catalog reads from.
//
// Four logical relations back every implementation:
//
//	final_entities(entity_id, final_entity)          processed documents, NULL until processed
//	refresh_state(entity_id, entity_ref)             one row per live entity
//	refresh_state_references(source_ref, target_ref) source is a parent of target
//	search(entity_id, key, value)                    flattened facts used for filtering
//
// Deleting a refresh_state row removes the entity; implementations cascade
// the delete to its document and facts.
package store

import (
	"context"
	"errors"

	"github.com/liliang-cn/sqcatalog/pkg/filter"
)

// ErrDuplicateRef is returned when a write would give two live entities the
// same reference
var ErrDuplicateRef = errors.New("entity ref already in use")

// EntityQuery selects processed entities ordered by entity id ascending.
// A nil Limit returns every matching row after Offset.
type EntityQuery struct {
	Predicate filter.Predicate
	Limit     *int
	Offset    int
}

// EntityRow is one processed entity as stored
type EntityRow struct {
	EntityID    string
	FinalEntity []byte
}

// ParentRow is one incoming reference edge of an entity. FinalEntity is nil
// when the edge is dangling or the parent is not yet processed.
type ParentRow struct {
	EntityRef   string
	FinalEntity []byte
}

// Store is the read and removal surface of a catalog backend.
// Implementations must be safe for concurrent use.
type Store interface {
	// QueryEntities returns processed entities matching q.Predicate
	QueryEntities(ctx context.Context, q EntityQuery) ([]EntityRow, error)

	// DeleteRefreshState removes an entity by id. Unknown ids are a no-op.
	DeleteRefreshState(ctx context.Context, entityID string) error

	// LookupEntity resolves a reference to its live entity. The boolean is
	// false when no refresh_state row carries the reference.
	LookupEntity(ctx context.Context, entityRef string) (EntityRow, bool, error)

	// ParentsOf returns the sources of all edges targeting entityRef in
	// insertion order, joined to their current documents.
	ParentsOf(ctx context.Context, targetRef string) ([]ParentRow, error)

	// Close releases the backend's resources
	Close() error
}

// Writer is the fixture write surface standing in for ingestion
type Writer interface {
	PutEntity(ctx context.Context, rec Record) error
	PutReference(ctx context.Context, sourceRef, targetRef string) error
}
