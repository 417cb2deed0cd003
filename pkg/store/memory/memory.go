// Package memory is an in-process catalog store. Filters are evaluated with
// filter.Eval, so it doubles as the reference evaluator the SQL stores are
// checked against.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/filter"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

type entity struct {
	ref   string
	final []byte
	facts filter.FactSet
}

type edge struct {
	source string
	target string
}

// Store keeps the catalog relations in maps guarded by one RWMutex
type Store struct {
	mu       sync.RWMutex
	entities map[string]*entity // by entity id
	byRef    map[string]string  // entity ref -> entity id
	edges    []edge
	closed   bool
	logger   core.Logger
}

var (
	_ store.Store  = (*Store)(nil)
	_ store.Writer = (*Store)(nil)
)

// New creates an empty store
func New() *Store {
	return NewWithLogger(nil)
}

// NewWithLogger creates an empty store that logs through logger
func NewWithLogger(logger core.Logger) *Store {
	return &Store{
		entities: make(map[string]*entity),
		byRef:    make(map[string]string),
		logger:   core.OrNop(logger),
	}
}

// QueryEntities implements store.Store
func (s *Store) QueryEntities(ctx context.Context, q store.EntityQuery) ([]store.EntityRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, core.ErrStoreClosed
	}

	ids := make([]string, 0, len(s.entities))
	for id, e := range s.entities {
		if e.final == nil || !filter.Eval(q.Predicate, e.facts) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if q.Offset >= len(ids) {
		return []store.EntityRow{}, nil
	}
	ids = ids[q.Offset:]
	// a negative limit is unbounded, as in SQLite
	if q.Limit != nil && *q.Limit >= 0 && *q.Limit < len(ids) {
		ids = ids[:*q.Limit]
	}

	rows := make([]store.EntityRow, len(ids))
	for i, id := range ids {
		rows[i] = store.EntityRow{EntityID: id, FinalEntity: s.entities[id].final}
	}
	return rows, nil
}

// DeleteRefreshState implements store.Store. The document and facts go
// with the entity.
func (s *Store) DeleteRefreshState(ctx context.Context, entityID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.ErrStoreClosed
	}

	e, ok := s.entities[entityID]
	if !ok {
		return nil
	}
	delete(s.entities, entityID)
	if s.byRef[e.ref] == entityID {
		delete(s.byRef, e.ref)
	}
	s.logger.Debug("entity removed", "entity_id", entityID, "entity_ref", e.ref)
	return nil
}

// LookupEntity implements store.Store
func (s *Store) LookupEntity(ctx context.Context, entityRef string) (store.EntityRow, bool, error) {
	if err := ctx.Err(); err != nil {
		return store.EntityRow{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.EntityRow{}, false, core.ErrStoreClosed
	}

	id, ok := s.byRef[entityRef]
	if !ok {
		return store.EntityRow{}, false, nil
	}
	return store.EntityRow{EntityID: id, FinalEntity: s.entities[id].final}, true, nil
}

// ParentsOf implements store.Store
func (s *Store) ParentsOf(ctx context.Context, targetRef string) ([]store.ParentRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, core.ErrStoreClosed
	}

	var parents []store.ParentRow
	for _, e := range s.edges {
		if e.target != targetRef {
			continue
		}
		row := store.ParentRow{EntityRef: e.source}
		if id, ok := s.byRef[e.source]; ok {
			row.FinalEntity = s.entities[id].final
		}
		parents = append(parents, row)
	}
	return parents, nil
}

// PutEntity implements store.Writer. An existing entity with the same id is
// replaced.
func (s *Store) PutEntity(ctx context.Context, rec store.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := store.Prepare(rec)
	if err != nil {
		return core.WrapError("put_entity", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.ErrStoreClosed
	}

	if otherID, ok := s.byRef[p.EntityRef]; ok && otherID != p.EntityID {
		return core.WrapError("put_entity", fmt.Errorf("%w: %s", store.ErrDuplicateRef, p.EntityRef))
	}
	if old, ok := s.entities[p.EntityID]; ok && s.byRef[old.ref] == p.EntityID {
		delete(s.byRef, old.ref)
	}

	s.entities[p.EntityID] = &entity{
		ref:   p.EntityRef,
		final: p.FinalEntity,
		facts: filter.NewFactSet(p.Facts),
	}
	s.byRef[p.EntityRef] = p.EntityID
	return nil
}

// PutReference implements store.Writer
func (s *Store) PutReference(ctx context.Context, sourceRef, targetRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return core.ErrStoreClosed
	}

	s.edges = append(s.edges, edge{
		source: core.NormalizeRef(sourceRef),
		target: core.NormalizeRef(targetRef),
	})
	return nil
}

// Close implements store.Store
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
