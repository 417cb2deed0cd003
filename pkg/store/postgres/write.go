package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// PutEntity implements store.Writer
func (s *PostgresStore) PutEntity(ctx context.Context, rec store.Record) error {
	if err := s.ready("put_entity"); err != nil {
		return err
	}

	p, err := store.Prepare(rec)
	if err != nil {
		return core.WrapError("put_entity", err)
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return core.WrapError("put_entity", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var other string
	err = tx.QueryRow(ctx,
		`SELECT entity_id FROM refresh_state WHERE entity_ref = $1 AND entity_id <> $2`,
		p.EntityRef, p.EntityID).Scan(&other)
	switch {
	case err == nil:
		return core.WrapError("put_entity", fmt.Errorf("%w: %s", store.ErrDuplicateRef, p.EntityRef))
	case !errors.Is(err, pgx.ErrNoRows):
		return core.WrapError("put_entity", err)
	}

	var doc *string
	if p.FinalEntity != nil {
		text := string(p.FinalEntity)
		doc = &text
	}

	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO refresh_state (entity_id, entity_ref) VALUES ($1, $2)
		ON CONFLICT (entity_id) DO UPDATE SET entity_ref = EXCLUDED.entity_ref
	`, p.EntityID, p.EntityRef)
	batch.Queue(`
		INSERT INTO final_entities (entity_id, final_entity) VALUES ($1, $2)
		ON CONFLICT (entity_id) DO UPDATE SET final_entity = EXCLUDED.final_entity
	`, p.EntityID, doc)
	batch.Queue(`DELETE FROM search WHERE entity_id = $1`, p.EntityID)
	for _, f := range p.Facts {
		batch.Queue(`INSERT INTO search (entity_id, key, value) VALUES ($1, $2, $3)`, p.EntityID, f.Key, f.Value)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return core.WrapError("put_entity", fmt.Errorf("failed to store entity %s: %w", p.EntityRef, err))
	}
	if err := tx.Commit(ctx); err != nil {
		return core.WrapError("put_entity", err)
	}

	s.logger.Debug("entity stored", "entity_id", p.EntityID, "entity_ref", p.EntityRef, "facts", len(p.Facts))
	return nil
}

// PutReference implements store.Writer
func (s *PostgresStore) PutReference(ctx context.Context, sourceRef, targetRef string) error {
	if err := s.ready("put_reference"); err != nil {
		return err
	}

	_, err := s.conn.Exec(ctx,
		`INSERT INTO refresh_state_references (source_entity_ref, target_entity_ref) VALUES ($1, $2)`,
		core.NormalizeRef(sourceRef), core.NormalizeRef(targetRef))
	if err != nil {
		return core.WrapError("put_reference", err)
	}
	return nil
}
