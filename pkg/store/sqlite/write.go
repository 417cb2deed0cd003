package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// PutEntity implements store.Writer. The entity, its document and its facts
// are replaced in one transaction.
func (s *SQLiteStore) PutEntity(ctx context.Context, rec store.Record) error {
	if err := s.ready("put_entity"); err != nil {
		return err
	}

	p, err := store.Prepare(rec)
	if err != nil {
		return core.WrapError("put_entity", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapError("put_entity", err)
	}
	defer func() { _ = tx.Rollback() }()

	var other string
	err = tx.QueryRowContext(ctx,
		`SELECT entity_id FROM refresh_state WHERE entity_ref = ? AND entity_id <> ?`,
		p.EntityRef, p.EntityID).Scan(&other)
	switch {
	case err == nil:
		return core.WrapError("put_entity", fmt.Errorf("%w: %s", store.ErrDuplicateRef, p.EntityRef))
	case !errors.Is(err, sql.ErrNoRows):
		return core.WrapError("put_entity", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_state (entity_id, entity_ref) VALUES (?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET entity_ref = excluded.entity_ref
	`, p.EntityID, p.EntityRef); err != nil {
		return core.WrapError("put_entity", fmt.Errorf("failed to upsert refresh state: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO final_entities (entity_id, final_entity) VALUES (?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET final_entity = excluded.final_entity
	`, p.EntityID, nullableText(p.FinalEntity)); err != nil {
		return core.WrapError("put_entity", fmt.Errorf("failed to upsert final entity: %w", err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM search WHERE entity_id = ?`, p.EntityID); err != nil {
		return core.WrapError("put_entity", fmt.Errorf("failed to clear facts: %w", err))
	}

	if len(p.Facts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO search (entity_id, key, value) VALUES (?, ?, ?)`)
		if err != nil {
			return core.WrapError("put_entity", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, f := range p.Facts {
			if _, err := stmt.ExecContext(ctx, p.EntityID, f.Key, f.Value); err != nil {
				return core.WrapError("put_entity", fmt.Errorf("failed to insert fact %s: %w", f.Key, err))
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return core.WrapError("put_entity", err)
	}

	s.logger.Debug("entity stored", "entity_id", p.EntityID, "entity_ref", p.EntityRef, "facts", len(p.Facts))
	return nil
}

// PutReference implements store.Writer
func (s *SQLiteStore) PutReference(ctx context.Context, sourceRef, targetRef string) error {
	if err := s.ready("put_reference"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_state_references (source_entity_ref, target_entity_ref) VALUES (?, ?)`,
		core.NormalizeRef(sourceRef), core.NormalizeRef(targetRef))
	if err != nil {
		return core.WrapError("put_reference", err)
	}
	return nil
}

func nullableText(data []byte) any {
	if data == nil {
		return nil
	}
	return string(data)
}
