package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/filter"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

// QueryEntities implements store.Store. The predicate is pushed down as
// semi-joins against the search table.
func (s *SQLiteStore) QueryEntities(ctx context.Context, q store.EntityQuery) ([]store.EntityRow, error) {
	if err := s.ready("query_entities"); err != nil {
		return nil, err
	}

	where, args, err := filter.ToSQL(q.Predicate, "fe.entity_id", filter.Question, 0)
	if err != nil {
		return nil, core.WrapError("query_entities", err)
	}

	query := `
		SELECT fe.entity_id, fe.final_entity
		FROM final_entities fe
		WHERE fe.final_entity IS NOT NULL AND (` + where + `)
		ORDER BY fe.entity_id ASC`
	switch {
	case q.Limit != nil:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, *q.Limit, q.Offset)
	case q.Offset > 0:
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, q.Offset)
	}

	s.logger.Debug("query entities", "where", where, "args", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapError("query_entities", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close rows during query entities", "error", closeErr)
		}
	}()

	result := []store.EntityRow{}
	for rows.Next() {
		var row store.EntityRow
		if err := rows.Scan(&row.EntityID, &row.FinalEntity); err != nil {
			return nil, core.WrapError("query_entities", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError("query_entities", err)
	}
	return result, nil
}

// DeleteRefreshState implements store.Store
func (s *SQLiteStore) DeleteRefreshState(ctx context.Context, entityID string) error {
	if err := s.ready("delete_refresh_state"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_state WHERE entity_id = ?`, entityID)
	if err != nil {
		return core.WrapError("delete_refresh_state", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("entity removed", "entity_id", entityID)
	}
	return nil
}

// LookupEntity implements store.Store
func (s *SQLiteStore) LookupEntity(ctx context.Context, entityRef string) (store.EntityRow, bool, error) {
	if err := s.ready("lookup_entity"); err != nil {
		return store.EntityRow{}, false, err
	}

	var row store.EntityRow
	err := s.db.QueryRowContext(ctx, `
		SELECT rs.entity_id, fe.final_entity
		FROM refresh_state rs
		LEFT JOIN final_entities fe ON fe.entity_id = rs.entity_id
		WHERE rs.entity_ref = ?
	`, entityRef).Scan(&row.EntityID, &row.FinalEntity)
	if errors.Is(err, sql.ErrNoRows) {
		return store.EntityRow{}, false, nil
	}
	if err != nil {
		return store.EntityRow{}, false, core.WrapError("lookup_entity", err)
	}
	return row, true, nil
}

// ParentsOf implements store.Store. Edges whose source is not a live entity
// come back with a nil document.
func (s *SQLiteStore) ParentsOf(ctx context.Context, targetRef string) ([]store.ParentRow, error) {
	if err := s.ready("parents_of"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.source_entity_ref, fe.final_entity
		FROM refresh_state_references r
		LEFT JOIN refresh_state rs ON rs.entity_ref = r.source_entity_ref
		LEFT JOIN final_entities fe ON fe.entity_id = rs.entity_id
		WHERE r.target_entity_ref = ?
		ORDER BY r.id ASC
	`, targetRef)
	if err != nil {
		return nil, core.WrapError("parents_of", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close rows during parents lookup", "error", closeErr)
		}
	}()

	var parents []store.ParentRow
	for rows.Next() {
		var row store.ParentRow
		if err := rows.Scan(&row.EntityRef, &row.FinalEntity); err != nil {
			return nil, core.WrapError("parents_of", fmt.Errorf("failed to scan parent of %s: %w", targetRef, err))
		}
		parents = append(parents, row)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError("parents_of", err)
	}
	return parents, nil
}
