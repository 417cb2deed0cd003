package postgres

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/liliang-cn/sqcatalog/pkg/core"
	"github.com/liliang-cn/sqcatalog/pkg/filter"
	"github.com/liliang-cn/sqcatalog/pkg/store"
)

func textBytes(s *string) []byte {
	if s == nil {
		return nil
	}
	return []byte(*s)
}

// QueryEntities implements store.Store
func (s *PostgresStore) QueryEntities(ctx context.Context, q store.EntityQuery) ([]store.EntityRow, error) {
	if err := s.ready("query_entities"); err != nil {
		return nil, err
	}

	where, args, err := filter.ToSQL(q.Predicate, "fe.entity_id", filter.Dollar, 0)
	if err != nil {
		return nil, core.WrapError("query_entities", err)
	}

	// entity ids are ordered bytewise, independent of the database collation
	query := `
		SELECT fe.entity_id, fe.final_entity
		FROM final_entities fe
		WHERE fe.final_entity IS NOT NULL AND (` + where + `)
		ORDER BY fe.entity_id COLLATE "C" ASC`
	// a negative limit is unbounded, as in SQLite
	if q.Limit != nil && *q.Limit >= 0 {
		args = append(args, *q.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	s.logger.Debug("query entities", "where", where, "args", len(args))

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, core.WrapError("query_entities", err)
	}
	defer rows.Close()

	result := []store.EntityRow{}
	for rows.Next() {
		var (
			id  string
			doc *string
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, core.WrapError("query_entities", err)
		}
		result = append(result, store.EntityRow{EntityID: id, FinalEntity: textBytes(doc)})
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError("query_entities", err)
	}
	return result, nil
}

// DeleteRefreshState implements store.Store
func (s *PostgresStore) DeleteRefreshState(ctx context.Context, entityID string) error {
	if err := s.ready("delete_refresh_state"); err != nil {
		return err
	}

	tag, err := s.conn.Exec(ctx, `DELETE FROM refresh_state WHERE entity_id = $1`, entityID)
	if err != nil {
		return core.WrapError("delete_refresh_state", err)
	}
	if tag.RowsAffected() > 0 {
		s.logger.Debug("entity removed", "entity_id", entityID)
	}
	return nil
}

// LookupEntity implements store.Store
func (s *PostgresStore) LookupEntity(ctx context.Context, entityRef string) (store.EntityRow, bool, error) {
	if err := s.ready("lookup_entity"); err != nil {
		return store.EntityRow{}, false, err
	}

	var (
		id  string
		doc *string
	)
	err := s.conn.QueryRow(ctx, `
		SELECT rs.entity_id, fe.final_entity
		FROM refresh_state rs
		LEFT JOIN final_entities fe ON fe.entity_id = rs.entity_id
		WHERE rs.entity_ref = $1
	`, entityRef).Scan(&id, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.EntityRow{}, false, nil
	}
	if err != nil {
		return store.EntityRow{}, false, core.WrapError("lookup_entity", err)
	}
	return store.EntityRow{EntityID: id, FinalEntity: textBytes(doc)}, true, nil
}

// ParentsOf implements store.Store
func (s *PostgresStore) ParentsOf(ctx context.Context, targetRef string) ([]store.ParentRow, error) {
	if err := s.ready("parents_of"); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, `
		SELECT r.source_entity_ref, fe.final_entity
		FROM refresh_state_references r
		LEFT JOIN refresh_state rs ON rs.entity_ref = r.source_entity_ref
		LEFT JOIN final_entities fe ON fe.entity_id = rs.entity_id
		WHERE r.target_entity_ref = $1
		ORDER BY r.id ASC
	`, targetRef)
	if err != nil {
		return nil, core.WrapError("parents_of", err)
	}
	defer rows.Close()

	var parents []store.ParentRow
	for rows.Next() {
		var (
			ref string
			doc *string
		)
		if err := rows.Scan(&ref, &doc); err != nil {
			return nil, core.WrapError("parents_of", err)
		}
		parents = append(parents, store.ParentRow{EntityRef: ref, FinalEntity: textBytes(doc)})
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError("parents_of", err)
	}
	return parents, nil
}
