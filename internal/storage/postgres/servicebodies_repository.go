package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bmlt-enabled/tomato/internal/domain/servicebodies"
)

var _ servicebodies.Repository = (*ServiceBodyRepository)(nil)

const serviceBodyColumns = `id, root_server_id, source_id, parent_id, name, type,
       description, url, helpline, world_id, num_meetings, num_groups`

func (r *ServiceBodyRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *ServiceBodyRepository) List(ctx context.Context) ([]servicebodies.ServiceBody, error) {
	return r.list(ctx, `
SELECT `+serviceBodyColumns+`
  FROM service_bodies
 ORDER BY id
`)
}

func (r *ServiceBodyRepository) ListByRootServer(ctx context.Context, rootServerID int64) ([]servicebodies.ServiceBody, error) {
	return r.list(ctx, `
SELECT `+serviceBodyColumns+`
  FROM service_bodies
 WHERE root_server_id = $1
 ORDER BY id
`, rootServerID)
}

func (r *ServiceBodyRepository) list(ctx context.Context, sql string, args ...any) ([]servicebodies.ServiceBody, error) {
	rows, err := r.queryer().Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list service bodies: %w", err)
	}
	defer rows.Close()

	var bodies []servicebodies.ServiceBody
	for rows.Next() {
		body, err := scanServiceBody(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service body: %w", err)
		}
		bodies = append(bodies, *body)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service bodies: %w", err)
	}
	return bodies, nil
}

func (r *ServiceBodyRepository) GetByID(ctx context.Context, id int64) (*servicebodies.ServiceBody, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+serviceBodyColumns+`
  FROM service_bodies
 WHERE id = $1
`, id)
	body, err := scanServiceBody(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, servicebodies.ErrNotFound
		}
		return nil, fmt.Errorf("get service body: %w", err)
	}
	return body, nil
}

func (r *ServiceBodyRepository) Upsert(ctx context.Context, params servicebodies.UpsertParams) (*servicebodies.ServiceBody, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+serviceBodyColumns+`
  FROM service_bodies
 WHERE root_server_id = $1 AND source_id = $2
`, params.RootServerID, params.SourceID)
	current, err := scanServiceBody(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load service body: %w", err)
		}
		row := r.queryer().QueryRow(ctx, `
INSERT INTO service_bodies (root_server_id, source_id, name, type, description, url, helpline, world_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+serviceBodyColumns+`
`, params.RootServerID, params.SourceID, params.Name, params.Type,
			params.Description, params.URL, params.Helpline, params.WorldID)
		body, err := scanServiceBody(row)
		if err != nil {
			return nil, fmt.Errorf("insert service body: %w", err)
		}
		return body, nil
	}

	var cs changeSet
	if current.Name != params.Name {
		cs.set("name", params.Name)
	}
	if current.Type != params.Type {
		cs.set("type", params.Type)
	}
	if current.Description != params.Description {
		cs.set("description", params.Description)
	}
	if current.URL != params.URL {
		cs.set("url", params.URL)
	}
	if current.Helpline != params.Helpline {
		cs.set("helpline", params.Helpline)
	}
	if current.WorldID != params.WorldID {
		cs.set("world_id", params.WorldID)
	}
	if cs.empty() {
		return current, nil
	}
	cs.args = append(cs.args, current.ID)
	sql := fmt.Sprintf("UPDATE service_bodies SET %s WHERE id = $%d", strings.Join(cs.sets, ", "), len(cs.args))
	if _, err := r.queryer().Exec(ctx, sql, cs.args...); err != nil {
		return nil, fmt.Errorf("update service body: %w", err)
	}
	return r.GetByID(ctx, current.ID)
}

// SetParents wires the parent links of one root's bodies, resolved
// source id to source id. A body absent from the map, naming an unknown
// parent, or closing a cycle ends up parentless. Only changed rows are
// written.
func (r *ServiceBodyRepository) SetParents(ctx context.Context, rootServerID int64, parentBySourceID map[int64]int64) error {
	bodies, err := r.ListByRootServer(ctx, rootServerID)
	if err != nil {
		return err
	}

	idBySource := make(map[int64]int64, len(bodies))
	for _, b := range bodies {
		idBySource[b.SourceID] = b.ID
	}

	// Desired parent by body id, built so that following the links can
	// never loop.
	desired := make(map[int64]int64, len(parentBySourceID))
	for _, b := range bodies {
		parentSource, ok := parentBySourceID[b.SourceID]
		if !ok {
			continue
		}
		parentID, ok := idBySource[parentSource]
		if !ok || parentID == b.ID {
			continue
		}
		if closesCycle(desired, b.ID, parentID) {
			continue
		}
		desired[b.ID] = parentID
	}

	for _, b := range bodies {
		want, ok := desired[b.ID]
		switch {
		case !ok && b.ParentID == nil:
			continue
		case ok && b.ParentID != nil && *b.ParentID == want:
			continue
		}
		var parent *int64
		if ok {
			parent = &want
		}
		if _, err := r.queryer().Exec(ctx, `
UPDATE service_bodies SET parent_id = $2 WHERE id = $1
`, b.ID, parent); err != nil {
			return fmt.Errorf("set service body parent: %w", err)
		}
	}
	return nil
}

// closesCycle reports whether linking child to parent would make the
// desired link map loop back to child.
func closesCycle(desired map[int64]int64, child, parent int64) bool {
	for at, ok := parent, true; ok; at, ok = desired[at] {
		if at == child {
			return true
		}
	}
	return false
}

func (r *ServiceBodyRepository) DeleteAbsent(ctx context.Context, rootServerID int64, keepSourceIDs []int64) (int64, error) {
	if keepSourceIDs == nil {
		keepSourceIDs = []int64{}
	}
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM service_bodies
 WHERE root_server_id = $1
   AND NOT (source_id = ANY($2))
`, rootServerID, keepSourceIDs)
	if err != nil {
		return 0, fmt.Errorf("delete absent service bodies: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RecountStats refreshes num_meetings and num_groups per body over its
// whole subtree's published, non-deleted meetings, so a parent's
// numbers cover its descendants. The recursive walk is deduplicated,
// which also keeps an accidental cycle from hanging the query.
func (r *ServiceBodyRepository) RecountStats(ctx context.Context, rootServerID int64) error {
	_, err := r.queryer().Exec(ctx, `
WITH RECURSIVE subtree (body_id, id) AS (
        SELECT id, id FROM service_bodies WHERE root_server_id = $1
     UNION
        SELECT s.body_id, c.id
          FROM subtree s
          JOIN service_bodies c ON c.parent_id = s.id
), counts AS (
        SELECT s.body_id,
               count(m.id) AS num_meetings,
               count(DISTINCT mi.world_id) FILTER (WHERE mi.world_id <> '')
             + count(DISTINCT m.name) FILTER (WHERE mi.world_id = '') AS num_groups
          FROM subtree s
          LEFT JOIN meetings m ON m.service_body_id = s.id AND m.published AND NOT m.deleted
          LEFT JOIN meeting_info mi ON mi.meeting_id = m.id
         GROUP BY s.body_id
)
UPDATE service_bodies sb
   SET num_meetings = c.num_meetings,
       num_groups = c.num_groups
  FROM counts c
 WHERE sb.id = c.body_id
   AND (sb.num_meetings <> c.num_meetings OR sb.num_groups <> c.num_groups)
`, rootServerID)
	if err != nil {
		return fmt.Errorf("recount service body stats: %w", err)
	}
	return nil
}

func scanServiceBody(row pgx.Row) (*servicebodies.ServiceBody, error) {
	var body servicebodies.ServiceBody
	if err := row.Scan(
		&body.ID,
		&body.RootServerID,
		&body.SourceID,
		&body.ParentID,
		&body.Name,
		&body.Type,
		&body.Description,
		&body.URL,
		&body.Helpline,
		&body.WorldID,
		&body.NumMeetings,
		&body.NumGroups,
	); err != nil {
		return nil, err
	}
	return &body, nil
}
