package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bmlt-enabled/tomato/internal/domain/rootservers"
	"github.com/bmlt-enabled/tomato/internal/domain/servicebodies"
)

var _ rootservers.Repository = (*RootServerRepository)(nil)

const rootServerColumns = `id, source_id, name, url, server_info,
       num_zones, num_regions, num_areas, num_groups, num_meetings,
       last_successful_import, created_at, updated_at`

func (r *RootServerRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *RootServerRepository) List(ctx context.Context) ([]rootservers.RootServer, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+rootServerColumns+`
  FROM root_servers
 ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list root servers: %w", err)
	}
	defer rows.Close()

	var servers []rootservers.RootServer
	for rows.Next() {
		server, err := scanRootServer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan root server: %w", err)
		}
		servers = append(servers, *server)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate root servers: %w", err)
	}
	return servers, nil
}

func (r *RootServerRepository) GetByID(ctx context.Context, id int64) (*rootservers.RootServer, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+rootServerColumns+`
  FROM root_servers
 WHERE id = $1
`, id)
	server, err := scanRootServer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, rootservers.ErrNotFound
		}
		return nil, fmt.Errorf("get root server: %w", err)
	}
	return server, nil
}

func (r *RootServerRepository) getBySourceID(ctx context.Context, sourceID int64) (*rootservers.RootServer, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+rootServerColumns+`
  FROM root_servers
 WHERE source_id = $1
`, sourceID)
	return scanRootServer(row)
}

func (r *RootServerRepository) Upsert(ctx context.Context, params rootservers.UpsertParams) (*rootservers.RootServer, error) {
	current, err := r.getBySourceID(ctx, params.SourceID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load root server: %w", err)
		}
		row := r.queryer().QueryRow(ctx, `
INSERT INTO root_servers (source_id, name, url, server_info)
VALUES ($1, $2, $3, $4)
RETURNING `+rootServerColumns+`
`, params.SourceID, params.Name, params.URL, params.ServerInfo)
		server, err := scanRootServer(row)
		if err != nil {
			return nil, fmt.Errorf("insert root server: %w", err)
		}
		return server, nil
	}

	var cs changeSet
	if current.Name != params.Name {
		cs.set("name", params.Name)
	}
	if current.URL != params.URL {
		cs.set("url", params.URL)
	}
	if current.ServerInfo != params.ServerInfo {
		cs.set("server_info", params.ServerInfo)
	}
	if cs.empty() {
		return current, nil
	}
	cs.raw("updated_at = now()")
	cs.args = append(cs.args, current.ID)
	sql := fmt.Sprintf("UPDATE root_servers SET %s WHERE id = $%d", strings.Join(cs.sets, ", "), len(cs.args))
	if _, err := r.queryer().Exec(ctx, sql, cs.args...); err != nil {
		return nil, fmt.Errorf("update root server: %w", err)
	}
	return r.GetByID(ctx, current.ID)
}

func (r *RootServerRepository) DeleteAbsent(ctx context.Context, keepSourceIDs []int64) (int64, error) {
	if keepSourceIDs == nil {
		keepSourceIDs = []int64{}
	}
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM root_servers
 WHERE NOT (source_id = ANY($1))
`, keepSourceIDs)
	if err != nil {
		return 0, fmt.Errorf("delete absent root servers: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *RootServerRepository) RecountCounters(ctx context.Context, id int64) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE root_servers rs
   SET num_zones = (SELECT count(*) FROM service_bodies sb
                     WHERE sb.root_server_id = rs.id AND sb.type = $2),
       num_regions = (SELECT count(*) FROM service_bodies sb
                       WHERE sb.root_server_id = rs.id AND sb.type = $3),
       num_areas = (SELECT count(*) FROM service_bodies sb
                     WHERE sb.root_server_id = rs.id AND sb.type NOT IN ($2, $3)),
       num_meetings = (SELECT count(*) FROM meetings m
                        WHERE m.root_server_id = rs.id AND m.published AND NOT m.deleted),
       num_groups = (SELECT count(DISTINCT mi.world_id) FILTER (WHERE mi.world_id <> '')
                          + count(DISTINCT m.name) FILTER (WHERE mi.world_id = '')
                       FROM meetings m
                       JOIN meeting_info mi ON mi.meeting_id = m.id
                      WHERE m.root_server_id = rs.id AND m.published AND NOT m.deleted),
       updated_at = now()
 WHERE rs.id = $1
`, id, servicebodies.TypeZone, servicebodies.TypeRegion)
	if err != nil {
		return fmt.Errorf("recount root server counters: %w", err)
	}
	return nil
}

func (r *RootServerRepository) MarkImported(ctx context.Context, id int64, at time.Time) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE root_servers
   SET last_successful_import = $2, updated_at = now()
 WHERE id = $1
`, id, at)
	if err != nil {
		return fmt.Errorf("mark root server imported: %w", err)
	}
	return nil
}

func (r *RootServerRepository) MaxLastSuccessfulImport(ctx context.Context) (*time.Time, error) {
	var max pgtype.Timestamptz
	err := r.queryer().QueryRow(ctx, `
SELECT max(last_successful_import) FROM root_servers
`).Scan(&max)
	if err != nil {
		return nil, fmt.Errorf("max last successful import: %w", err)
	}
	if !max.Valid {
		return nil, nil
	}
	t := max.Time
	return &t, nil
}

func scanRootServer(row pgx.Row) (*rootservers.RootServer, error) {
	var server rootservers.RootServer
	var lastImport, createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(
		&server.ID,
		&server.SourceID,
		&server.Name,
		&server.URL,
		&server.ServerInfo,
		&server.NumZones,
		&server.NumRegions,
		&server.NumAreas,
		&server.NumGroups,
		&server.NumMeetings,
		&lastImport,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	if lastImport.Valid {
		t := lastImport.Time
		server.LastSuccessfulImport = &t
	}
	if createdAt.Valid {
		server.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		server.UpdatedAt = updatedAt.Time
	}
	return &server, nil
}
