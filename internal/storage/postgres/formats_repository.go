package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/bmlt-enabled/tomato/internal/domain/formats"
)

var _ formats.Repository = (*FormatRepository)(nil)

func (r *FormatRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *FormatRepository) Upsert(ctx context.Context, params formats.UpsertParams) (*formats.Format, error) {
	var current formats.Format
	err := r.queryer().QueryRow(ctx, `
SELECT id, root_server_id, source_id, world_id, type
  FROM formats
 WHERE root_server_id = $1 AND source_id = $2
`, params.RootServerID, params.SourceID).Scan(
		&current.ID, &current.RootServerID, &current.SourceID, &current.WorldID, &current.Type)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load format: %w", err)
		}
		var inserted formats.Format
		err := r.queryer().QueryRow(ctx, `
INSERT INTO formats (root_server_id, source_id, world_id, type)
VALUES ($1, $2, $3, $4)
RETURNING id, root_server_id, source_id, world_id, type
`, params.RootServerID, params.SourceID, params.WorldID, params.Type).Scan(
			&inserted.ID, &inserted.RootServerID, &inserted.SourceID, &inserted.WorldID, &inserted.Type)
		if err != nil {
			return nil, fmt.Errorf("insert format: %w", err)
		}
		return &inserted, nil
	}

	var cs changeSet
	if current.WorldID != params.WorldID {
		cs.set("world_id", params.WorldID)
	}
	if current.Type != params.Type {
		cs.set("type", params.Type)
	}
	if cs.empty() {
		return &current, nil
	}
	cs.args = append(cs.args, current.ID)
	sql := fmt.Sprintf("UPDATE formats SET %s WHERE id = $%d", strings.Join(cs.sets, ", "), len(cs.args))
	if _, err := r.queryer().Exec(ctx, sql, cs.args...); err != nil {
		return nil, fmt.Errorf("update format: %w", err)
	}
	current.WorldID = params.WorldID
	current.Type = params.Type
	return &current, nil
}

func (r *FormatRepository) UpsertTranslation(ctx context.Context, params formats.TranslationParams) error {
	var current formats.TranslatedFormat
	err := r.queryer().QueryRow(ctx, `
SELECT id, key_string, name, description
  FROM translated_formats
 WHERE format_id = $1 AND language = $2
`, params.FormatID, params.Language).Scan(
		&current.ID, &current.KeyString, &current.Name, &current.Description)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("load format translation: %w", err)
		}
		_, err := r.queryer().Exec(ctx, `
INSERT INTO translated_formats (format_id, language, key_string, name, description)
VALUES ($1, $2, $3, $4, $5)
`, params.FormatID, params.Language, params.KeyString, params.Name, params.Description)
		if err != nil {
			return fmt.Errorf("insert format translation: %w", err)
		}
		return nil
	}

	var cs changeSet
	if current.KeyString != params.KeyString {
		cs.set("key_string", params.KeyString)
	}
	if current.Name != params.Name {
		cs.set("name", params.Name)
	}
	if current.Description != params.Description {
		cs.set("description", params.Description)
	}
	if cs.empty() {
		return nil
	}
	cs.args = append(cs.args, current.ID)
	sql := fmt.Sprintf("UPDATE translated_formats SET %s WHERE id = $%d", strings.Join(cs.sets, ", "), len(cs.args))
	if _, err := r.queryer().Exec(ctx, sql, cs.args...); err != nil {
		return fmt.Errorf("update format translation: %w", err)
	}
	return nil
}

func (r *FormatRepository) DeleteAbsent(ctx context.Context, rootServerID int64, keepSourceIDs []int64) (int64, error) {
	if keepSourceIDs == nil {
		keepSourceIDs = []int64{}
	}
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM formats
 WHERE root_server_id = $1
   AND NOT (source_id = ANY($2))
`, rootServerID, keepSourceIDs)
	if err != nil {
		return 0, fmt.Errorf("delete absent formats: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *FormatRepository) ListByRootServer(ctx context.Context, rootServerID int64) ([]formats.Format, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, root_server_id, source_id, world_id, type
  FROM formats
 WHERE root_server_id = $1
 ORDER BY id
`, rootServerID)
	if err != nil {
		return nil, fmt.Errorf("list formats: %w", err)
	}
	defer rows.Close()

	var out []formats.Format
	for rows.Next() {
		var f formats.Format
		if err := rows.Scan(&f.ID, &f.RootServerID, &f.SourceID, &f.WorldID, &f.Type); err != nil {
			return nil, fmt.Errorf("scan format: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate formats: %w", err)
	}
	return out, nil
}

func (r *FormatRepository) IDsByKeyString(ctx context.Context, rootServerID int64) (map[string][]int64, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT DISTINCT tf.key_string, f.id
  FROM formats f
  JOIN translated_formats tf ON tf.format_id = f.id
 WHERE f.root_server_id = $1
 ORDER BY tf.key_string, f.id
`, rootServerID)
	if err != nil {
		return nil, fmt.Errorf("list format key strings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]int64)
	for rows.Next() {
		var keyString string
		var id int64
		if err := rows.Scan(&keyString, &id); err != nil {
			return nil, fmt.Errorf("scan format key string: %w", err)
		}
		out[keyString] = append(out[keyString], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate format key strings: %w", err)
	}
	return out, nil
}

func (r *FormatRepository) ListRows(ctx context.Context, filter formats.RowFilter) ([]formats.Row, error) {
	where := []string{"TRUE"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.RootServersInclude) > 0 {
		where = append(where, "f.root_server_id = ANY("+arg(filter.RootServersInclude)+")")
	}
	if len(filter.RootServersExclude) > 0 {
		where = append(where, "f.root_server_id <> ALL("+arg(filter.RootServersExclude)+")")
	}
	if len(filter.KeyStrings) > 0 {
		where = append(where, "tf.key_string = ANY("+arg(filter.KeyStrings)+")")
	}
	if filter.Language != "" {
		where = append(where, "tf.language = "+arg(filter.Language))
	}
	if len(filter.FormatIDs) > 0 {
		where = append(where, "f.id = ANY("+arg(filter.FormatIDs)+")")
	}

	rows, err := r.queryer().Query(ctx, `
SELECT f.id, tf.language, tf.key_string, tf.name, tf.description,
       f.world_id, f.root_server_id, rs.url
  FROM formats f
  JOIN translated_formats tf ON tf.format_id = f.id
  JOIN root_servers rs ON rs.id = f.root_server_id
 WHERE `+strings.Join(where, "\n   AND ")+`
 ORDER BY f.id, tf.language
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list format rows: %w", err)
	}
	defer rows.Close()

	var out []formats.Row
	for rows.Next() {
		var row formats.Row
		if err := rows.Scan(
			&row.FormatID,
			&row.Language,
			&row.KeyString,
			&row.Name,
			&row.Description,
			&row.WorldID,
			&row.RootServerID,
			&row.RootServerURL,
		); err != nil {
			return nil, fmt.Errorf("scan format row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate format rows: %w", err)
	}
	return out, nil
}

func (r *FormatRepository) TranslationsByLanguage(ctx context.Context) (map[string]map[int64]formats.TranslatedFormat, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id, format_id, language, key_string, name, description
  FROM translated_formats
 ORDER BY language, format_id
`)
	if err != nil {
		return nil, fmt.Errorf("list format translations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[int64]formats.TranslatedFormat)
	for rows.Next() {
		var tf formats.TranslatedFormat
		if err := rows.Scan(&tf.ID, &tf.FormatID, &tf.Language, &tf.KeyString, &tf.Name, &tf.Description); err != nil {
			return nil, fmt.Errorf("scan format translation: %w", err)
		}
		byFormat := out[tf.Language]
		if byFormat == nil {
			byFormat = make(map[int64]formats.TranslatedFormat)
			out[tf.Language] = byFormat
		}
		byFormat[tf.FormatID] = tf
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate format translations: %w", err)
	}
	return out, nil
}

func (r *FormatRepository) KeyStringsByWorldID(ctx context.Context, rootServerID int64) (map[string][]string, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT DISTINCT f.world_id, tf.key_string
  FROM formats f
  JOIN translated_formats tf ON tf.format_id = f.id
 WHERE f.root_server_id = $1
   AND f.world_id <> ''
 ORDER BY f.world_id, tf.key_string
`, rootServerID)
	if err != nil {
		return nil, fmt.Errorf("list format world ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var worldID, keyString string
		if err := rows.Scan(&worldID, &keyString); err != nil {
			return nil, fmt.Errorf("scan format world id: %w", err)
		}
		out[worldID] = append(out[worldID], keyString)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate format world ids: %w", err)
	}
	return out, nil
}
