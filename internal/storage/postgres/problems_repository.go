package postgres

import (
	"context"
	"fmt"

	"github.com/bmlt-enabled/tomato/internal/storage"
)

var _ storage.ProblemRepository = (*ProblemRepository)(nil)

func (r *ProblemRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *ProblemRepository) Record(ctx context.Context, problem storage.ImportProblem) error {
	_, err := r.queryer().Exec(ctx, `
INSERT INTO import_problems (root_server_id, message, data)
VALUES ($1, $2, $3)
`, problem.RootServerID, problem.Message, problem.Data)
	if err != nil {
		return fmt.Errorf("record import problem: %w", err)
	}
	return nil
}

func (r *ProblemRepository) Clear(ctx context.Context, rootServerID int64) error {
	_, err := r.queryer().Exec(ctx, `
DELETE FROM import_problems WHERE root_server_id = $1
`, rootServerID)
	if err != nil {
		return fmt.Errorf("clear import problems: %w", err)
	}
	return nil
}

func (r *ProblemRepository) ListByRootServer(ctx context.Context, rootServerID int64) ([]storage.ImportProblem, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT root_server_id, message, data
  FROM import_problems
 WHERE root_server_id = $1
 ORDER BY id
`, rootServerID)
	if err != nil {
		return nil, fmt.Errorf("list import problems: %w", err)
	}
	defer rows.Close()

	var problems []storage.ImportProblem
	for rows.Next() {
		var p storage.ImportProblem
		if err := rows.Scan(&p.RootServerID, &p.Message, &p.Data); err != nil {
			return nil, fmt.Errorf("scan import problem: %w", err)
		}
		problems = append(problems, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate import problems: %w", err)
	}
	return problems, nil
}
