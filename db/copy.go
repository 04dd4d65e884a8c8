// ABOUTME: Table-by-table copy between stores, used to move a SQLite store onto Postgres
// ABOUTME: Existing rows in the destination are kept; the copy runs in one destination transaction
package db

import (
	"context"
	"fmt"
	"strings"
)

type copyTable struct {
	name    string
	columns []string
}

// copyTables is in foreign key order.
var copyTables = []copyTable{
	{"entities", []string{"id", "kind", "name", "fields", "created_at", "updated_at"}},
	{"links", []string{"id", "owner_id", "relation", "target_id", "created_at", "updated_at"}},
	{"sync_state", []string{"category", "last_sync_time", "status", "error_message", "updated_at"}},
	{"sync_runs", []string{"id", "trigger_name", "started_at", "finished_at", "succeeded", "failed", "deferred", "error_message"}},
	{"sync_jobs", []string{"id", "target_type", "target_id", "status", "message", "created_at", "finished_at"}},
}

// CopyResult counts rows per table.
type CopyResult struct {
	Table  string
	Source int
	Copied int
}

// CopyTo copies every row of s into dst. With dryRun nothing is written and
// only source counts are reported.
func (s *Store) CopyTo(ctx context.Context, dst *Store, dryRun bool) ([]CopyResult, error) {
	results := make([]CopyResult, 0, len(copyTables))

	if dryRun {
		for _, t := range copyTables {
			var n int
			if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.name).Scan(&n); err != nil {
				return nil, fmt.Errorf("failed to count %s: %w", t.name, classify(err))
			}
			results = append(results, CopyResult{Table: t.name, Source: n})
		}
		return results, nil
	}

	tx, err := dst.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin copy: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range copyTables {
		cols := strings.Join(t.columns, ", ")
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")
		insert := dst.rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING", t.name, cols, placeholders))

		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s", cols, t.name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", t.name, classify(err))
		}

		res := CopyResult{Table: t.name}
		for rows.Next() {
			values := make([]interface{}, len(t.columns))
			ptrs := make([]interface{}, len(values))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to scan %s: %w", t.name, classify(err))
			}
			res.Source++

			out, err := tx.ExecContext(ctx, insert, values...)
			if err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("failed to write %s: %w", t.name, classify(err))
			}
			if n, err := out.RowsAffected(); err == nil {
				res.Copied += int(n)
			}
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", t.name, classify(err))
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit copy: %w", classify(err))
	}
	return results, nil
}
