// ABOUTME: Link persistence between entities
// ABOUTME: Idempotent to-one and to-many relate, plus lookups by owner and target
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/crmsync/models"
)

const linkColumns = `id, owner_id, relation, target_id, created_at, updated_at`

// Relate links owner to target under relation. A to-one relation (many=false)
// replaces any other target; a to-many relation only adds. It reports whether
// the stored state changed; relating an existing pair again is a no-op.
func (s *Store) Relate(ctx context.Context, ownerID, relation, targetID string, many bool) (bool, error) {
	if ownerID == "" || relation == "" || targetID == "" {
		return false, ErrInvalidLink
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, classify(err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, s.rebind(`
		SELECT id FROM links WHERE owner_id = ? AND relation = ? AND target_id = ?
	`), ownerID, relation, targetID).Scan(&existing)
	switch {
	case err == nil:
		if many {
			return false, nil
		}
		var others int
		if err := tx.QueryRowContext(ctx, s.rebind(`
			SELECT COUNT(*) FROM links WHERE owner_id = ? AND relation = ? AND target_id <> ?
		`), ownerID, relation, targetID).Scan(&others); err != nil {
			return false, classify(err)
		}
		if others == 0 {
			return false, nil
		}
	case err != sql.ErrNoRows:
		return false, classify(err)
	}

	if !many {
		if _, err := tx.ExecContext(ctx, s.rebind(`
			DELETE FROM links WHERE owner_id = ? AND relation = ? AND target_id <> ?
		`), ownerID, relation, targetID); err != nil {
			return false, classify(err)
		}
	}

	if existing == "" {
		now := time.Now().UTC().Truncate(time.Microsecond)
		if _, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO links (id, owner_id, relation, target_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`), uuid.New().String(), ownerID, relation, targetID, now, now); err != nil {
			return false, classify(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, classify(err)
	}
	return true, nil
}

// Related returns the targets linked from owner under relation.
func (s *Store) Related(ctx context.Context, ownerID, relation string) ([]*models.Entity, error) {
	return s.queryEntities(ctx, `
		SELECT e.id, e.kind, e.name, e.fields, e.created_at, e.updated_at
		FROM links l
		JOIN entities e ON e.id = l.target_id
		WHERE l.owner_id = ? AND l.relation = ?
		ORDER BY l.created_at ASC, e.id ASC
	`, ownerID, relation)
}

// LinksFrom returns every link owned by ownerID.
func (s *Store) LinksFrom(ctx context.Context, ownerID string) ([]*models.Link, error) {
	return s.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM links WHERE owner_id = ? ORDER BY relation, created_at
	`, ownerID)
}

// LinksTo returns every link pointing at targetID, optionally filtered by relation.
func (s *Store) LinksTo(ctx context.Context, targetID, relation string) ([]*models.Link, error) {
	if relation == "" {
		return s.queryLinks(ctx, `
			SELECT `+linkColumns+` FROM links WHERE target_id = ? ORDER BY relation, created_at
		`, targetID)
	}
	return s.queryLinks(ctx, `
		SELECT `+linkColumns+` FROM links WHERE target_id = ? AND relation = ? ORDER BY created_at
	`, targetID, relation)
}

// CountLinks returns the number of link rows.
func (s *Store) CountLinks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links`).Scan(&n); err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...interface{}) ([]*models.Link, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	links := make([]*models.Link, 0)
	for rows.Next() {
		var l models.Link
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Relation, &l.TargetID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, classify(err)
		}
		links = append(links, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return links, nil
}
