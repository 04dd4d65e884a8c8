// ABOUTME: Entity persistence for the sync store
// ABOUTME: Upserts entities with JSON field bags and looks them up by field criteria
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/crmsync/models"
)

const entityColumns = `id, kind, name, fields, created_at, updated_at`

// Save inserts a new entity (empty ID) or updates an existing one. An update
// that changes nothing leaves updated_at alone.
func (s *Store) Save(ctx context.Context, e *models.Entity) error {
	if e == nil || e.Kind == "" {
		return ErrInvalidEntity
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: %s requires a name", ErrInvalidEntity, e.Kind)
	}
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}

	fieldsJSON, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntity, err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)

	if e.ID == "" {
		id := uuid.New().String()
		_, err := s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO entities (id, kind, name, fields, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`), id, string(e.Kind), e.Name, string(fieldsJSON), now, now)
		if err != nil {
			return classify(err)
		}
		e.ID = id
		e.CreatedAt = now
		e.UpdatedAt = now
		return nil
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE entities
		SET name = ?, fields = ?, updated_at = ?
		WHERE id = ? AND kind = ? AND (name <> ? OR fields <> ?)
	`), e.Name, string(fieldsJSON), now, e.ID, string(e.Kind), e.Name, string(fieldsJSON))
	if err != nil {
		return classify(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if rows > 0 {
		e.UpdatedAt = now
		return nil
	}

	// Nothing changed, or the row is missing.
	current, err := s.Get(ctx, e.ID)
	if err != nil {
		return err
	}
	if current.Kind != e.Kind {
		return fmt.Errorf("%w: %s is a %s, not a %s", ErrInvalidEntity, e.ID, current.Kind, e.Kind)
	}
	e.CreatedAt = current.CreatedAt
	e.UpdatedAt = current.UpdatedAt
	return nil
}

// Get retrieves an entity by local ID.
func (s *Store) Get(ctx context.Context, id string) (*models.Entity, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+entityColumns+` FROM entities WHERE id = ?`), id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return e, nil
}

// Find returns entities of a kind matching every criterion, oldest first.
func (s *Store) Find(ctx context.Context, kind models.Kind, criteria ...models.Criterion) ([]*models.Entity, error) {
	query := `SELECT ` + entityColumns + ` FROM entities WHERE kind = ?`
	args := []interface{}{string(kind)}

	for _, c := range criteria {
		expr, err := s.fieldExpr(c.Field)
		if err != nil {
			return nil, err
		}
		if c.IgnoreCase {
			query += ` AND LOWER(` + expr + `) = LOWER(?)`
		} else {
			query += ` AND ` + expr + ` = ?`
		}
		args = append(args, c.Value)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	return s.queryEntities(ctx, query, args...)
}

// List returns every entity of a kind.
func (s *Store) List(ctx context.Context, kind models.Kind) ([]*models.Entity, error) {
	return s.Find(ctx, kind)
}

// ModifiedSince returns entities of a kind updated strictly after since.
func (s *Store) ModifiedSince(ctx context.Context, kind models.Kind, since time.Time) ([]*models.Entity, error) {
	return s.queryEntities(ctx, `
		SELECT `+entityColumns+`
		FROM entities
		WHERE kind = ? AND updated_at > ?
		ORDER BY updated_at ASC, id ASC
	`, string(kind), since.UTC())
}

// Count returns how many entities of a kind exist.
func (s *Store) Count(ctx context.Context, kind models.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM entities WHERE kind = ?`), string(kind)).Scan(&n)
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// CountAll returns entity counts for every kind.
func (s *Store) CountAll(ctx context.Context) (map[models.Kind]int, error) {
	counts := make(map[models.Kind]int, len(models.AllKinds))
	for _, kind := range models.AllKinds {
		n, err := s.Count(ctx, kind)
		if err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*models.Entity, error) {
	var e models.Entity
	var kind string
	var fieldsJSON []byte

	if err := row.Scan(&e.ID, &kind, &e.Name, &fieldsJSON, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Kind = models.Kind(kind)

	e.Fields = make(map[string]string)
	if len(fieldsJSON) > 0 && string(fieldsJSON) != "null" {
		if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", e.ID, err)
		}
	}
	return &e, nil
}

func (s *Store) queryEntities(ctx context.Context, query string, args ...interface{}) ([]*models.Entity, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()

	entities := make([]*models.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, classify(err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return entities, nil
}
