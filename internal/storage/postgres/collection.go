package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"webpub/internal/models"
	"webpub/internal/storage"
)

// Collection keeps one resource kind as JSONB rows of the resources table.
type Collection[E any, PT interface {
	*E
	models.Entity
}] struct {
	s    *Storage
	kind string
}

func NewCollection[E any, PT interface {
	*E
	models.Entity
}](s *Storage, kind string) *Collection[E, PT] {
	return &Collection[E, PT]{s: s, kind: kind}
}

func (c *Collection[E, PT]) List(ctx context.Context, owner string) ([]PT, error) {
	const op = "storage.postgres.Collection.List"

	const query = `
		SELECT data
		FROM resources
		WHERE kind = $1 AND owner_id::text = $2
		ORDER BY created_at;
	`

	rows, err := c.s.pool.Query(ctx, query, c.kind, owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]PT, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		item, err := c.decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (c *Collection[E, PT]) Get(ctx context.Context, owner, id string) (PT, error) {
	const op = "storage.postgres.Collection.Get"

	const query = `
		SELECT data
		FROM resources
		WHERE kind = $1 AND id::text = $2 AND owner_id::text = $3;
	`

	rows, err := c.s.pool.Query(ctx, query, c.kind, id, owner)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return nil, storage.ErrNotFound
	}

	var raw []byte
	if err := rows.Scan(&raw); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return c.decode(raw)
}

// Create serialises inserts per owner and kind with a transaction-scoped advisory lock,
// so the limit holds under concurrent requests.
func (c *Collection[E, PT]) Create(ctx context.Context, item PT, limit int) error {
	const op = "storage.postgres.Collection.Create"

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tx, err := c.s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if limit > 0 {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, c.kind+":"+item.Owner()); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		var n int
		const count = `SELECT COUNT(*) FROM resources WHERE kind = $1 AND owner_id::text = $2`
		if err := tx.QueryRow(ctx, count, c.kind, item.Owner()).Scan(&n); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if n >= limit {
			return storage.ErrLimitReached
		}
	}

	const query = `
		INSERT INTO resources (kind, id, owner_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5);
	`

	if _, err := tx.Exec(ctx, query, c.kind, item.ResourceID(), item.Owner(), raw, item.Created()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (c *Collection[E, PT]) Update(ctx context.Context, item PT) error {
	const op = "storage.postgres.Collection.Update"

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	const query = `
		UPDATE resources
		SET data = $1
		WHERE kind = $2 AND id::text = $3 AND owner_id::text = $4;
	`

	tag, err := c.s.pool.Exec(ctx, query, raw, c.kind, item.ResourceID(), item.Owner())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (c *Collection[E, PT]) Delete(ctx context.Context, owner, id string) error {
	const op = "storage.postgres.Collection.Delete"

	const query = `DELETE FROM resources WHERE kind = $1 AND id::text = $2 AND owner_id::text = $3`

	tag, err := c.s.pool.Exec(ctx, query, c.kind, id, owner)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (c *Collection[E, PT]) decode(raw []byte) (PT, error) {
	item := PT(new(E))
	if err := json.Unmarshal(raw, item); err != nil {
		return nil, err
	}

	return item, nil
}
