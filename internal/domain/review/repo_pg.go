package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type snapshotStorePG struct{ pool *pgxpool.Pool }

// NewSnapshotStorePG stores snapshots as JSONB rows in review_snapshot and
// review_undo.
func NewSnapshotStorePG(pool *pgxpool.Pool) SnapshotStore {
	return &snapshotStorePG{pool: pool}
}

func (r *snapshotStorePG) conn() queryable {
	return r.pool
}

func (r *snapshotStorePG) Save(ctx context.Context, snap *Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.conn().Exec(ctx, `
		INSERT INTO review_snapshot (id, doc, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		snap.ID, doc, snap.CreatedAt, snap.UpdatedAt)
	return err
}

func (r *snapshotStorePG) Load(ctx context.Context, id string) (*Snapshot, error) {
	return r.scan(r.conn().QueryRow(ctx, `SELECT doc FROM review_snapshot WHERE id = $1`, id))
}

func (r *snapshotStorePG) Delete(ctx context.Context, id string) error {
	if _, err := r.conn().Exec(ctx, `DELETE FROM review_undo WHERE id = $1`, id); err != nil {
		return err
	}
	_, err := r.conn().Exec(ctx, `DELETE FROM review_snapshot WHERE id = $1`, id)
	return err
}

func (r *snapshotStorePG) List(ctx context.Context, limit, offset int) ([]*Snapshot, int, error) {
	var total int
	if err := r.conn().QueryRow(ctx, `SELECT COUNT(*) FROM review_snapshot`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn().Query(ctx, `SELECT doc FROM review_snapshot ORDER BY updated_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Snapshot
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *snapshotStorePG) SaveUndo(ctx context.Context, snap *Snapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = r.conn().Exec(ctx, `
		INSERT INTO review_undo (id, doc, captured_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, captured_at = NOW()`,
		snap.ID, doc)
	return err
}

func (r *snapshotStorePG) LoadUndo(ctx context.Context, id string) (*Snapshot, error) {
	return r.scan(r.conn().QueryRow(ctx, `SELECT doc FROM review_undo WHERE id = $1`, id))
}

func (r *snapshotStorePG) DeleteUndo(ctx context.Context, id string) error {
	_, err := r.conn().Exec(ctx, `DELETE FROM review_undo WHERE id = $1`, id)
	return err
}

func (r *snapshotStorePG) scan(row pgx.Row) (*Snapshot, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeSnapshot(doc)
}
