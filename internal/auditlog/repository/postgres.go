package repository

import (
	"context"
	"database/sql"

	"union-registry/backend/internal/auditlog/domain"
	"union-registry/backend/internal/db"
)

// PostgresRepository implements Repository over a DBTX.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an activity log repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	meta := sql.NullString{String: e.Metadata, Valid: e.Metadata != ""}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_logs (id, actor_id, action, resource, resource_id, ip, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ActorID, e.Action, e.Resource, e.ResourceID, e.IP, meta, e.CreatedAt)
	return err
}

// List returns entries matching f, newest first, paginated by limit and offset.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) List(ctx context.Context, f Filter, limit, offset int32) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, actor_id, action, resource, resource_id, ip, COALESCE(metadata::text, ''), created_at
		 FROM activity_logs
		 WHERE ($1 = '' OR resource = $1) AND ($2 = '' OR resource_id = $2) AND ($3 = '' OR actor_id = $3)
		 ORDER BY created_at DESC, id
		 LIMIT $4 OFFSET $5`,
		f.Resource, f.ResourceID, f.ActorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Entry
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Resource, &e.ResourceID, &e.IP, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
