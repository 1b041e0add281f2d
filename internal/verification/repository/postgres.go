package repository

import (
	"context"
	"database/sql"
	"time"

	"union-registry/backend/internal/db"
	"union-registry/backend/internal/verification/domain"
)

// PostgresRepository implements Repository over a DBTX (a *sql.DB or a *sql.Tx).
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a verification code repository that uses the given db.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the code. The code must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Code) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO verification_codes (id, phone_number, code_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PhoneNumber, c.CodeHash, c.CreatedAt, c.ExpiresAt)
	return err
}

// ListActiveForUpdate returns unconsumed, unexpired codes for phone, newest first.
func (r *PostgresRepository) ListActiveForUpdate(ctx context.Context, phone string, now time.Time) ([]*domain.Code, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, phone_number, code_hash, created_at, expires_at, consumed_at
		   FROM verification_codes
		  WHERE phone_number = $1 AND consumed_at IS NULL AND expires_at > $2
		  ORDER BY created_at DESC
		  FOR UPDATE`,
		phone, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Code
	for rows.Next() {
		var (
			c        domain.Code
			consumed sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.PhoneNumber, &c.CodeHash, &c.CreatedAt, &c.ExpiresAt, &consumed); err != nil {
			return nil, err
		}
		if consumed.Valid {
			c.ConsumedAt = &consumed.Time
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// MarkConsumed sets consumed_at if the code has not been consumed yet.
func (r *PostgresRepository) MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE verification_codes SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`,
		id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
