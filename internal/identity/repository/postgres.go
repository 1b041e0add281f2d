package repository

import (
	"context"
	"database/sql"
	"errors"

	"union-registry/backend/internal/db"
	"union-registry/backend/internal/identity/domain"
)

// PostgresRepository implements Repository over a DBTX.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const selectIdentity = `SELECT id, phone_number, national_id, is_verified, role, user_id, created_at FROM identities`

// GetByID returns the identity for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.getOne(ctx, selectIdentity+` WHERE id = $1`, id)
}

// GetByPhone returns the identity for phone, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.Identity, error) {
	return r.getOne(ctx, selectIdentity+` WHERE phone_number = $1`, phone)
}

// GetByPhoneForUpdate returns the identity for phone with FOR UPDATE, or nil if not found.
func (r *PostgresRepository) GetByPhoneForUpdate(ctx context.Context, phone string) (*domain.Identity, error) {
	return r.getOne(ctx, selectIdentity+` WHERE phone_number = $1 FOR UPDATE`, phone)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.Identity, error) {
	var (
		i          domain.Identity
		nationalID sql.NullString
		userID     sql.NullString
		role       string
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&i.ID, &i.PhoneNumber, &nationalID, &i.Verified, &role, &userID, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	i.NationalID = nationalID.String
	i.UserID = userID.String
	i.Role = domain.Role(role)
	return &i, nil
}

// Create persists the identity. The identity must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	role := i.Role
	if role == "" {
		role = domain.RoleUnion
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, phone_number, national_id, is_verified, role, user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		i.ID, i.PhoneNumber, nullString(i.NationalID), i.Verified, string(role), nullString(i.UserID), i.CreatedAt)
	return err
}

// MarkVerified sets is_verified and links user_id, keeping an existing link.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET is_verified = TRUE, user_id = COALESCE(user_id, $2) WHERE id = $1`,
		id, nullString(userID))
	return err
}

// Promote sets role for id.
func (r *PostgresRepository) Promote(ctx context.Context, id string, role domain.Role) error {
	_, err := r.db.ExecContext(ctx, `UPDATE identities SET role = $2 WHERE id = $1`, id, string(role))
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
