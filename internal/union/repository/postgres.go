package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"union-registry/backend/internal/db"
	"union-registry/backend/internal/disclosure"
	"union-registry/backend/internal/union/domain"
)

// Constraint names the service maps to domain errors.
const (
	ConstraintOwner        = "unions_owner_identity_id_key"
	ConstraintEconomicCode = "unions_economic_code_key"
	ConstraintCode         = "unions_code_key"
)

// PostgresRepository implements Repository over a DBTX.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a union repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

const selectUnion = `SELECT u.id, u.owner_identity_id, COALESCE(i.phone_number, ''), u.name, u.head_of_union, u.region,
	u.economic_code, u.code, u.fiscal_year, u.audit_status, u.registration_status, u.submitted_at,
	u.approved_at, u.rejected_at, u.rejection_reason, u.financial_data, u.created_at
	FROM unions u LEFT JOIN identities i ON i.id = u.owner_identity_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnion(row rowScanner) (*domain.Union, error) {
	var (
		u          domain.Union
		audit      string
		reg        string
		approvedAt sql.NullTime
		rejectedAt sql.NullTime
		financial  []byte
	)
	err := row.Scan(&u.ID, &u.OwnerIdentityID, &u.OwnerPhone, &u.Name, &u.HeadOfUnion, &u.Region,
		&u.EconomicCode, &u.Code, &u.FiscalYear, &audit, &reg, &u.SubmittedAt,
		&approvedAt, &rejectedAt, &u.RejectionReason, &financial, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.AuditStatus = disclosure.AuditStatus(audit)
	u.RegistrationStatus = domain.RegistrationStatus(reg)
	if approvedAt.Valid {
		t := approvedAt.Time
		u.ApprovedAt = &t
	}
	if rejectedAt.Valid {
		t := rejectedAt.Time
		u.RejectedAt = &t
	}
	if u.FinancialData, err = disclosure.ParseSnapshot(financial); err != nil {
		return nil, fmt.Errorf("union %s financial_data: %w", u.ID, err)
	}
	return &u, nil
}

// GetByID returns the union for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Union, error) {
	return r.getOne(ctx, selectUnion+` WHERE u.id = $1`, id)
}

// GetByIDForUpdate is GetByID with a row lock on the union.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Union, error) {
	return r.getOne(ctx, selectUnion+` WHERE u.id = $1 FOR UPDATE OF u`, id)
}

// GetByOwner returns the union owned by the identity, or nil if it has none.
func (r *PostgresRepository) GetByOwner(ctx context.Context, ownerIdentityID string) (*domain.Union, error) {
	return r.getOne(ctx, selectUnion+` WHERE u.owner_identity_id = $1`, ownerIdentityID)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*domain.Union, error) {
	u, err := scanUnion(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// ExistsForOwner reports whether the identity already owns a union.
func (r *PostgresRepository) ExistsForOwner(ctx context.Context, ownerIdentityID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM unions WHERE owner_identity_id = $1)`, ownerIdentityID).Scan(&exists)
	return exists, err
}

// List returns every union, most recently submitted first.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Union, error) {
	rows, err := r.db.QueryContext(ctx, selectUnion+` ORDER BY u.submitted_at DESC, u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Union
	for rows.Next() {
		u, err := scanUnion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Create persists the union. The union must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.Union) error {
	financial, err := marshalSnapshot(u.FinancialData)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO unions (id, owner_identity_id, name, head_of_union, region, economic_code, code, fiscal_year,
		 audit_status, registration_status, submitted_at, approved_at, rejected_at, rejection_reason, financial_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		u.ID, u.OwnerIdentityID, u.Name, u.HeadOfUnion, u.Region, u.EconomicCode, u.Code, u.FiscalYear,
		string(u.AuditStatus), string(u.RegistrationStatus), u.SubmittedAt, u.ApprovedAt, u.RejectedAt,
		u.RejectionReason, financial, u.CreatedAt)
	return err
}

// UpdateDisclosure stores the snapshot as the union's financial data together with its audit status.
func (r *PostgresRepository) UpdateDisclosure(ctx context.Context, id string, snapshot *disclosure.Snapshot, status disclosure.AuditStatus) error {
	financial, err := marshalSnapshot(snapshot)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE unions SET financial_data = $2, audit_status = $3 WHERE id = $1`,
		id, financial, string(status))
	return err
}

// UpdateDecision writes the registration status fields of u.
func (r *PostgresRepository) UpdateDecision(ctx context.Context, u *domain.Union) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE unions SET registration_status = $2, approved_at = $3, rejected_at = $4, rejection_reason = $5 WHERE id = $1`,
		u.ID, string(u.RegistrationStatus), u.ApprovedAt, u.RejectedAt, u.RejectionReason)
	return err
}

func marshalSnapshot(s *disclosure.Snapshot) (any, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal financial data: %w", err)
	}
	return string(b), nil
}
