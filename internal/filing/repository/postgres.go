package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"union-registry/backend/internal/db"
	"union-registry/backend/internal/disclosure"
	"union-registry/backend/internal/filing/domain"
)

// PostgresRepository implements Repository over a DBTX.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a filing repository that uses the given db for persistence.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// CreateRequest inserts the request row. Documents are inserted separately.
func (r *PostgresRepository) CreateRequest(ctx context.Context, req *domain.FinancialRequest) error {
	var financial any
	if req.FinancialData != nil {
		b, err := json.Marshal(req.FinancialData)
		if err != nil {
			return fmt.Errorf("marshal financial data: %w", err)
		}
		financial = string(b)
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO financial_requests (id, union_id, financial_data, is_approved, approval_comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		req.ID, req.UnionID, financial, req.IsApproved, req.ApprovalComment, req.CreatedAt)
	return err
}

// CreateDocument inserts one document row.
func (r *PostgresRepository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	var uploadedBy any
	if doc.UploadedBy != "" {
		uploadedBy = doc.UploadedBy
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, request_id, category, file_ref, file_name, content_type, size_bytes, uploaded_by, position, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID, doc.RequestID, string(doc.Category), doc.FileRef, doc.FileName, doc.ContentType,
		doc.Size, uploadedBy, doc.Position, doc.UploadedAt)
	return err
}

// LatestForUnion returns the newest request for the union, or nil if there is none.
func (r *PostgresRepository) LatestForUnion(ctx context.Context, unionID string) (*domain.FinancialRequest, error) {
	var (
		req       domain.FinancialRequest
		financial []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, union_id, financial_data, is_approved, approval_comment, created_at
		 FROM financial_requests WHERE union_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`, unionID).
		Scan(&req.ID, &req.UnionID, &financial, &req.IsApproved, &req.ApprovalComment, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if req.FinancialData, err = disclosure.ParseSnapshot(financial); err != nil {
		return nil, fmt.Errorf("request %s financial_data: %w", req.ID, err)
	}
	if req.Documents, err = r.documents(ctx, req.ID); err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *PostgresRepository) documents(ctx context.Context, requestID string) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, request_id, category, file_ref, file_name, content_type, size_bytes,
		 COALESCE(uploaded_by::text, ''), position, uploaded_at
		 FROM documents WHERE request_id = $1 ORDER BY position`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Document
	for rows.Next() {
		var (
			d        domain.Document
			category string
		)
		if err := rows.Scan(&d.ID, &d.RequestID, &category, &d.FileRef, &d.FileName, &d.ContentType,
			&d.Size, &d.UploadedBy, &d.Position, &d.UploadedAt); err != nil {
			return nil, err
		}
		d.Category = domain.Category(category)
		out = append(out, &d)
	}
	return out, rows.Err()
}
