package repository

import (
	"context"

	"union-registry/backend/internal/filing/domain"
)

// Repository persists financial requests and their documents.
type Repository interface {
	CreateRequest(ctx context.Context, req *domain.FinancialRequest) error
	CreateDocument(ctx context.Context, doc *domain.Document) error
	// LatestForUnion returns the newest request of the union with its documents, or nil if it has none.
	LatestForUnion(ctx context.Context, unionID string) (*domain.FinancialRequest, error)
}
