package repository

import (
	"context"

	"union-registry/backend/internal/disclosure"
	"union-registry/backend/internal/union/domain"
)

// Repository defines persistence for unions.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Union, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Union, error)
	GetByOwner(ctx context.Context, ownerIdentityID string) (*domain.Union, error)
	ExistsForOwner(ctx context.Context, ownerIdentityID string) (bool, error)
	List(ctx context.Context) ([]*domain.Union, error)
	Create(ctx context.Context, u *domain.Union) error
	UpdateDisclosure(ctx context.Context, id string, snapshot *disclosure.Snapshot, status disclosure.AuditStatus) error
	UpdateDecision(ctx context.Context, u *domain.Union) error
}
