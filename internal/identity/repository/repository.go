package repository

import (
	"context"

	"union-registry/backend/internal/identity/domain"
)

// Repository defines persistence for identities.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Identity, error)
	// GetByPhoneForUpdate is GetByPhone with a row lock when run inside a transaction.
	GetByPhoneForUpdate(ctx context.Context, phone string) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
	// MarkVerified sets verified=true and links userID. Role is left unchanged.
	MarkVerified(ctx context.Context, id, userID string) error
	// Promote sets the role (used for the bootstrap admin).
	Promote(ctx context.Context, id string, role domain.Role) error
}
