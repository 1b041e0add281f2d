package repository

import (
	"context"
	"time"

	"union-registry/backend/internal/verification/domain"
)

// Repository defines persistence for verification codes.
type Repository interface {
	// Create stores a newly issued code. Older codes for the same phone are left untouched.
	Create(ctx context.Context, c *domain.Code) error
	// ListActiveForUpdate returns the phone's unconsumed codes that expire after now, newest first,
	// locking the rows when run inside a transaction.
	ListActiveForUpdate(ctx context.Context, phone string, now time.Time) ([]*domain.Code, error)
	// MarkConsumed sets consumed_at on an unconsumed code. Returns false if it was already consumed.
	MarkConsumed(ctx context.Context, id string, at time.Time) (bool, error)
}
