package repository

import (
	"context"

	"union-registry/backend/internal/auditlog/domain"
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Resource   string
	ResourceID string
	ActorID    string
}

// Repository defines persistence for activity log entries.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	List(ctx context.Context, f Filter, limit, offset int32) ([]*domain.Entry, error)
}
