package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"union-registry/backend/internal/auditlog"
	"union-registry/backend/internal/db"
	"union-registry/backend/internal/platform/metrics"
	"union-registry/backend/internal/telemetry"
	"union-registry/backend/internal/union/domain"
	"union-registry/backend/internal/union/repository"
)

// Sentinel errors for the registry; the HTTP handler maps them to status codes.
var (
	ErrAlreadyRegistered = errors.New("a union is already registered for this account")
	ErrDuplicateField    = errors.New("economic code or registration code is already in use")
	ErrUnionNotFound     = domain.ErrNotFound
	ErrValidation        = domain.ErrValidation
)

const eventSource = "union"

// UnionRepo is the minimal union repository needed by the registry.
type UnionRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Union, error)
	GetByOwner(ctx context.Context, ownerIdentityID string) (*domain.Union, error)
	ExistsForOwner(ctx context.Context, ownerIdentityID string) (bool, error)
	List(ctx context.Context) ([]*domain.Union, error)
	Create(ctx context.Context, u *domain.Union) error
}

// RegisterInput is the caller-supplied registration form.
type RegisterInput struct {
	Name         string
	HeadOfUnion  string
	Region       string
	EconomicCode string
	Code         string
	FiscalYear   string
}

// RegistryService registers unions and looks them up.
type RegistryService struct {
	repo     UnionRepo
	activity auditlog.Recorder
	metrics  *metrics.Metrics
	events   telemetry.EventEmitter
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistryService returns a RegistryService. activity, m and events may be nil.
func NewRegistryService(repo UnionRepo, activity auditlog.Recorder, m *metrics.Metrics, events telemetry.EventEmitter, logger *zap.Logger) *RegistryService {
	if activity == nil {
		activity = auditlog.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistryService{
		repo:     repo,
		activity: activity,
		metrics:  m,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register creates a pending union owned by ownerIdentityID. An identity may own only one union.
func (s *RegistryService) Register(ctx context.Context, ownerIdentityID, actorID string, in RegisterInput) (*domain.Union, error) {
	exists, err := s.repo.ExistsForOwner(ctx, ownerIdentityID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyRegistered
	}
	now := s.now()
	u := &domain.Union{
		ID:              uuid.New().String(),
		OwnerIdentityID: ownerIdentityID,
		Name:            in.Name,
		HeadOfUnion:     in.HeadOfUnion,
		Region:          in.Region,
		EconomicCode:    in.EconomicCode,
		Code:            in.Code,
		FiscalYear:      in.FiscalYear,
		SubmittedAt:     now,
		CreatedAt:       now,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, u); err != nil {
		switch db.ViolatedConstraint(err) {
		case repository.ConstraintOwner:
			return nil, ErrAlreadyRegistered
		case repository.ConstraintEconomicCode, repository.ConstraintCode:
			return nil, ErrDuplicateField
		}
		return nil, err
	}
	s.metrics.IncUnionsRegistered()
	s.activity.Record(ctx, actorID, auditlog.ActionUnionRegistered, auditlog.ResourceUnion, u.ID,
		map[string]any{"name": u.Name, "code": u.Code})
	ev := telemetry.NewEvent(telemetry.EventUnionRegistered, eventSource)
	ev.ActorID, ev.UnionID = actorID, u.ID
	telemetry.EmitAsync(s.events, s.logger, ev.With("region", u.Region))
	return u, nil
}

// GetByOwner returns the union owned by the identity.
func (s *RegistryService) GetByOwner(ctx context.Context, ownerIdentityID string) (*domain.Union, error) {
	u, err := s.repo.GetByOwner(ctx, ownerIdentityID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnionNotFound
	}
	return u, nil
}

// GetByID returns the union for id.
func (s *RegistryService) GetByID(ctx context.Context, id string) (*domain.Union, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrUnionNotFound
	}
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnionNotFound
	}
	return u, nil
}

// ListAll returns every union, most recently submitted first.
func (s *RegistryService) ListAll(ctx context.Context) ([]*domain.Union, error) {
	return s.repo.List(ctx)
}
