// Package service applies financial disclosures to unions and derives their audit status.
package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"union-registry/backend/internal/auditlog"
	"union-registry/backend/internal/disclosure"
	"union-registry/backend/internal/platform/metrics"
	"union-registry/backend/internal/telemetry"
	uniondomain "union-registry/backend/internal/union/domain"
)

var (
	ErrFinancialDataRequired = errors.New("financial data required")
	ErrUnionNotFound         = uniondomain.ErrNotFound
)

const eventSource = "disclosure"

// UnionRepo is the minimal union repository needed to apply a disclosure.
type UnionRepo interface {
	GetByIDForUpdate(ctx context.Context, id string) (*uniondomain.Union, error)
	GetByOwner(ctx context.Context, ownerIdentityID string) (*uniondomain.Union, error)
	UpdateDisclosure(ctx context.Context, id string, snapshot *disclosure.Snapshot, status disclosure.AuditStatus) error
}

// Service stores disclosures on unions. The audit decision comes from one shared Policy.
type Service struct {
	repo     UnionRepo
	policy   disclosure.Policy
	activity auditlog.Recorder
	metrics  *metrics.Metrics
	events   telemetry.EventEmitter
	logger   *zap.Logger
}

// NewService returns a Service. policy defaults to disclosure.ThresholdPolicy.
func NewService(repo UnionRepo, policy disclosure.Policy, activity auditlog.Recorder, m *metrics.Metrics, events telemetry.EventEmitter, logger *zap.Logger) *Service {
	if policy == nil {
		policy = disclosure.ThresholdPolicy{}
	}
	if activity == nil {
		activity = auditlog.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, policy: policy, activity: activity, metrics: m, events: events, logger: logger}
}

// WithRepo returns a copy of s that persists through repo, e.g. a repository bound to a transaction.
func (s *Service) WithRepo(repo UnionRepo) *Service {
	c := *s
	c.repo = repo
	return &c
}

// Policy returns the audit policy shared by every caller.
func (s *Service) Policy() disclosure.Policy {
	return s.policy
}

// ApplyDisclosure stores snapshot as the union's financial data and sets its audit status from the
// policy. Returns the updated union. The audit determination metric is left to the caller, which
// counts it once the write is committed.
func (s *Service) ApplyDisclosure(ctx context.Context, unionID string, snapshot *disclosure.Snapshot) (*uniondomain.Union, error) {
	if snapshot.IsEmpty() {
		return nil, ErrFinancialDataRequired
	}
	u, err := s.repo.GetByIDForUpdate(ctx, unionID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnionNotFound
	}
	status := s.policy.Decide(ctx, snapshot)
	if err := s.repo.UpdateDisclosure(ctx, u.ID, snapshot, status); err != nil {
		return nil, err
	}
	u.FinancialData = snapshot
	u.AuditStatus = status
	return u, nil
}

// UpdateOwnDisclosure applies a standalone correction to the union owned by ownerIdentityID.
func (s *Service) UpdateOwnDisclosure(ctx context.Context, ownerIdentityID, actorID string, snapshot *disclosure.Snapshot) (*uniondomain.Union, error) {
	if snapshot.IsEmpty() {
		return nil, ErrFinancialDataRequired
	}
	owned, err := s.repo.GetByOwner(ctx, ownerIdentityID)
	if err != nil {
		return nil, err
	}
	if owned == nil {
		return nil, ErrUnionNotFound
	}
	u, err := s.ApplyDisclosure(ctx, owned.ID, snapshot)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveAuditDetermination(string(u.AuditStatus))
	s.activity.Record(ctx, actorID, auditlog.ActionDisclosureUpdated, auditlog.ResourceUnion, u.ID,
		map[string]any{"audit_status": string(u.AuditStatus)})
	ev := telemetry.NewEvent(telemetry.EventDisclosureUpdated, eventSource)
	ev.ActorID, ev.UnionID = actorID, u.ID
	telemetry.EmitAsync(s.events, s.logger, ev.With("audit_status", string(u.AuditStatus)))
	return u, nil
}
