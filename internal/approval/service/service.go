// Package service applies administrative decisions to union registrations.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"union-registry/backend/internal/approval"
	"union-registry/backend/internal/auditlog"
	"union-registry/backend/internal/platform/metrics"
	"union-registry/backend/internal/telemetry"
	uniondomain "union-registry/backend/internal/union/domain"
)

var (
	ErrUnknownAction     = approval.ErrUnknownAction
	ErrInvalidTransition = approval.ErrInvalidTransition
	ErrUnionNotFound     = uniondomain.ErrNotFound
)

const eventSource = "approval"

// UnionRepo is the minimal union repository needed to record a decision.
type UnionRepo interface {
	GetByIDForUpdate(ctx context.Context, id string) (*uniondomain.Union, error)
	UpdateDecision(ctx context.Context, u *uniondomain.Union) error
}

// TxRunner runs fn with a UnionRepo bound to a single transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(UnionRepo) error) error
}

// Service records approve / reject decisions.
type Service struct {
	tx       TxRunner
	activity auditlog.Recorder
	metrics  *metrics.Metrics
	events   telemetry.EventEmitter
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService returns a Service. activity, m and events may be nil.
func NewService(tx TxRunner, activity auditlog.Recorder, m *metrics.Metrics, events telemetry.EventEmitter, logger *zap.Logger) *Service {
	if activity == nil {
		activity = auditlog.NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tx:       tx,
		activity: activity,
		metrics:  m,
		events:   events,
		logger:   logger,
		tracer:   otel.Tracer("union-registry/approval"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Decide applies action to the union. Approval stamps approved_at; rejection stamps rejected_at and
// stores comment as the reason, leaving approved_at as it was.
func (s *Service) Decide(ctx context.Context, adminPrincipalID, unionID, action, comment string) (_ *uniondomain.Union, err error) {
	ctx, span := s.tracer.Start(ctx, "approval.Decide", trace.WithAttributes(
		attribute.String("union.id", unionID), attribute.String("approval.action", action)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	a, err := approval.ParseAction(action)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(unionID); err != nil {
		return nil, ErrUnionNotFound
	}
	var decided *uniondomain.Union
	err = s.tx.RunInTx(ctx, func(repo UnionRepo) error {
		u, err := repo.GetByIDForUpdate(ctx, unionID)
		if err != nil {
			return err
		}
		if u == nil {
			return ErrUnionNotFound
		}
		to, err := approval.Next(u.RegistrationStatus, a)
		if err != nil {
			return err
		}
		now := s.now()
		u.RegistrationStatus = to
		switch a {
		case approval.ActionApprove:
			u.ApprovedAt = &now
		case approval.ActionReject:
			u.RejectedAt = &now
			u.RejectionReason = comment
		}
		if err := repo.UpdateDecision(ctx, u); err != nil {
			return err
		}
		decided = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDecision(string(a))
	logAction := auditlog.ActionUnionApproved
	if a == approval.ActionReject {
		logAction = auditlog.ActionUnionRejected
	}
	meta := map[string]any{"status": string(decided.RegistrationStatus)}
	if comment != "" {
		meta["comment"] = comment
	}
	s.activity.Record(ctx, adminPrincipalID, logAction, auditlog.ResourceUnion, decided.ID, meta)
	ev := telemetry.NewEvent(telemetry.EventUnionDecided, eventSource)
	ev.ActorID, ev.UnionID = adminPrincipalID, decided.ID
	telemetry.EmitAsync(s.events, s.logger, ev.With("action", string(a)).With("status", string(decided.RegistrationStatus)))
	return decided, nil
}
