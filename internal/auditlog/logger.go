// Package auditlog records administrative and filing activity.
package auditlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"union-registry/backend/internal/auditlog/domain"
	"union-registry/backend/internal/auditlog/repository"
)

// Actions recorded in the activity log.
const (
	ActionUnionRegistered   = "union_registered"
	ActionUnionApproved     = "union_approved"
	ActionUnionRejected     = "union_rejected"
	ActionFilingSubmitted   = "filing_submitted"
	ActionDisclosureUpdated = "disclosure_updated"
)

// Resources recorded in the activity log.
const (
	ResourceUnion   = "union"
	ResourceRequest = "financial_request"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// Recorder writes a single activity entry. Record is best-effort: failures are logged and do not
// affect the caller.
type Recorder interface {
	Record(ctx context.Context, actorID, action, resource, resourceID string, metadata map[string]any)
}

// Logger implements Recorder using the activity repository and an optional IP extractor.
type Logger struct {
	repo        repository.Repository
	ipExtractor IPExtractor
	logger      *zap.Logger
}

// NewLogger returns a Logger that persists to repo. ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo repository.Repository, ipExtractor IPExtractor, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, logger: logger}
}

// Record writes one entry. Errors are logged and not returned.
func (l *Logger) Record(ctx context.Context, actorID, action, resource, resourceID string, metadata map[string]any) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	meta := ""
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			l.logger.Warn("activity: metadata not serializable", zap.String("action", action), zap.Error(err))
		} else {
			meta = string(b)
		}
	}
	entry := &domain.Entry{
		ID:         uuid.New().String(),
		ActorID:    actorID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IP:         ip,
		Metadata:   meta,
		CreatedAt:  time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Error("activity: failed to record entry",
			zap.String("action", action), zap.String("resource", resource), zap.Error(err))
	}
}

// NopRecorder discards every entry.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, string, string, string, string, map[string]any) {}
