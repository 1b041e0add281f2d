// Package service implements submission of financial requests with their documents.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"union-registry/backend/internal/auditlog"
	"union-registry/backend/internal/blob"
	"union-registry/backend/internal/disclosure"
	disclosureservice "union-registry/backend/internal/disclosure/service"
	"union-registry/backend/internal/filing/domain"
	"union-registry/backend/internal/platform/metrics"
	"union-registry/backend/internal/telemetry"
	uniondomain "union-registry/backend/internal/union/domain"
)

var (
	ErrCategoryCountMismatch = domain.ErrCategoryCountMismatch
	ErrInvalidCategory       = domain.ErrInvalidCategory
	ErrUnionNotFound         = uniondomain.ErrNotFound
	ErrUnionNotEligible      = errors.New("union not found or not approved")
	ErrRequestNotFound       = errors.New("no financial request has been submitted")
)

const eventSource = "filing"

// RequestRepo is the minimal filing repository needed by the service.
type RequestRepo interface {
	CreateRequest(ctx context.Context, req *domain.FinancialRequest) error
	CreateDocument(ctx context.Context, doc *domain.Document) error
	LatestForUnion(ctx context.Context, unionID string) (*domain.FinancialRequest, error)
}

// UnionReader looks up the union a submission belongs to.
type UnionReader interface {
	GetByID(ctx context.Context, id string) (*uniondomain.Union, error)
	GetByOwner(ctx context.Context, ownerIdentityID string) (*uniondomain.Union, error)
}

// Stores are the repositories bound to one transaction.
type Stores struct {
	Requests RequestRepo
	Unions   disclosureservice.UnionRepo
}

// TxRunner runs fn with Stores bound to a single transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(Stores) error) error
}

// SubmitInput is one filing as received from the transport. Files and Categories pair by position.
type SubmitInput struct {
	FinancialData *disclosure.Snapshot
	Files         []domain.Upload
	Categories    []string
}

// Summary is the owner's view of the latest filing.
type Summary struct {
	Name          string
	Code          string
	HeadOfUnion   string
	AuditStatus   disclosure.AuditStatus
	FinancialData *disclosure.Snapshot
}

// FilingService stores documents and records requests, applying the disclosure in the same transaction.
type FilingService struct {
	requests    RequestRepo
	unions      UnionReader
	tx          TxRunner
	blobs       blob.Store
	disclosures *disclosureservice.Service
	activity    auditlog.Recorder
	metrics     *metrics.Metrics
	events      telemetry.EventEmitter
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Options are the optional collaborators of FilingService.
type Options struct {
	Activity auditlog.Recorder
	Metrics  *metrics.Metrics
	Events   telemetry.EventEmitter
	Logger   *zap.Logger
}

// NewFilingService returns a FilingService.
func NewFilingService(requests RequestRepo, unions UnionReader, tx TxRunner, blobs blob.Store, disclosures *disclosureservice.Service, opts Options) *FilingService {
	if opts.Activity == nil {
		opts.Activity = auditlog.NopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &FilingService{
		requests:    requests,
		unions:      unions,
		tx:          tx,
		blobs:       blobs,
		disclosures: disclosures,
		activity:    opts.Activity,
		metrics:     opts.Metrics,
		events:      opts.Events,
		logger:      opts.Logger,
		tracer:      otel.Tracer("union-registry/filing"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores the uploaded files and records a request for the union owned by ownerIdentityID.
// The union row is locked and must still be approved when the transaction runs. The request, its
// documents and the disclosure are committed together; on any failure nothing is persisted and
// blobs already written are removed.
func (s *FilingService) Submit(ctx context.Context, ownerIdentityID, uploaderPrincipalID string, in SubmitInput) (_ *domain.FinancialRequest, err error) {
	ctx, span := s.tracer.Start(ctx, "filing.Submit", trace.WithAttributes(attribute.Int("filing.documents", len(in.Files))))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.metrics.ObserveFiling("failed")
		}
		span.End()
	}()

	categories, err := domain.PairUploads(in.Files, in.Categories)
	if err != nil {
		return nil, err
	}
	u, err := s.unions.GetByOwner(ctx, ownerIdentityID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnionNotFound
	}
	if !u.Approved() {
		return nil, ErrUnionNotEligible
	}
	span.SetAttributes(attribute.String("union.id", u.ID))

	now := s.now()
	req := &domain.FinancialRequest{
		ID:            uuid.New().String(),
		UnionID:       u.ID,
		FinancialData: in.FinancialData,
		CreatedAt:     now,
	}
	written := make([]string, 0, len(in.Files))
	defer func() {
		if err != nil {
			s.removeBlobs(written)
		}
	}()
	for i, f := range in.Files {
		doc, err := s.storeUpload(ctx, req, i, f, categories[i], uploaderPrincipalID, now)
		if err != nil {
			return nil, err
		}
		written = append(written, doc.FileRef)
		req.Documents = append(req.Documents, doc)
	}

	var applied *uniondomain.Union
	err = s.tx.RunInTx(ctx, func(st Stores) error {
		locked, err := st.Unions.GetByIDForUpdate(ctx, u.ID)
		if err != nil {
			return err
		}
		if !locked.Approved() {
			return ErrUnionNotEligible
		}
		if err := st.Requests.CreateRequest(ctx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		for _, doc := range req.Documents {
			if err := st.Requests.CreateDocument(ctx, doc); err != nil {
				return fmt.Errorf("create document %d: %w", doc.Position, err)
			}
		}
		if in.FinancialData.IsEmpty() {
			return nil
		}
		applied, err = s.disclosures.WithRepo(st.Unions).ApplyDisclosure(ctx, u.ID, in.FinancialData)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveFiling("submitted")
	if applied != nil {
		s.metrics.ObserveAuditDetermination(string(applied.AuditStatus))
	}
	s.activity.Record(ctx, uploaderPrincipalID, auditlog.ActionFilingSubmitted, auditlog.ResourceRequest, req.ID,
		map[string]any{"union_id": u.ID, "documents": len(req.Documents)})
	ev := telemetry.NewEvent(telemetry.EventFilingSubmitted, eventSource)
	ev.ActorID, ev.UnionID = uploaderPrincipalID, u.ID
	telemetry.EmitAsync(s.events, s.logger, ev.With("request_id", req.ID).With("documents", len(req.Documents)))
	return req, nil
}

func (s *FilingService) storeUpload(ctx context.Context, req *domain.FinancialRequest, pos int, f domain.Upload, c domain.Category, uploader string, now time.Time) (*domain.Document, error) {
	name := blob.SafeName(f.FileName)
	key := fmt.Sprintf("requests/%s/%s/%d-%s", now.Format("2006/01/02"), req.ID, pos, name)
	cr := &countingReader{r: f.Content}
	ref, err := s.blobs.Put(ctx, key, f.ContentType, cr)
	if err != nil {
		return nil, fmt.Errorf("store document %d: %w", pos, err)
	}
	size := f.Size
	if size <= 0 {
		size = cr.n
	}
	return &domain.Document{
		ID:          uuid.New().String(),
		RequestID:   req.ID,
		Category:    c,
		FileRef:     ref,
		FileName:    name,
		ContentType: f.ContentType,
		Size:        size,
		UploadedBy:  uploader,
		Position:    pos,
		UploadedAt:  now,
	}, nil
}

// removeBlobs deletes stored files after a failed submit. It runs on a fresh context so a
// cancelled request still cleans up.
func (s *FilingService) removeBlobs(refs []string) {
	if len(refs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, ref := range refs {
		if err := s.blobs.Delete(ctx, ref); err != nil {
			s.logger.Warn("filing: orphaned document blob", zap.String("ref", ref), zap.Error(err))
		}
	}
}

// LatestFor returns the union's newest request with its documents.
func (s *FilingService) LatestFor(ctx context.Context, unionID string) (*domain.FinancialRequest, error) {
	if _, err := uuid.Parse(unionID); err != nil {
		return nil, ErrUnionNotFound
	}
	req, err := s.requests.LatestForUnion(ctx, unionID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// OwnSummary returns the owner's union with the snapshot of its latest request, falling back to the
// union's own snapshot when the request carried none.
func (s *FilingService) OwnSummary(ctx context.Context, ownerIdentityID string) (*Summary, error) {
	u, err := s.unions.GetByOwner(ctx, ownerIdentityID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUnionNotFound
	}
	req, err := s.LatestFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	data := req.FinancialData
	if data.IsEmpty() {
		data = u.FinancialData
	}
	return &Summary{
		Name:          u.Name,
		Code:          u.Code,
		HeadOfUnion:   u.HeadOfUnion,
		AuditStatus:   u.AuditStatus,
		FinancialData: data,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
