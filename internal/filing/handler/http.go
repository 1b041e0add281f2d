// Package handler exposes financial request submission over HTTP.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"union-registry/backend/internal/disclosure"
	"union-registry/backend/internal/filing/domain"
	"union-registry/backend/internal/filing/service"
	"union-registry/backend/internal/platform/apierror"
	"union-registry/backend/internal/server/middleware"
)

const (
	maxUploadBytes  = 64 << 20
	maxMemoryBytes  = 16 << 20
	fieldFinancial  = "financial_data"
	fieldFiles      = "files"
	fieldCategories = "categories"
)

// FilingService is the subset of service.FilingService used by the handler.
type FilingService interface {
	Submit(ctx context.Context, ownerIdentityID, uploaderPrincipalID string, in service.SubmitInput) (*domain.FinancialRequest, error)
	LatestFor(ctx context.Context, unionID string) (*domain.FinancialRequest, error)
	OwnSummary(ctx context.Context, ownerIdentityID string) (*service.Summary, error)
}

// Handler serves request submission and the owner's filing summary.
type Handler struct {
	svc    FilingService
	logger *zap.Logger
}

// NewHandler returns a Handler.
func NewHandler(svc FilingService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// errMixedFieldNames is returned when a list field is sent under both name and name+"[]". The two
// lists have no defined relative order, so files and categories could not be paired.
var errMixedFieldNames = errors.New("form field sent as both name and name[]")

var errorRules = []apierror.Rule{
	{Err: errMixedFieldNames, Status: http.StatusBadRequest},
	{Err: disclosure.ErrMalformedSnapshot, Status: http.StatusBadRequest},
	{Err: service.ErrCategoryCountMismatch, Status: http.StatusBadRequest},
	{Err: service.ErrInvalidCategory, Status: http.StatusBadRequest},
	{Err: service.ErrUnionNotEligible, Status: http.StatusForbidden},
	{Err: service.ErrUnionNotFound, Status: http.StatusNotFound},
	{Err: service.ErrRequestNotFound, Status: http.StatusNotFound},
}

type documentView struct {
	ID          string    `json:"id"`
	File        string    `json:"file"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	Category    string    `json:"category"`
	Position    int       `json:"position"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

type requestView struct {
	ID              string               `json:"id"`
	Union           string               `json:"union"`
	FinancialData   *disclosure.Snapshot `json:"financial_data"`
	IsApproved      bool                 `json:"is_approved"`
	ApprovalComment string               `json:"approval_comment"`
	CreatedAt       time.Time            `json:"created_at"`
	Documents       []documentView       `json:"documents"`
}

func viewRequest(req *domain.FinancialRequest) requestView {
	v := requestView{
		ID:              req.ID,
		Union:           req.UnionID,
		FinancialData:   req.FinancialData,
		IsApproved:      req.IsApproved,
		ApprovalComment: req.ApprovalComment,
		CreatedAt:       req.CreatedAt,
		Documents:       make([]documentView, 0, len(req.Documents)),
	}
	for _, d := range req.Documents {
		v.Documents = append(v.Documents, documentView{
			ID:          d.ID,
			File:        d.FileRef,
			FileName:    d.FileName,
			ContentType: d.ContentType,
			Size:        d.Size,
			Category:    string(d.Category),
			Position:    d.Position,
			UploadedAt:  d.UploadedAt,
		})
	}
	return v
}

type summaryView struct {
	Name          string               `json:"name"`
	Code          string               `json:"code"`
	HeadOfUnion   string               `json:"headOfUnion"`
	AuditStatus   string               `json:"audit_status"`
	FinancialData *disclosure.Snapshot `json:"financial_data"`
}

// Create handles POST /api/requests/create. The body is multipart with a financial_data JSON field
// and parallel files / categories lists. The "[]" suffixed names are accepted too, but one field may
// not use both spellings.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok || p.IdentityID == "" {
		apierror.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierror.Message(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		apierror.Message(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	form := r.MultipartForm
	defer func() { _ = form.RemoveAll() }()

	financial, err := firstValue(form, fieldFinancial)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	headers, err := listField(form.File, fieldFiles)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	categories, err := listField(form.Value, fieldCategories)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	snapshot, err := disclosure.ParseSnapshot([]byte(financial))
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	uploads := make([]domain.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll(uploads)
			apierror.Write(w, h.logger, err)
			return
		}
		uploads = append(uploads, domain.Upload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Content:     f,
		})
	}
	defer closeAll(uploads)

	req, err := h.svc.Submit(r.Context(), p.IdentityID, p.UserID, service.SubmitInput{
		FinancialData: snapshot,
		Files:         uploads,
		Categories:    categories,
	})
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusCreated, viewRequest(req))
}

// MyRequest handles GET /api/request/my-request.
func (h *Handler) MyRequest(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r.Context())
	if !ok {
		apierror.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	sum, err := h.svc.OwnSummary(r.Context(), identityID)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, summaryView{
		Name:          sum.Name,
		Code:          sum.Code,
		HeadOfUnion:   sum.HeadOfUnion,
		AuditStatus:   string(sum.AuditStatus),
		FinancialData: sum.FinancialData,
	})
}

// Latest handles GET /api/unions/{unionID}/requests/latest for admins.
func (h *Handler) Latest(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.LatestFor(r.Context(), chi.URLParam(r, "unionID"))
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, viewRequest(req))
}

func firstValue(form *multipart.Form, name string) (string, error) {
	v, err := listField(form.Value, name)
	if err != nil || len(v) == 0 {
		return "", err
	}
	return v[0], nil
}

// listField returns the values under name or name+"[]". Sending both is rejected.
func listField[T any](m map[string][]T, name string) ([]T, error) {
	plain, hasPlain := m[name]
	bracketed, hasBracketed := m[name+"[]"]
	if hasPlain && hasBracketed {
		return nil, fmt.Errorf("%w: %s", errMixedFieldNames, name)
	}
	if hasPlain {
		return plain, nil
	}
	return bracketed, nil
}

func closeAll(uploads []domain.Upload) {
	for _, u := range uploads {
		if c, ok := u.Content.(io.Closer); ok {
			_ = c.Close()
		}
	}
}
