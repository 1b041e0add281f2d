// Package handler exposes the union registry over HTTP.
package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"union-registry/backend/internal/platform/apierror"
	"union-registry/backend/internal/server/middleware"
	"union-registry/backend/internal/union/domain"
	"union-registry/backend/internal/union/service"
)

// RegistryService is the subset of service.RegistryService used by the handler.
type RegistryService interface {
	Register(ctx context.Context, ownerIdentityID, actorID string, in service.RegisterInput) (*domain.Union, error)
	GetByOwner(ctx context.Context, ownerIdentityID string) (*domain.Union, error)
	ListAll(ctx context.Context) ([]*domain.Union, error)
}

// Handler serves union registration and lookup.
type Handler struct {
	svc    RegistryService
	logger *zap.Logger
}

// NewHandler returns a Handler.
func NewHandler(svc RegistryService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

var errorRules = []apierror.Rule{
	{Err: service.ErrValidation, Status: http.StatusBadRequest},
	{Err: service.ErrAlreadyRegistered, Status: http.StatusConflict},
	{Err: service.ErrDuplicateField, Status: http.StatusConflict},
	{Err: service.ErrUnionNotFound, Status: http.StatusNotFound},
}

type registerRequest struct {
	Name         string `json:"name"`
	HeadOfUnion  string `json:"headOfUnion"`
	Region       string `json:"region"`
	EconomicCode string `json:"economicCode"`
	Code         string `json:"code"`
	FiscalYear   string `json:"fiscalYear"`
}

// Register handles POST /api/unions/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok || p.IdentityID == "" {
		apierror.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	var req registerRequest
	if err := apierror.Decode(r, &req); err != nil {
		apierror.Write(w, h.logger, err)
		return
	}
	u, err := h.svc.Register(r.Context(), p.IdentityID, p.UserID, service.RegisterInput{
		Name:         req.Name,
		HeadOfUnion:  req.HeadOfUnion,
		Region:       req.Region,
		EconomicCode: req.EconomicCode,
		Code:         req.Code,
		FiscalYear:   req.FiscalYear,
	})
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusCreated, View(u))
}

// MyUnion handles GET /api/unions/my-union.
func (h *Handler) MyUnion(w http.ResponseWriter, r *http.Request) {
	identityID, ok := middleware.GetIdentityID(r.Context())
	if !ok {
		apierror.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	u, err := h.svc.GetByOwner(r.Context(), identityID)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, View(u))
}

// List handles GET /api/unions.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	unions, err := h.svc.ListAll(r.Context())
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, Views(unions))
}
