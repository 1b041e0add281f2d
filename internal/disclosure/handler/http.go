// Package handler exposes standalone disclosure corrections over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"union-registry/backend/internal/disclosure"
	"union-registry/backend/internal/disclosure/service"
	"union-registry/backend/internal/platform/apierror"
	"union-registry/backend/internal/server/middleware"
	uniondomain "union-registry/backend/internal/union/domain"
	unionhandler "union-registry/backend/internal/union/handler"
)

// DisclosureService is the subset of service.Service used by the handler.
type DisclosureService interface {
	UpdateOwnDisclosure(ctx context.Context, ownerIdentityID, actorID string, snapshot *disclosure.Snapshot) (*uniondomain.Union, error)
}

// Handler serves POST /api/financial-data.
type Handler struct {
	svc    DisclosureService
	logger *zap.Logger
}

// NewHandler returns a Handler.
func NewHandler(svc DisclosureService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

var errorRules = []apierror.Rule{
	{Err: disclosure.ErrMalformedSnapshot, Status: http.StatusBadRequest},
	{Err: service.ErrFinancialDataRequired, Status: http.StatusBadRequest},
	{Err: service.ErrUnionNotFound, Status: http.StatusNotFound},
}

type updateRequest struct {
	FinancialData json.RawMessage `json:"financial_data"`
}

// Update replaces the caller's union snapshot and recomputes its audit status.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipal(r.Context())
	if !ok || p.IdentityID == "" {
		apierror.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	var req updateRequest
	if err := apierror.Decode(r, &req); err != nil {
		apierror.Write(w, h.logger, err)
		return
	}
	snapshot, err := disclosure.ParseSnapshot(req.FinancialData)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	u, err := h.svc.UpdateOwnDisclosure(r.Context(), p.IdentityID, p.UserID, snapshot)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, unionhandler.View(u))
}
