// Package handler exposes administrative registration decisions over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"union-registry/backend/internal/approval/service"
	"union-registry/backend/internal/platform/apierror"
	"union-registry/backend/internal/server/middleware"
	uniondomain "union-registry/backend/internal/union/domain"
	unionhandler "union-registry/backend/internal/union/handler"
)

// Decider is the subset of service.Service used by the handler.
type Decider interface {
	Decide(ctx context.Context, adminPrincipalID, unionID, action, comment string) (*uniondomain.Union, error)
}

// Handler serves POST /api/unions/{unionID}/approve. Routes must be mounted behind rbac.AdminOnly.
type Handler struct {
	svc    Decider
	logger *zap.Logger
}

// NewHandler returns a Handler.
func NewHandler(svc Decider, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

var errorRules = []apierror.Rule{
	{Err: service.ErrUnknownAction, Status: http.StatusBadRequest},
	{Err: service.ErrInvalidTransition, Status: http.StatusConflict},
	{Err: service.ErrUnionNotFound, Status: http.StatusNotFound},
}

type decideRequest struct {
	Action  string `json:"action"`
	Comment string `json:"comment"`
}

type decideResponse struct {
	Message string                 `json:"message"`
	Union   unionhandler.UnionView `json:"union"`
}

// Decide records the admin's decision on the union named in the path.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	adminID, ok := middleware.GetUserID(r.Context())
	if !ok {
		apierror.Message(w, http.StatusUnauthorized, "missing or invalid authorization")
		return
	}
	var req decideRequest
	if err := apierror.Decode(r, &req); err != nil {
		apierror.Write(w, h.logger, err)
		return
	}
	u, err := h.svc.Decide(r.Context(), adminID, chi.URLParam(r, "unionID"), req.Action, req.Comment)
	if err != nil {
		apierror.Write(w, h.logger, err, errorRules...)
		return
	}
	apierror.JSON(w, http.StatusOK, decideResponse{Message: "Union updated", Union: unionhandler.View(u)})
}
