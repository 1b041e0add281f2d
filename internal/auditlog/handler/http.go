// Package handler exposes the activity log to admins over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"union-registry/backend/internal/auditlog/domain"
	"union-registry/backend/internal/auditlog/repository"
	"union-registry/backend/internal/platform/apierror"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Lister is the read side of the activity repository.
type Lister interface {
	List(ctx context.Context, f repository.Filter, limit, offset int32) ([]*domain.Entry, error)
}

// Handler serves GET /api/activity.
type Handler struct {
	repo   Lister
	logger *zap.Logger
}

// NewHandler returns a Handler over repo.
func NewHandler(repo Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

type entryView struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id"`
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id"`
	IP         string          `json:"ip"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// List handles GET /api/activity?resource=&resource_id=&actor_id=&page_size=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		apierror.Message(w, http.StatusNotImplemented, "activity log not configured")
		return
	}
	q := r.URL.Query()
	limit := parseInt(q.Get("page_size"), defaultPageSize)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := parseInt(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}
	entries, err := h.repo.List(r.Context(), repository.Filter{
		Resource:   q.Get("resource"),
		ResourceID: q.Get("resource_id"),
		ActorID:    q.Get("actor_id"),
	}, int32(limit), int32(offset))
	if err != nil {
		apierror.Write(w, h.logger, err)
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		v := entryView{
			ID: e.ID, ActorID: e.ActorID, Action: e.Action, Resource: e.Resource,
			ResourceID: e.ResourceID, IP: e.IP, CreatedAt: e.CreatedAt,
		}
		if e.Metadata != "" {
			v.Metadata = json.RawMessage(e.Metadata)
		}
		out = append(out, v)
	}
	apierror.JSON(w, http.StatusOK, out)
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
