package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"union-registry/backend/internal/approval/service"
	"union-registry/backend/internal/security"
	"union-registry/backend/internal/server/middleware"
	uniondomain "union-registry/backend/internal/union/domain"
)

type fakeDecider struct {
	err                                    error
	gotAdmin, gotUnion, gotAction, gotNote string
}

func (f *fakeDecider) Decide(ctx context.Context, admin, unionID, action, comment string) (*uniondomain.Union, error) {
	f.gotAdmin, f.gotUnion, f.gotAction, f.gotNote = admin, unionID, action, comment
	if f.err != nil {
		return nil, f.err
	}
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return &uniondomain.Union{ID: unionID, RegistrationStatus: uniondomain.StatusRejected, RejectedAt: &now, RejectionReason: comment}, nil
}

func decide(t *testing.T, svc Decider, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/api/unions/{unionID}/approve", NewHandler(svc, zap.NewNop()).Decide)
	req := httptest.NewRequest(http.MethodPost, "/api/unions/u-1/approve", strings.NewReader(body))
	req = req.WithContext(middleware.WithPrincipal(req.Context(), security.Principal{UserID: "admin-1", Role: "admin"}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDecide(t *testing.T) {
	svc := &fakeDecider{}
	rec := decide(t, svc, `{"action":"reject","comment":"incomplete filing"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", svc.gotAdmin)
	assert.Equal(t, "u-1", svc.gotUnion)
	assert.Equal(t, "reject", svc.gotAction)
	assert.Equal(t, "incomplete filing", svc.gotNote)

	var body struct {
		Message string         `json:"message"`
		Union   map[string]any `json:"union"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Union updated", body.Message)
	assert.Equal(t, "rejected", body.Union["registration_status"])
	assert.Equal(t, "incomplete filing", body.Union["rejection_reason"])
	assert.Nil(t, body.Union["approved_at"])
}

func TestDecide_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: \"archive\"", service.ErrUnknownAction), http.StatusBadRequest},
		{service.ErrInvalidTransition, http.StatusConflict},
		{service.ErrUnionNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := decide(t, &fakeDecider{err: tt.err}, `{"action":"x"}`)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())
	}
}

func TestDecide_Unauthenticated(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/unions/u-1/approve", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	NewHandler(&fakeDecider{}, zap.NewNop()).Decide(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
