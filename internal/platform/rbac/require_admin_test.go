package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"union-registry/backend/internal/identity/domain"
	"union-registry/backend/internal/security"
	"union-registry/backend/internal/server/middleware"
)

// mockIdentityGetter implements IdentityGetter for tests.
type mockIdentityGetter struct {
	identities map[string]*domain.Identity
	err        error
}

func (m *mockIdentityGetter) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.identities[id], nil
}

func newGetter() *mockIdentityGetter {
	return &mockIdentityGetter{identities: map[string]*domain.Identity{
		"admin-1":      {ID: "admin-1", Role: domain.RoleAdmin, Verified: true},
		"union-1":      {ID: "union-1", Role: domain.RoleUnion, Verified: true},
		"unverified-1": {ID: "unverified-1", Role: domain.RoleUnion},
	}}
}

func ctxFor(identityID string) context.Context {
	return middleware.WithPrincipal(context.Background(), security.Principal{UserID: "user-" + identityID, IdentityID: identityID})
}

func TestRequireAdmin(t *testing.T) {
	testCases := []struct {
		name    string
		ctx     context.Context
		wantErr error
	}{
		{"admin", ctxFor("admin-1"), nil},
		{"union role", ctxFor("union-1"), ErrAdminRequired},
		{"unverified", ctxFor("unverified-1"), ErrIdentityRequired},
		{"unknown identity", ctxFor("ghost"), ErrIdentityRequired},
		{"no principal", context.Background(), ErrUnauthenticated},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ident, err := RequireAdmin(tc.ctx, newGetter())
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr == nil && ident.ID != "admin-1" {
				t.Errorf("identity = %q, want admin-1", ident.ID)
			}
		})
	}
}

func TestRequireIdentity_StoreError(t *testing.T) {
	storeErr := errors.New("db down")
	getter := &mockIdentityGetter{err: storeErr}
	if _, err := RequireIdentity(ctxFor("union-1"), getter); !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want %v", err, storeErr)
	}
}

func TestAdminOnly(t *testing.T) {
	h := AdminOnly(newGetter(), zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	testCases := []struct {
		name   string
		ctx    context.Context
		status int
	}{
		{"admin passes", ctxFor("admin-1"), http.StatusNoContent},
		{"union forbidden", ctxFor("union-1"), http.StatusForbidden},
		{"anonymous unauthorized", context.Background(), http.StatusUnauthorized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/unions/u1/approve", nil).WithContext(tc.ctx)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Errorf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestIdentityOnly_StoreErrorIs500(t *testing.T) {
	getter := &mockIdentityGetter{err: errors.New("db down")}
	h := IdentityOnly(getter, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/unions", nil).WithContext(ctxFor("union-1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
