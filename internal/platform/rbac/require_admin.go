// Package rbac resolves caller roles from the identity store for HTTP routes that need more than a
// valid access token.
package rbac

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"union-registry/backend/internal/identity/domain"
	"union-registry/backend/internal/platform/apierror"
	"union-registry/backend/internal/server/middleware"
)

var (
	// ErrUnauthenticated is returned when the request carries no principal.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrAdminRequired is returned when the caller's identity is not an admin.
	ErrAdminRequired = errors.New("admin role required")
	// ErrIdentityRequired is returned when the principal is not linked to a verified identity.
	ErrIdentityRequired = errors.New("verified identity required")
)

// IdentityGetter loads an identity by id. Used to resolve the caller's current role.
type IdentityGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
}

// RequireAdmin ensures the caller is authenticated and its identity currently holds the admin role.
// The role is read from the store, not from the token, so a demoted identity loses access at once.
// Returns the caller identity on success.
func RequireAdmin(ctx context.Context, getter IdentityGetter) (*domain.Identity, error) {
	ident, err := RequireIdentity(ctx, getter)
	if err != nil {
		return nil, err
	}
	if ident.Role != domain.RoleAdmin {
		return nil, ErrAdminRequired
	}
	return ident, nil
}

// RequireIdentity ensures the caller is authenticated and linked to a verified identity.
func RequireIdentity(ctx context.Context, getter IdentityGetter) (*domain.Identity, error) {
	identityID, ok := middleware.GetIdentityID(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	ident, err := getter.GetByID(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if ident == nil || !ident.Verified {
		return nil, ErrIdentityRequired
	}
	return ident, nil
}

// AdminOnly is HTTP middleware that rejects callers failing RequireAdmin.
func AdminOnly(getter IdentityGetter, logger *zap.Logger) func(http.Handler) http.Handler {
	return guard(func(ctx context.Context) error {
		_, err := RequireAdmin(ctx, getter)
		return err
	}, logger)
}

// IdentityOnly is HTTP middleware that rejects callers failing RequireIdentity.
func IdentityOnly(getter IdentityGetter, logger *zap.Logger) func(http.Handler) http.Handler {
	return guard(func(ctx context.Context) error {
		_, err := RequireIdentity(ctx, getter)
		return err
	}, logger)
}

func guard(check func(context.Context) error, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(r.Context()); err != nil {
				apierror.Write(w, logger, err,
					apierror.Rule{Err: ErrUnauthenticated, Status: http.StatusUnauthorized},
					apierror.Rule{Err: ErrIdentityRequired, Status: http.StatusForbidden},
					apierror.Rule{Err: ErrAdminRequired, Status: http.StatusForbidden},
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
