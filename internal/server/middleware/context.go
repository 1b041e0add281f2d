// Package middleware holds the HTTP middleware chain: bearer authentication, client IP capture,
// and access logging with Prometheus timing.
package middleware

import (
	"context"

	"union-registry/backend/internal/security"
)

type contextKey struct{ name string }

var (
	principalKey = contextKey{"principal"}
	clientIPKey  = contextKey{"client_ip"}
)

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p security.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the principal from context and true if set.
func GetPrincipal(ctx context.Context) (security.Principal, bool) {
	p, ok := ctx.Value(principalKey).(security.Principal)
	return p, ok && p.UserID != ""
}

// GetUserID returns the authenticated user id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	p, ok := GetPrincipal(ctx)
	return p.UserID, ok
}

// GetIdentityID returns the authenticated identity id from context and true if set.
func GetIdentityID(ctx context.Context) (string, bool) {
	p, ok := GetPrincipal(ctx)
	return p.IdentityID, ok && p.IdentityID != ""
}

// WithClientIP returns a context carrying the caller's IP.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// GetClientIP returns the caller IP recorded by ClientIP, or "unknown".
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}
