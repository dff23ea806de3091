package http

import (
	"context"

	"creatoros-backend/internal/security"
)

type contextKey string

const claimsKey contextKey = "caller-claims"

// WithClaims returns a copy of ctx carrying the authenticated caller.
func WithClaims(ctx context.Context, claims *security.CallerClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext extracts the caller placed there by the auth middleware.
func ClaimsFromContext(ctx context.Context) (*security.CallerClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*security.CallerClaims)
	return claims, ok && claims != nil
}

// OrgIDFromContext returns the organization the caller acts for. Empty for
// system callers whose token is not bound to an organization.
func OrgIDFromContext(ctx context.Context) string {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.OrgID
}
