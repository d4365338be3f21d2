package auth

import (
	"context"
	"strings"
)

type ctxKey string

const (
	identityIDKey ctxKey = "auth_identity_id"
	rolesKey      ctxKey = "auth_roles"
	claimsKey     ctxKey = "auth_claims"
)

// ContextWithIdentity stores the authenticated identity in the context.
func ContextWithIdentity(ctx context.Context, identityID string, roles []string) context.Context {
	ctx = context.WithValue(ctx, identityIDKey, strings.TrimSpace(identityID))
	if len(roles) > 0 {
		ctx = context.WithValue(ctx, rolesKey, NormalizeRoles(roles))
	}
	return ctx
}

// IdentityIDFromContext extracts the authenticated identity id from context.
func IdentityIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(identityIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// RolesFromContext returns the roles stored in context (deduplicated and lower-cased).
func RolesFromContext(ctx context.Context) []string {
	v, ok := ctx.Value(rolesKey).([]string)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}

// HasRole checks whether the context contains the specified role.
func HasRole(ctx context.Context, role string) bool {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return false
	}
	for _, r := range RolesFromContext(ctx) {
		if r == role {
			return true
		}
	}
	return false
}

// ContextWithClaims attaches verified token claims to the context.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	if claims == nil {
		return ctx
	}
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the verified claims if previously attached.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	v, ok := ctx.Value(claimsKey).(*Claims)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// NormalizeRoles trims, lower-cases, and deduplicates a role set.
func NormalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
