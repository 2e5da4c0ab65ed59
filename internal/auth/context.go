package auth

import (
	"context"
	"strings"
)

// Role classifies the token-minting identity spaces. Patients authenticate
// through a separate flow and never receive tokens.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDoctor Role = "doctor"
)

// Valid reports whether the role is one of the known classes.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDoctor
}

// Principal is the resolved identity attached to an authenticated request.
// It lives only for the duration of the request.
type Principal struct {
	Subject string
	Role    Role
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the principal to the context. If a principal
// is already present it is left untouched, so nested invocations of the
// request authenticator cannot overwrite an established identity.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	if _, ok := PrincipalFromContext(ctx); ok {
		return ctx
	}
	if strings.TrimSpace(principal.Subject) == "" {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
