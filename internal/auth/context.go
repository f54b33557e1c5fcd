package auth

import "context"

// ctxKey scopes request values set by this package.
type ctxKey int

const claimsKey ctxKey = iota

// ContextWithClaims stores the caller's decoded session. Handlers behind the
// session middleware read it back with ClaimsFromContext; audit entries use it
// to stamp user_id and role.
func ContextWithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey, &c)
}

// ClaimsFromContext returns the caller's session, or false on routes that run
// without the session middleware (login, logout, health).
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	if ctx == nil {
		return nil, false
	}
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok && c != nil
}
