package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"rcsa.id/internal/auth"
	"rcsa.id/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	// CookieName carries the session token.
	CookieName = "accessToken"
)

// Client-facing messages.
const (
	msgTokenMissing       = "Token tidak ditemukan"
	msgTokenInvalid       = "Token tidak valid"
	msgNoIdentity         = "Identitas pengguna tidak ditemukan"
	msgRoleDenied         = "Akses ditolak. Role yang diizinkan: "
	msgPermissionDenied   = "Anda tidak memiliki permission: "
	msgMissingCredential  = "User ID dan password wajib diisi"
	msgCredentialMismatch = "User ID atau password salah"
	msgServerError        = "Terjadi kesalahan pada server"
	msgOutOfScope         = "Akses ditolak. Data milik unit lain"
	msgRateLimited        = "Terlalu banyak permintaan, coba lagi nanti"
)

// Session decodes the session token and attaches its claims to the request
// context. It performs no role or permission checks.
func (a *API) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			obs.TokenRejected("missing")
			writeAuthError(w, r, auth.ErrMissingToken)
			return
		}
		claims, err := a.auth.Codec().Decode(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				obs.TokenRejected("expired")
			} else {
				obs.TokenRejected("invalid")
			}
			writeAuthError(w, r, err)
			return
		}
		ctx := auth.ContextWithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRoles admits callers whose role name or role id is in allowed.
func RequireRoles(allowed ...auth.RoleRef) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := auth.AuthorizeRoles(r.Context(), allowed...); err != nil {
				writeAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermissions admits callers holding at least one of required.
func RequirePermissions(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := auth.AuthorizePermissions(r.Context(), required...); err != nil {
				writeAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeAuthError is the single translation from auth failures to HTTP.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		writeError(w, r, http.StatusUnauthorized, msgTokenMissing)
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenExpired):
		writeError(w, r, http.StatusForbidden, msgTokenInvalid)
	case errors.Is(err, auth.ErrNoIdentity):
		writeError(w, r, http.StatusUnauthorized, msgNoIdentity)
	case errors.Is(err, auth.ErrRoleDenied):
		writeError(w, r, http.StatusForbidden, msgRoleDenied+detail(err, auth.ErrRoleDenied))
	case errors.Is(err, auth.ErrPermissionDenied):
		writeError(w, r, http.StatusForbidden, msgPermissionDenied+detail(err, auth.ErrPermissionDenied))
	case errors.Is(err, auth.ErrMissingCredential):
		writeError(w, r, http.StatusBadRequest, msgMissingCredential)
	case errors.Is(err, auth.ErrCredentialMismatch):
		writeError(w, r, http.StatusUnauthorized, msgCredentialMismatch)
	default:
		writeInternal(w, r, err)
	}
}

// detail returns the requirement list wrapped after sentinel.
func detail(err, sentinel error) string {
	return strings.TrimPrefix(err.Error(), sentinel.Error()+": ")
}

// extractToken prefers the session cookie and falls back to a bearer header.
func extractToken(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return ""
	}
	return token
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isAdmin(c *auth.Claims) bool {
	return auth.HasAnyRole(c, adminRoles...)
}
