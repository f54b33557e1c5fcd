package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"rcsa.id/internal/audit"
	"rcsa.id/internal/auth"
	"rcsa.id/internal/obs"
)

type loginRequest struct {
	UserID   string `json:"user_id" validate:"required_without=Email"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

type userView struct {
	ID       int64  `json:"id"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	RoleID   int64  `json:"role_id"`
	UnitName string `json:"unit_name"`
}

type loginResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	User      *userView `json:"user,omitempty"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type meResponse struct {
	userView
	Permissions auth.Permissions `json:"permissions"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		obs.LoginResult("invalid")
		writeJSON(w, http.StatusBadRequest, loginResponse{Message: msgMissingCredential})
		return
	}
	login := strings.TrimSpace(req.UserID)
	if login == "" {
		login = strings.TrimSpace(req.Email)
	}

	sess, err := a.auth.Login(r.Context(), login, req.Password)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrMissingCredential):
		obs.LoginResult("invalid")
		writeJSON(w, http.StatusBadRequest, loginResponse{Message: msgMissingCredential})
		return
	case errors.Is(err, auth.ErrCredentialMismatch):
		obs.LoginResult("mismatch")
		_ = audit.LogEvent(r.Context(), "auth.login_failed", map[string]any{"login": login})
		writeJSON(w, http.StatusUnauthorized, loginResponse{Message: msgCredentialMismatch})
		return
	default:
		obs.LoginResult("error")
		obs.Logger().Error().Err(err).Str("request_id", audit.RequestIDFromContext(r.Context())).Msg("login failed")
		writeJSON(w, http.StatusInternalServerError, loginResponse{Message: msgServerError})
		return
	}

	a.setSessionCookie(w, sess.Token)
	obs.LoginResult("ok")
	ctx := auth.ContextWithClaims(r.Context(), sess.Token.Claims)
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"expires_at": sess.Token.Claims.ExpiresAt.Format(time.RFC3339)})

	view := viewOf(sess.Token.Claims)
	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		User:      &view,
		Token:     sess.Token.Value,
		ExpiresAt: sess.Token.Claims.ExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	if token := extractToken(r); token != "" {
		if claims, err := a.auth.Codec().Decode(token); err == nil {
			_ = audit.LogEvent(auth.ContextWithClaims(r.Context(), claims), "auth.logout", nil)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logout berhasil"})
}

// handleRefresh accepts the token in the body, the session cookie or a bearer header.
func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	raw := strings.TrimSpace(req.Token)
	if raw == "" {
		raw = extractToken(r)
	}

	sess, err := a.auth.Refresh(r.Context(), raw)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	a.setSessionCookie(w, sess.Token)
	writeJSON(w, http.StatusOK, tokenResponse{Token: sess.Token.Value, ExpiresAt: sess.Token.Claims.ExpiresAt})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	c, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeAuthError(w, r, auth.ErrNoIdentity)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		userView:    viewOf(*c),
		Permissions: c.Permissions,
		ExpiresAt:   c.ExpiresAt,
	})
}

func (a *API) setSessionCookie(w http.ResponseWriter, tok auth.Token) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok.Value,
		Path:     "/",
		MaxAge:   int(a.auth.Codec().TTL().Seconds()),
		Expires:  tok.Claims.ExpiresAt,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func viewOf(c auth.Claims) userView {
	return userView{
		ID:       c.SubjectID,
		UserID:   c.UserID,
		Name:     c.Name,
		Role:     c.Role,
		RoleID:   c.RoleID,
		UnitName: c.UnitName,
	}
}
