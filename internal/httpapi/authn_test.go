package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"rcsa.id/internal/auth"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestAs(c *auth.Claims) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	if c != nil {
		req = req.WithContext(auth.ContextWithClaims(req.Context(), *c))
	}
	return req
}

func TestRequireRoles(t *testing.T) {
	guard := RequireRoles(auth.RoleName("Administrator"), auth.RoleID(1))(okHandler)
	cases := []struct {
		name   string
		claims *auth.Claims
		code   int
	}{
		{"by name", &auth.Claims{Role: "Administrator", RoleID: 7}, http.StatusOK},
		{"by id", &auth.Claims{Role: "Renamed", RoleID: 1}, http.StatusOK},
		{"neither", &auth.Claims{Role: "Staff", RoleID: 2}, http.StatusForbidden},
		{"no identity", nil, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			guard.ServeHTTP(rr, requestAs(tc.claims))
			if rr.Code != tc.code {
				t.Fatalf("status = %d, want %d", rr.Code, tc.code)
			}
		})
	}
}

func TestRequireRolesMessages(t *testing.T) {
	guard := RequireRoles(auth.RoleName("Administrator"), auth.RoleID(1))(okHandler)

	rr := httptest.NewRecorder()
	guard.ServeHTTP(rr, requestAs(&auth.Claims{Role: "Staff", RoleID: 2}))
	expectMessage(t, rr, http.StatusForbidden, "Akses ditolak. Role yang diizinkan: Administrator, 1")

	rr = httptest.NewRecorder()
	guard.ServeHTTP(rr, requestAs(nil))
	expectMessage(t, rr, http.StatusUnauthorized, msgNoIdentity)
}

func TestRequirePermissions(t *testing.T) {
	guard := RequirePermissions(auth.PermRead, auth.PermView)(okHandler)

	rr := httptest.NewRecorder()
	guard.ServeHTTP(rr, requestAs(&auth.Claims{Permissions: auth.Permissions{auth.PermView: true}}))
	if rr.Code != http.StatusOK {
		t.Fatalf("any-of grant: status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	guard.ServeHTTP(rr, requestAs(&auth.Claims{Permissions: auth.Permissions{auth.PermRead: false, auth.PermCreate: true}}))
	expectMessage(t, rr, http.StatusForbidden, "Anda tidak memiliki permission: can_read, can_view")
}

func TestExtractToken(t *testing.T) {
	cases := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{"cookie wins", "from-cookie", "Bearer from-header", "from-cookie"},
		{"bearer", "", "Bearer abc", "abc"},
		{"bearer any case", "", "bearer   abc ", "abc"},
		{"basic scheme", "", "Basic abc", ""},
		{"empty bearer", "", "Bearer ", ""},
		{"nothing", "", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tc.cookie})
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if got := extractToken(req); got != tc.want {
				t.Fatalf("extractToken = %q, want %q", got, tc.want)
			}
		})
	}
}
