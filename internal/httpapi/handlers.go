// Package httpapi is the HTTP binding of the risk register: chi routing, the
// session middleware with its role and permission guards, and the JSON handlers.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"rcsa.id/internal/audit"
	"rcsa.id/internal/auth"
	"rcsa.id/internal/obs"
	"rcsa.id/internal/rcsa"
	"rcsa.id/internal/risk"
)

const serviceName = "rcsa-api"

// ReadyProbe checks the database connection.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Options tune the HTTP binding.
type Options struct {
	Version      string
	CookieSecure bool
	CORSOrigins  []string
	RateBurst    int
	RatePerSec   int
	MaxBodyBytes int64
}

// Services are the domain services behind the handlers.
type Services struct {
	Auth  *auth.Service
	Admin *auth.AdminService
	Risks *risk.Service
	RCSA  *rcsa.Service
}

// API is the HTTP layer.
type API struct {
	router  chi.Router
	ready   readinessChecker
	auth    *auth.Service
	admin   *auth.AdminService
	risks   *risk.Service
	rcsa    *rcsa.Service
	opts    Options
	limiter *rateLimiter
}

// adminRoles is satisfied by the Administrator role name or role id 1.
var adminRoles = []auth.RoleRef{auth.RoleName("Administrator"), auth.RoleID(1)}

func New(ready readinessChecker, svc Services, opts Options) (*API, error) {
	if svc.Auth == nil {
		return nil, errors.New("httpapi: auth service is required")
	}
	if ready == nil {
		ready = ReadyProbe{}
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		ready:   ready,
		auth:    svc.Auth,
		admin:   svc.Admin,
		risks:   svc.Risks,
		rcsa:    svc.RCSA,
		opts:    opts,
		limiter: newRateLimiter(opts.RateBurst, opts.RatePerSec),
	}
	a.router = a.routes()
	return a, nil
}

// Handler returns the root handler.
func (a *API) Handler() http.Handler { return a.router }

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(corsOptions(a.opts.CORSOrigins)))
	r.Use(LoggingJSON)
	r.Use(obs.Instrument)
	r.Use(MaxBodyBytes(a.opts.MaxBodyBytes))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Handle("/metrics", obs.Handler())

	r.Group(func(r chi.Router) {
		r.Use(a.limiter.Middleware)
		r.Post("/login", a.handleLogin)
		r.Post("/api/auth/login", a.handleLogin)
		r.Post("/refresh-token", a.handleRefresh)
		r.Post("/api/auth/refresh-token", a.handleRefresh)
	})
	r.Post("/logout", a.handleLogout)
	r.Post("/api/auth/logout", a.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(a.Session)

		r.Get("/api/auth/me", a.handleMe)
		r.Get("/api/risk-score", a.handleRiskScore)

		if a.admin != nil {
			r.Get("/api/units", a.handleListUnits)
			r.With(RequireRoles(adminRoles...)).Post("/api/units", a.handleCreateUnit)
			r.With(RequireRoles(adminRoles...)).Get("/api/roles", a.handleListRoles)
			r.With(RequirePermissions(auth.PermProvision)).Post("/api/users", a.handleCreateUser)
			r.Group(func(r chi.Router) {
				r.Use(RequireRoles(adminRoles...))
				r.Get("/api/users", a.handleListUsers)
				r.Get("/api/users/{id}", a.handleGetUser)
				r.Put("/api/users/{id}", a.handleUpdateUser)
				r.Delete("/api/users/{id}", a.handleDeleteUser)
			})
		}

		if a.risks != nil {
			r.Route("/api/risks", func(r chi.Router) {
				r.With(RequirePermissions(auth.PermRead, auth.PermView)).Get("/", a.handleListRisks)
				r.With(RequirePermissions(auth.PermCreate)).Post("/", a.handleCreateRisk)
				r.With(RequirePermissions(auth.PermRead, auth.PermView)).Get("/{id}", a.handleGetRisk)
				r.With(RequirePermissions(auth.PermUpdate)).Put("/{id}", a.handleUpdateRisk)
				r.With(RequirePermissions(auth.PermDelete)).Delete("/{id}", a.handleDeleteRisk)
			})
		}

		if a.rcsa != nil {
			r.Route("/api/rcsa", func(r chi.Router) {
				r.With(RequirePermissions(auth.PermRead, auth.PermView)).Get("/masters", a.handleListMasters)
				r.With(RequireRoles(adminRoles...)).Post("/masters", a.handleCreateMaster)
				r.With(RequirePermissions(auth.PermRead, auth.PermView)).Get("/assessments", a.handleListAssessments)
				r.With(RequirePermissions(auth.PermCreate)).Post("/assessments", a.handleCreateAssessment)
				r.With(RequirePermissions(auth.PermRead, auth.PermView)).Get("/assessments/{id}", a.handleGetAssessment)
				r.With(RequirePermissions(auth.PermUpdate)).Put("/assessments/{id}", a.handleUpdateAssessment)
				r.With(RequirePermissions(auth.PermUpdate, auth.PermCreate)).Post("/assessments/{id}/submit", a.handleSubmitAssessment)
				r.With(RequirePermissions(auth.PermApprove)).Post("/assessments/{id}/approve", a.handleApproveAssessment)
				r.With(RequirePermissions(auth.PermApprove)).Post("/assessments/{id}/reject", a.handleRejectAssessment)
				r.Get("/report", a.handleReport)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           600,
	}
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		obs.SetReady(false)
		obs.Logger().Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

type errorResponse struct {
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorResponse{Message: msg, RequestID: audit.RequestIDFromContext(r.Context())})
}

func writeInternal(w http.ResponseWriter, r *http.Request, err error) {
	obs.Logger().Error().Err(err).
		Str("request_id", audit.RequestIDFromContext(r.Context())).
		Str("path", r.URL.Path).
		Msg("request_failed")
	writeError(w, r, http.StatusInternalServerError, msgServerError)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and runs its validate tags.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return errors.New("request body too large")
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return errors.New("invalid JSON body")
		}
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(r *http.Request, key string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	return &n, nil
}

// handleDomainError maps service errors onto HTTP statuses.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, risk.ErrInvalidInput), errors.Is(err, rcsa.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, risk.ErrNotFound), errors.Is(err, rcsa.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict), errors.Is(err, risk.ErrConflict), errors.Is(err, rcsa.ErrConflict):
		writeError(w, r, http.StatusConflict, "resource already exists")
	case errors.Is(err, rcsa.ErrInvalidStatus), errors.Is(err, rcsa.ErrNotEditable):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rcsa.ErrUnitOutOfScope):
		writeError(w, r, http.StatusForbidden, msgOutOfScope)
	default:
		writeInternal(w, r, err)
	}
}

func (a *API) audit(ctx context.Context, event, resourceType string, resourceID int64, fields map[string]any) {
	payload := map[string]any{
		"resource_type": resourceType,
		"resource_id":   resourceID,
	}
	for k, v := range fields {
		payload[k] = v
	}
	_ = audit.LogEvent(ctx, event, payload)
}
