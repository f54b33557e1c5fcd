package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"rcsa.id/internal/auth"
)

type createUnitRequest struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"omitempty,max=16"`
}

type createUserRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
	RoleID   int64  `json:"role_id" validate:"required,gt=0"`
	UnitID   *int64 `json:"unit_id" validate:"omitempty,gt=0"`
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1"`
	Email    *string `json:"email" validate:"omitempty"`
	Password *string `json:"password" validate:"omitempty,min=8"`
	RoleID   *int64  `json:"role_id" validate:"omitempty,gt=0"`
	UnitID   *int64  `json:"unit_id" validate:"omitempty,gt=0"`
	Active   *bool   `json:"active"`
}

func (a *API) handleListUnits(w http.ResponseWriter, r *http.Request) {
	units, err := a.admin.ListUnits(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(units))
}

func (a *API) handleCreateUnit(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	unit, err := a.admin.CreateUnit(r.Context(), req.Name, req.Code)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "admin.unit.create", "unit", unit.ID, map[string]any{"name": unit.Name})
	w.Header().Set("Location", fmt.Sprintf("/api/units/%d", unit.ID))
	writeJSON(w, http.StatusCreated, unit)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.admin.ListRoles(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(roles))
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	f := auth.UserFilter{UnitName: r.URL.Query().Get("unit_name")}
	if raw := strings.TrimSpace(r.URL.Query().Get("role_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "role_id must be an integer")
			return
		}
		f.RoleID = id
	}
	users, err := a.admin.ListUsers(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	// can_provision alone does not allow minting administrators.
	if c, _ := auth.ClaimsFromContext(r.Context()); !isAdmin(c) {
		elevated, err := a.isAdminRole(r.Context(), req.RoleID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if elevated {
			writeAuthError(w, r, fmt.Errorf("%w: %s", auth.ErrRoleDenied, adminRoleLabels()))
			return
		}
	}
	user, err := a.admin.CreateUser(r.Context(), auth.CreateUserInput{
		UserID:   req.UserID,
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		RoleID:   req.RoleID,
		UnitID:   req.UnitID,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "admin.user.create", "user", user.ID, map[string]any{
		"user_id": user.UserID,
		"role_id": user.RoleID,
	})
	w.Header().Set("Location", fmt.Sprintf("/api/users/%d", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := a.admin.GetUser(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.admin.UpdateUser(r.Context(), id, auth.UpdateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		RoleID:   req.RoleID,
		UnitID:   req.UnitID,
		Active:   req.Active,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "admin.user.update", "user", user.ID, map[string]any{
		"password_changed": req.Password != nil,
		"role_changed":     req.RoleID != nil,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	if c, _ := auth.ClaimsFromContext(r.Context()); c != nil && c.SubjectID == id {
		writeError(w, r, http.StatusBadRequest, "cannot delete the current user")
		return
	}
	if err := a.admin.DeleteUser(r.Context(), id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "admin.user.delete", "user", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// nonNil keeps empty lists encoded as [] rather than null.
// isAdminRole reports whether role id grants administrator access.
func (a *API) isAdminRole(ctx context.Context, roleID int64) (bool, error) {
	roles, err := a.admin.ListRoles(ctx)
	if err != nil {
		return false, err
	}
	for _, role := range roles {
		if role.ID == roleID {
			return auth.HasAnyRole(&auth.Claims{Role: role.Name, RoleID: role.ID}, adminRoles...), nil
		}
	}
	return auth.HasAnyRole(&auth.Claims{RoleID: roleID}, adminRoles...), nil
}

func adminRoleLabels() string {
	labels := make([]string, len(adminRoles))
	for i, ref := range adminRoles {
		labels[i] = ref.String()
	}
	return strings.Join(labels, ", ")
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
