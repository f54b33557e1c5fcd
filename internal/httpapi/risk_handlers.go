package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"rcsa.id/internal/auth"
	"rcsa.id/internal/rcsa"
	"rcsa.id/internal/risk"
)

type riskRequest struct {
	UnitID             int64  `json:"unit_id" validate:"omitempty,gt=0"`
	Code               string `json:"code" validate:"omitempty,max=32"`
	Title              string `json:"title" validate:"required,max=255"`
	Description        string `json:"description"`
	Category           string `json:"category" validate:"omitempty,max=64"`
	Cause              string `json:"cause"`
	ImpactDescription  string `json:"impact_description"`
	InherentImpact     *int   `json:"inherent_impact" validate:"omitempty,min=1,max=5"`
	InherentLikelihood *int   `json:"inherent_likelihood" validate:"omitempty,min=1,max=5"`
	Control            string `json:"control"`
	ResidualImpact     *int   `json:"residual_impact" validate:"omitempty,min=1,max=5"`
	ResidualLikelihood *int   `json:"residual_likelihood" validate:"omitempty,min=1,max=5"`
	Owner              string `json:"owner" validate:"omitempty,max=128"`
	Status             string `json:"status" validate:"omitempty,oneof=open mitigated closed"`
}

func (req riskRequest) toRisk() risk.Risk {
	return risk.Risk{
		UnitID:             req.UnitID,
		Code:               req.Code,
		Title:              req.Title,
		Description:        req.Description,
		Category:           req.Category,
		Cause:              req.Cause,
		ImpactDescription:  req.ImpactDescription,
		InherentImpact:     req.InherentImpact,
		InherentLikelihood: req.InherentLikelihood,
		Control:            req.Control,
		ResidualImpact:     req.ResidualImpact,
		ResidualLikelihood: req.ResidualLikelihood,
		Owner:              req.Owner,
		Status:             req.Status,
	}
}

// handleRiskScore exposes the scoring helper. Absent factors yield level "-".
func (a *API) handleRiskScore(w http.ResponseWriter, r *http.Request) {
	impact, err := queryInt(r, "impact")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	likelihood, err := queryInt(r, "likelihood")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	for name, v := range map[string]*int{"impact": impact, "likelihood": likelihood} {
		if v != nil && (*v < risk.MinFactor || *v > risk.MaxFactor) {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("%s must be between %d and %d", name, risk.MinFactor, risk.MaxFactor))
			return
		}
	}
	writeJSON(w, http.StatusOK, risk.Score(impact, likelihood))
}

func (a *API) handleListRisks(w http.ResponseWriter, r *http.Request) {
	c, _ := auth.ClaimsFromContext(r.Context())
	q := r.URL.Query()
	f := risk.Filter{
		UnitName: q.Get("unit_name"),
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Level:    risk.Level(q.Get("level")),
		Search:   q.Get("q"),
	}
	unit, ok := listScope(c, f.UnitName)
	if !ok {
		writeJSON(w, http.StatusOK, []risk.Risk{})
		return
	}
	f.UnitName = unit
	rows, err := a.risks.List(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (a *API) handleCreateRisk(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, _ := auth.ClaimsFromContext(r.Context())
	in := req.toRisk()
	in.CreatedBy = c.SubjectID
	if !isAdmin(c) {
		unitID, err := a.callerUnitID(r.Context(), c)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		in.UnitID = unitID
	}
	out, err := a.risks.Create(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "risk.create", "risk", out.ID, map[string]any{"unit_id": out.UnitID})
	w.Header().Set("Location", fmt.Sprintf("/api/risks/%d", out.ID))
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) handleGetRisk(w http.ResponseWriter, r *http.Request) {
	out, ok := a.loadScopedRisk(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleUpdateRisk(w http.ResponseWriter, r *http.Request) {
	current, ok := a.loadScopedRisk(w, r)
	if !ok {
		return
	}
	var req riskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := req.toRisk()
	in.ID = current.ID
	in.CreatedBy = current.CreatedBy
	c, _ := auth.ClaimsFromContext(r.Context())
	if in.UnitID == 0 || !isAdmin(c) {
		in.UnitID = current.UnitID
	}
	out, err := a.risks.Update(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "risk.update", "risk", out.ID, map[string]any{"status": out.Status})
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDeleteRisk(w http.ResponseWriter, r *http.Request) {
	current, ok := a.loadScopedRisk(w, r)
	if !ok {
		return
	}
	if err := a.risks.Delete(r.Context(), current.ID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "risk.delete", "risk", current.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

// loadScopedRisk reads the path risk and rejects callers from another unit.
func (a *API) loadScopedRisk(w http.ResponseWriter, r *http.Request) (*risk.Risk, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	out, err := a.risks.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return nil, false
	}
	c, _ := auth.ClaimsFromContext(r.Context())
	if !inScope(c, out.UnitName) {
		handleDomainError(w, r, rcsa.ErrUnitOutOfScope)
		return nil, false
	}
	return out, true
}

// callerUnitID resolves the unit named in the caller's claims.
func (a *API) callerUnitID(ctx context.Context, c *auth.Claims) (int64, error) {
	name := strings.TrimSpace(c.UnitName)
	if name == "" || a.admin == nil {
		return 0, fmt.Errorf("%w: caller has no unit", risk.ErrInvalidInput)
	}
	units, err := a.admin.ListUnits(ctx)
	if err != nil {
		return 0, err
	}
	for _, u := range units {
		if strings.EqualFold(u.Name, name) {
			return u.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: unit %q is not registered", risk.ErrInvalidInput, name)
}

// listScope returns the unit filter a list query runs with. Non-admin callers
// are pinned to their own unit; ok is false when such a caller has no unit and
// so owns no rows.
func listScope(c *auth.Claims, requested string) (unit string, ok bool) {
	if c == nil {
		return "", false
	}
	if isAdmin(c) {
		return requested, true
	}
	unit = strings.TrimSpace(c.UnitName)
	return unit, unit != ""
}

// inScope admits administrators and callers whose unit owns the row.
func inScope(c *auth.Claims, unitName string) bool {
	if c == nil {
		return false
	}
	if isAdmin(c) {
		return true
	}
	return c.UnitName != "" && strings.EqualFold(c.UnitName, unitName)
}
