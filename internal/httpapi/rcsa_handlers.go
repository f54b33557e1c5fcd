package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"rcsa.id/internal/auth"
	"rcsa.id/internal/rcsa"
)

type masterRequest struct {
	UnitID      int64  `json:"unit_id" validate:"required,gt=0"`
	Period      string `json:"period" validate:"required"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
}

type assessmentRequest struct {
	MasterID             int64  `json:"master_id" validate:"omitempty,gt=0"`
	Activity             string `json:"activity" validate:"required"`
	RiskDescription      string `json:"risk_description" validate:"required"`
	InherentImpact       *int   `json:"inherent_impact" validate:"omitempty,min=1,max=5"`
	InherentLikelihood   *int   `json:"inherent_likelihood" validate:"omitempty,min=1,max=5"`
	ControlDescription   string `json:"control_description"`
	ControlEffectiveness string `json:"control_effectiveness"`
	ResidualImpact       *int   `json:"residual_impact" validate:"omitempty,min=1,max=5"`
	ResidualLikelihood   *int   `json:"residual_likelihood" validate:"omitempty,min=1,max=5"`
	ActionPlan           string `json:"action_plan"`
}

func (req assessmentRequest) toAssessment() rcsa.Assessment {
	return rcsa.Assessment{
		MasterID:             req.MasterID,
		Activity:             req.Activity,
		RiskDescription:      req.RiskDescription,
		InherentImpact:       req.InherentImpact,
		InherentLikelihood:   req.InherentLikelihood,
		ControlDescription:   req.ControlDescription,
		ControlEffectiveness: req.ControlEffectiveness,
		ResidualImpact:       req.ResidualImpact,
		ResidualLikelihood:   req.ResidualLikelihood,
		ActionPlan:           req.ActionPlan,
	}
}

type reviewRequest struct {
	Note string `json:"note" validate:"omitempty,max=1000"`
}

func (a *API) handleListMasters(w http.ResponseWriter, r *http.Request) {
	c, _ := auth.ClaimsFromContext(r.Context())
	f := rcsa.MasterFilter{
		UnitName: r.URL.Query().Get("unit_name"),
		Period:   r.URL.Query().Get("period"),
	}
	unit, ok := listScope(c, f.UnitName)
	if !ok {
		writeJSON(w, http.StatusOK, []rcsa.Master{})
		return
	}
	f.UnitName = unit
	rows, err := a.rcsa.ListMasters(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (a *API) handleCreateMaster(w http.ResponseWriter, r *http.Request) {
	var req masterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	m, err := a.rcsa.CreateMaster(r.Context(), rcsa.Master{
		UnitID:      req.UnitID,
		Period:      req.Period,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "rcsa.master.create", "rcsa_master", m.ID, map[string]any{"period": m.Period, "unit_id": m.UnitID})
	w.Header().Set("Location", fmt.Sprintf("/api/rcsa/masters/%d", m.ID))
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	c, _ := auth.ClaimsFromContext(r.Context())
	q := r.URL.Query()
	f := rcsa.AssessmentFilter{
		UnitName: q.Get("unit_name"),
		Period:   q.Get("period"),
		Status:   rcsa.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
	}
	if raw := strings.TrimSpace(q.Get("master_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, http.StatusBadRequest, "master_id must be a positive integer")
			return
		}
		f.MasterID = id
	}
	unit, ok := listScope(c, f.UnitName)
	if !ok {
		writeJSON(w, http.StatusOK, []rcsa.Assessment{})
		return
	}
	f.UnitName = unit
	rows, err := a.rcsa.ListAssessments(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (a *API) handleCreateAssessment(w http.ResponseWriter, r *http.Request) {
	var req assessmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.MasterID == 0 {
		writeError(w, r, http.StatusBadRequest, "master_id failed required")
		return
	}
	c, _ := auth.ClaimsFromContext(r.Context())
	master, err := a.rcsa.GetMaster(r.Context(), req.MasterID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !inScope(c, master.UnitName) {
		handleDomainError(w, r, rcsa.ErrUnitOutOfScope)
		return
	}
	in := req.toAssessment()
	in.CreatedBy = c.SubjectID
	out, err := a.rcsa.CreateAssessment(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "rcsa.assessment.create", "rcsa_assessment", out.ID, map[string]any{"master_id": out.MasterID})
	w.Header().Set("Location", fmt.Sprintf("/api/rcsa/assessments/%d", out.ID))
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	out, ok := a.loadScopedAssessment(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleUpdateAssessment(w http.ResponseWriter, r *http.Request) {
	current, ok := a.loadScopedAssessment(w, r)
	if !ok {
		return
	}
	var req assessmentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	in := req.toAssessment()
	in.ID = current.ID
	out, err := a.rcsa.UpdateAssessment(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "rcsa.assessment.update", "rcsa_assessment", out.ID, nil)
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	current, ok := a.loadScopedAssessment(w, r)
	if !ok {
		return
	}
	out, err := a.rcsa.Submit(r.Context(), current.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "rcsa.assessment.submit", "rcsa_assessment", out.ID, nil)
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleApproveAssessment(w http.ResponseWriter, r *http.Request) {
	a.review(w, r, true)
}

func (a *API) handleRejectAssessment(w http.ResponseWriter, r *http.Request) {
	a.review(w, r, false)
}

// review approves or rejects a submitted row. Reviewers act across units.
func (a *API) review(w http.ResponseWriter, r *http.Request, approve bool) {
	current, ok := a.loadAssessment(w, r, false)
	if !ok {
		return
	}
	var req reviewRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}
	c, _ := auth.ClaimsFromContext(r.Context())

	var (
		out   *rcsa.Assessment
		err   error
		event = "rcsa.assessment.approve"
	)
	if approve {
		out, err = a.rcsa.Approve(r.Context(), current.ID, c.SubjectID, req.Note)
	} else {
		event = "rcsa.assessment.reject"
		out, err = a.rcsa.Reject(r.Context(), current.ID, c.SubjectID, req.Note)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), event, "rcsa_assessment", out.ID, map[string]any{"note": out.Note})
	writeJSON(w, http.StatusOK, out)
}

// handleReport is open to administrators and approvers.
func (a *API) handleReport(w http.ResponseWriter, r *http.Request) {
	c, _ := auth.ClaimsFromContext(r.Context())
	if !isAdmin(c) && !auth.HasAnyPermission(c, auth.PermApprove) {
		writeAuthError(w, r, fmt.Errorf("%w: %s", auth.ErrPermissionDenied, auth.PermApprove))
		return
	}
	rows, err := a.rcsa.Report(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (a *API) loadScopedAssessment(w http.ResponseWriter, r *http.Request) (*rcsa.Assessment, bool) {
	return a.loadAssessment(w, r, true)
}

func (a *API) loadAssessment(w http.ResponseWriter, r *http.Request, scoped bool) (*rcsa.Assessment, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	out, err := a.rcsa.GetAssessment(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return nil, false
	}
	if !scoped {
		return out, true
	}
	c, _ := auth.ClaimsFromContext(r.Context())
	if !inScope(c, out.UnitName) {
		handleDomainError(w, r, rcsa.ErrUnitOutOfScope)
		return nil, false
	}
	return out, true
}
