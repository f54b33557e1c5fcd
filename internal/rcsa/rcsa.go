// Package rcsa implements the periodic Risk Control Self-Assessment workflow:
// per-unit questionnaires (masters), their assessment rows, the
// submit/approve/reject lifecycle and the per-unit report.
package rcsa

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"rcsa.id/internal/risk"
)

var (
	ErrNotFound       = errors.New("rcsa: not found")
	ErrInvalidInput   = errors.New("rcsa: invalid input")
	ErrConflict       = errors.New("rcsa: conflict")
	ErrInvalidStatus  = errors.New("rcsa: invalid status transition")
	ErrNotEditable    = errors.New("rcsa: assessment is not editable")
	ErrUnitOutOfScope = errors.New("rcsa: unit out of scope")
)

// Status is the lifecycle state of an assessment.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// Editable reports whether rows in this state may still be changed by the unit.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusRejected
}

// Control effectiveness ratings.
const (
	EffectivenessEffective   = "efektif"
	EffectivenessPartial     = "cukup efektif"
	EffectivenessIneffective = "tidak efektif"
)

var validEffectiveness = map[string]struct{}{
	"":                       {},
	EffectivenessEffective:   {},
	EffectivenessPartial:     {},
	EffectivenessIneffective: {},
}

var periodPattern = regexp.MustCompile(`^\d{4}(-(Q[1-4]|S[12]))?$`)

// Master is one questionnaire instance for a unit and period.
type Master struct {
	ID          int64     `json:"id"`
	UnitID      int64     `json:"unit_id"`
	UnitName    string    `json:"unit_name,omitempty"`
	Period      string    `json:"period"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Assessment is one self-assessed activity row.
type Assessment struct {
	ID                   int64           `json:"id"`
	MasterID             int64           `json:"master_id"`
	UnitID               int64           `json:"unit_id"`
	UnitName             string          `json:"unit_name,omitempty"`
	Period               string          `json:"period,omitempty"`
	Activity             string          `json:"activity"`
	RiskDescription      string          `json:"risk_description"`
	InherentImpact       *int            `json:"inherent_impact"`
	InherentLikelihood   *int            `json:"inherent_likelihood"`
	ControlDescription   string          `json:"control_description,omitempty"`
	ControlEffectiveness string          `json:"control_effectiveness,omitempty"`
	ResidualImpact       *int            `json:"residual_impact"`
	ResidualLikelihood   *int            `json:"residual_likelihood"`
	ActionPlan           string          `json:"action_plan,omitempty"`
	Status               Status          `json:"status"`
	Note                 string          `json:"note,omitempty"`
	CreatedBy            int64           `json:"created_by,omitempty"`
	ApprovedBy           *int64          `json:"approved_by,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
	Inherent             risk.Assessment `json:"inherent"`
	Residual             risk.Assessment `json:"residual"`
}

func (a *Assessment) derive() {
	a.Inherent = risk.Score(a.InherentImpact, a.InherentLikelihood)
	a.Residual = risk.Score(a.ResidualImpact, a.ResidualLikelihood)
}

// MasterFilter narrows ListMasters.
type MasterFilter struct {
	UnitName string
	Period   string
}

// AssessmentFilter narrows ListAssessments.
type AssessmentFilter struct {
	MasterID int64
	UnitName string
	Period   string
	Status   Status
}

// Transition is a conditional status change: it applies only while the row
// is still in From.
type Transition struct {
	ID         int64
	From       []Status
	To         Status
	Note       string
	ApprovedBy *int64
}

// Store persists masters and assessments.
type Store interface {
	CreateMaster(ctx context.Context, m Master) (*Master, error)
	GetMaster(ctx context.Context, id int64) (*Master, error)
	ListMasters(ctx context.Context, f MasterFilter) ([]Master, error)
	CreateAssessment(ctx context.Context, a Assessment) (*Assessment, error)
	GetAssessment(ctx context.Context, id int64) (*Assessment, error)
	ListAssessments(ctx context.Context, f AssessmentFilter) ([]Assessment, error)
	UpdateAssessment(ctx context.Context, a Assessment) (*Assessment, error)
	// TransitionAssessment returns ErrInvalidStatus when the row is no longer in t.From.
	TransitionAssessment(ctx context.Context, t Transition) (*Assessment, error)
}

// Service runs the self-assessment workflow.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("rcsa: store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) CreateMaster(ctx context.Context, m Master) (*Master, error) {
	m.Title = strings.TrimSpace(m.Title)
	m.Period = strings.ToUpper(strings.TrimSpace(m.Period))
	if m.UnitID <= 0 {
		return nil, fmt.Errorf("%w: unit_id is required", ErrInvalidInput)
	}
	if m.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !periodPattern.MatchString(m.Period) {
		return nil, fmt.Errorf("%w: period must look like 2024, 2024-Q1 or 2024-S1", ErrInvalidInput)
	}
	return s.store.CreateMaster(ctx, m)
}

func (s *Service) GetMaster(ctx context.Context, id int64) (*Master, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	return s.store.GetMaster(ctx, id)
}

func (s *Service) ListMasters(ctx context.Context, f MasterFilter) ([]Master, error) {
	f.UnitName = strings.TrimSpace(f.UnitName)
	f.Period = strings.ToUpper(strings.TrimSpace(f.Period))
	return s.store.ListMasters(ctx, f)
}

// CreateAssessment adds a draft row to a master. The row inherits the master's unit.
func (s *Service) CreateAssessment(ctx context.Context, a Assessment) (*Assessment, error) {
	if a.MasterID <= 0 {
		return nil, fmt.Errorf("%w: master_id is required", ErrInvalidInput)
	}
	normalizeAssessment(&a)
	if err := validateAssessment(a); err != nil {
		return nil, err
	}
	master, err := s.store.GetMaster(ctx, a.MasterID)
	if err != nil {
		return nil, err
	}
	a.UnitID = master.UnitID
	a.UnitName = master.UnitName
	a.Status = StatusDraft
	a.Note = ""
	a.ApprovedBy = nil

	out, err := s.store.CreateAssessment(ctx, a)
	if err != nil {
		return nil, err
	}
	out.derive()
	return out, nil
}

func (s *Service) GetAssessment(ctx context.Context, id int64) (*Assessment, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	out, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	out.derive()
	return out, nil
}

func (s *Service) ListAssessments(ctx context.Context, f AssessmentFilter) ([]Assessment, error) {
	f.UnitName = strings.TrimSpace(f.UnitName)
	f.Period = strings.ToUpper(strings.TrimSpace(f.Period))
	switch f.Status {
	case "", StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	rows, err := s.store.ListAssessments(ctx, f)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].derive()
	}
	return rows, nil
}

// UpdateAssessment changes the content of a draft or rejected row. Status,
// unit and approval fields are not changed here.
func (s *Service) UpdateAssessment(ctx context.Context, a Assessment) (*Assessment, error) {
	if a.ID <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	normalizeAssessment(&a)
	if err := validateAssessment(a); err != nil {
		return nil, err
	}
	current, err := s.store.GetAssessment(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if !current.Status.Editable() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotEditable, current.Status)
	}
	a.MasterID = current.MasterID
	a.UnitID = current.UnitID
	a.UnitName = current.UnitName
	a.Status = current.Status
	a.Note = current.Note
	a.ApprovedBy = current.ApprovedBy
	a.CreatedBy = current.CreatedBy

	out, err := s.store.UpdateAssessment(ctx, a)
	if err != nil {
		return nil, err
	}
	out.derive()
	return out, nil
}

// Submit sends a draft or rejected row for approval. Inherent scores are
// required before submission.
func (s *Service) Submit(ctx context.Context, id int64) (*Assessment, error) {
	current, err := s.GetAssessment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Inherent.Besaran == nil {
		return nil, fmt.Errorf("%w: inherent impact and likelihood are required before submit", ErrInvalidInput)
	}
	return s.transition(ctx, Transition{
		ID:   id,
		From: []Status{StatusDraft, StatusRejected},
		To:   StatusSubmitted,
	})
}

// Approve accepts a submitted row.
func (s *Service) Approve(ctx context.Context, id, approver int64, note string) (*Assessment, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	return s.transition(ctx, Transition{
		ID:         id,
		From:       []Status{StatusSubmitted},
		To:         StatusApproved,
		Note:       strings.TrimSpace(note),
		ApprovedBy: &approver,
	})
}

// Reject returns a submitted row to its unit. A note explaining the rejection is required.
func (s *Service) Reject(ctx context.Context, id, reviewer int64, note string) (*Assessment, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, fmt.Errorf("%w: note is required when rejecting", ErrInvalidInput)
	}
	return s.transition(ctx, Transition{
		ID:         id,
		From:       []Status{StatusSubmitted},
		To:         StatusRejected,
		Note:       note,
		ApprovedBy: &reviewer,
	})
}

func (s *Service) transition(ctx context.Context, t Transition) (*Assessment, error) {
	out, err := s.store.TransitionAssessment(ctx, t)
	if err != nil {
		return nil, err
	}
	out.derive()
	return out, nil
}

// LevelCounts counts rows per risk level.
type LevelCounts map[risk.Level]int

// ReportRow aggregates one unit's assessments for a period.
type ReportRow struct {
	UnitName  string      `json:"unit_name"`
	Total     int         `json:"total"`
	Draft     int         `json:"draft"`
	Submitted int         `json:"submitted"`
	Approved  int         `json:"approved"`
	Rejected  int         `json:"rejected"`
	Inherent  LevelCounts `json:"inherent"`
	Residual  LevelCounts `json:"residual"`
}

// Report aggregates the assessments of period per unit, ordered by unit name.
// An empty period covers every period.
func (s *Service) Report(ctx context.Context, period string) ([]ReportRow, error) {
	rows, err := s.ListAssessments(ctx, AssessmentFilter{Period: period})
	if err != nil {
		return nil, err
	}
	byUnit := make(map[string]*ReportRow)
	for _, a := range rows {
		r, ok := byUnit[a.UnitName]
		if !ok {
			r = &ReportRow{UnitName: a.UnitName, Inherent: LevelCounts{}, Residual: LevelCounts{}}
			byUnit[a.UnitName] = r
		}
		r.Total++
		switch a.Status {
		case StatusDraft:
			r.Draft++
		case StatusSubmitted:
			r.Submitted++
		case StatusApproved:
			r.Approved++
		case StatusRejected:
			r.Rejected++
		}
		r.Inherent[a.Inherent.Level]++
		r.Residual[a.Residual.Level]++
	}
	out := make([]ReportRow, 0, len(byUnit))
	for _, r := range byUnit {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitName < out[j].UnitName })
	return out, nil
}

func normalizeAssessment(a *Assessment) {
	a.Activity = strings.TrimSpace(a.Activity)
	a.RiskDescription = strings.TrimSpace(a.RiskDescription)
	a.ControlEffectiveness = strings.ToLower(strings.TrimSpace(a.ControlEffectiveness))
}

func validateAssessment(a Assessment) error {
	if a.Activity == "" {
		return fmt.Errorf("%w: activity is required", ErrInvalidInput)
	}
	if a.RiskDescription == "" {
		return fmt.Errorf("%w: risk_description is required", ErrInvalidInput)
	}
	if _, ok := validEffectiveness[a.ControlEffectiveness]; !ok {
		return fmt.Errorf("%w: unknown control_effectiveness %q", ErrInvalidInput, a.ControlEffectiveness)
	}
	for _, f := range []struct {
		name string
		v    *int
	}{
		{"inherent_impact", a.InherentImpact},
		{"inherent_likelihood", a.InherentLikelihood},
		{"residual_impact", a.ResidualImpact},
		{"residual_likelihood", a.ResidualLikelihood},
	} {
		if f.v != nil && (*f.v < risk.MinFactor || *f.v > risk.MaxFactor) {
			return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidInput, f.name, risk.MinFactor, risk.MaxFactor)
		}
	}
	return nil
}
