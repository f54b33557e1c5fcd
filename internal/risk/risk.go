package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("risk: not found")
	ErrInvalidInput = errors.New("risk: invalid input")
	ErrConflict     = errors.New("risk: conflict")
)

// Status values for a register entry.
const (
	StatusOpen      = "open"
	StatusMitigated = "mitigated"
	StatusClosed    = "closed"
)

var validStatus = map[string]struct{}{
	StatusOpen:      {},
	StatusMitigated: {},
	StatusClosed:    {},
}

// Risk is an entry in the risk register. Inherent and Residual are derived on
// every read and are never stored.
type Risk struct {
	ID                 int64      `json:"id"`
	UnitID             int64      `json:"unit_id"`
	UnitName           string     `json:"unit_name,omitempty"`
	Code               string     `json:"code,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Category           string     `json:"category,omitempty"`
	Cause              string     `json:"cause,omitempty"`
	ImpactDescription  string     `json:"impact_description,omitempty"`
	InherentImpact     *int       `json:"inherent_impact"`
	InherentLikelihood *int       `json:"inherent_likelihood"`
	Control            string     `json:"control,omitempty"`
	ResidualImpact     *int       `json:"residual_impact"`
	ResidualLikelihood *int       `json:"residual_likelihood"`
	Owner              string     `json:"owner,omitempty"`
	Status             string     `json:"status"`
	CreatedBy          int64      `json:"created_by,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Inherent           Assessment `json:"inherent"`
	Residual           Assessment `json:"residual"`
}

// Derive recomputes the inherent and residual assessments.
func (r *Risk) Derive() {
	r.Inherent = Score(r.InherentImpact, r.InherentLikelihood)
	r.Residual = Score(r.ResidualImpact, r.ResidualLikelihood)
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	UnitID   int64
	UnitName string
	Status   string
	Category string
	Level    Level
	Search   string
}

// Store persists register entries. Update replaces every mutable column.
type Store interface {
	CreateRisk(ctx context.Context, r Risk) (*Risk, error)
	GetRisk(ctx context.Context, id int64) (*Risk, error)
	ListRisks(ctx context.Context, f Filter) ([]Risk, error)
	UpdateRisk(ctx context.Context, r Risk) (*Risk, error)
	DeleteRisk(ctx context.Context, id int64) error
}

// Service validates register entries and attaches derived scores.
type Service struct {
	store Store
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("risk: store is required")
	}
	return &Service{store: store}, nil
}

func (s *Service) Create(ctx context.Context, r Risk) (*Risk, error) {
	normalize(&r)
	if r.Status == "" {
		r.Status = StatusOpen
	}
	if err := validate(r); err != nil {
		return nil, err
	}
	out, err := s.store.CreateRisk(ctx, r)
	if err != nil {
		return nil, err
	}
	out.Derive()
	return out, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Risk, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	out, err := s.store.GetRisk(ctx, id)
	if err != nil {
		return nil, err
	}
	out.Derive()
	return out, nil
}

// List returns entries matching f. The level filter applies to the residual
// assessment, falling back to inherent when no residual score is recorded.
func (s *Service) List(ctx context.Context, f Filter) ([]Risk, error) {
	if f.Level != "" && !ValidLevel(string(f.Level)) {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidInput, f.Level)
	}
	rows, err := s.store.ListRisks(ctx, Filter{
		UnitID:   f.UnitID,
		UnitName: strings.TrimSpace(f.UnitName),
		Status:   strings.TrimSpace(f.Status),
		Category: strings.TrimSpace(f.Category),
		Search:   strings.TrimSpace(f.Search),
	})
	if err != nil {
		return nil, err
	}
	out := make([]Risk, 0, len(rows))
	for _, r := range rows {
		r.Derive()
		if f.Level != "" && r.EffectiveLevel() != f.Level {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// EffectiveLevel is the residual level, or the inherent level when the
// residual score is not yet recorded.
func (r Risk) EffectiveLevel() Level {
	if r.Residual.Level != LevelUndefined && r.Residual.Level != "" {
		return r.Residual.Level
	}
	if r.Inherent.Level == "" {
		return LevelUndefined
	}
	return r.Inherent.Level
}

func (s *Service) Update(ctx context.Context, r Risk) (*Risk, error) {
	if r.ID <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	normalize(&r)
	if r.Status == "" {
		r.Status = StatusOpen
	}
	if err := validate(r); err != nil {
		return nil, err
	}
	out, err := s.store.UpdateRisk(ctx, r)
	if err != nil {
		return nil, err
	}
	out.Derive()
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	return s.store.DeleteRisk(ctx, id)
}

func normalize(r *Risk) {
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	r.Title = strings.TrimSpace(r.Title)
	r.Category = strings.TrimSpace(r.Category)
	r.Owner = strings.TrimSpace(r.Owner)
	r.Status = strings.ToLower(strings.TrimSpace(r.Status))
}

func validate(r Risk) error {
	if r.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if r.UnitID <= 0 {
		return fmt.Errorf("%w: unit_id is required", ErrInvalidInput)
	}
	if _, ok := validStatus[r.Status]; !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, r.Status)
	}
	for name, v := range map[string]*int{
		"inherent_impact":     r.InherentImpact,
		"inherent_likelihood": r.InherentLikelihood,
		"residual_impact":     r.ResidualImpact,
		"residual_likelihood": r.ResidualLikelihood,
	} {
		if v != nil && (*v < MinFactor || *v > MaxFactor) {
			return fmt.Errorf("%w: %s must be between %d and %d", ErrInvalidInput, name, MinFactor, MaxFactor)
		}
	}
	return nil
}
