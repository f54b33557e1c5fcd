package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"rcsa.id/internal/rcsa"
)

var _ rcsa.Store = (*Store)(nil)

const masterSelect = `
	select m.id, m.unit_id, coalesce(un.name, ''), m.period, m.title, coalesce(m.description, ''), m.created_at
	from rcsa_master m
	left join units un on un.id = m.unit_id`

const assessmentSelect = `
	select a.id, a.master_id, m.unit_id, coalesce(un.name, ''), m.period, a.activity, a.risk_description,
	       a.inherent_impact, a.inherent_likelihood, coalesce(a.control_description, ''),
	       coalesce(a.control_effectiveness, ''), a.residual_impact, a.residual_likelihood,
	       coalesce(a.action_plan, ''), a.status, coalesce(a.note, ''), coalesce(a.created_by, 0),
	       a.approved_by, a.created_at, a.updated_at
	from rcsa_assessment a
	join rcsa_master m on m.id = a.master_id
	left join units un on un.id = m.unit_id`

func scanMaster(row scanner) (rcsa.Master, error) {
	var m rcsa.Master
	err := row.Scan(&m.ID, &m.UnitID, &m.UnitName, &m.Period, &m.Title, &m.Description, &m.CreatedAt)
	return m, err
}

func scanAssessment(row scanner) (rcsa.Assessment, error) {
	var (
		a              rcsa.Assessment
		status         string
		inhImp, inhLik sql.NullInt64
		resImp, resLik sql.NullInt64
		approvedBy     sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.MasterID, &a.UnitID, &a.UnitName, &a.Period, &a.Activity, &a.RiskDescription,
		&inhImp, &inhLik, &a.ControlDescription,
		&a.ControlEffectiveness, &resImp, &resLik,
		&a.ActionPlan, &status, &a.Note, &a.CreatedBy,
		&approvedBy, &a.CreatedAt, &a.UpdatedAt)
	a.Status = rcsa.Status(status)
	a.InherentImpact = nullInt(inhImp)
	a.InherentLikelihood = nullInt(inhLik)
	a.ResidualImpact = nullInt(resImp)
	a.ResidualLikelihood = nullInt(resLik)
	a.ApprovedBy = nullInt64(approvedBy)
	return a, err
}

func (s *Store) CreateMaster(ctx context.Context, m rcsa.Master) (*rcsa.Master, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		insert into rcsa_master (unit_id, period, title, description, created_at)
		values ($1, $2, $3, $4, now())
		returning id
	`, m.UnitID, m.Period, m.Title, m.Description).Scan(&id)
	if err != nil {
		return nil, translate(err, rcsa.ErrNotFound, rcsa.ErrConflict)
	}
	return s.GetMaster(ctx, id)
}

func (s *Store) GetMaster(ctx context.Context, id int64) (*rcsa.Master, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	m, err := scanMaster(s.db.QueryRowContext(ctx, masterSelect+` where m.id = $1`, id))
	if err != nil {
		return nil, translate(err, rcsa.ErrNotFound, rcsa.ErrConflict)
	}
	return &m, nil
}

func (s *Store) ListMasters(ctx context.Context, f rcsa.MasterFilter) ([]rcsa.Master, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var w whereBuilder
	if f.UnitName != "" {
		w.add("un.name = $%d", f.UnitName)
	}
	if f.Period != "" {
		w.add("m.period = $%d", f.Period)
	}
	rows, err := s.db.QueryContext(ctx, masterSelect+w.sql()+` order by m.period desc, m.id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rcsa.Master
	for rows.Next() {
		m, err := scanMaster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CreateAssessment(ctx context.Context, a rcsa.Assessment) (*rcsa.Assessment, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var createdBy any
	if a.CreatedBy > 0 {
		createdBy = a.CreatedBy
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		insert into rcsa_assessment (master_id, activity, risk_description, inherent_impact, inherent_likelihood,
		                             control_description, control_effectiveness, residual_impact, residual_likelihood,
		                             action_plan, status, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		returning id
	`, a.MasterID, a.Activity, a.RiskDescription, intArg(a.InherentImpact), intArg(a.InherentLikelihood),
		a.ControlDescription, a.ControlEffectiveness, intArg(a.ResidualImpact), intArg(a.ResidualLikelihood),
		a.ActionPlan, string(a.Status), createdBy).Scan(&id)
	if err != nil {
		return nil, translate(err, rcsa.ErrNotFound, rcsa.ErrConflict)
	}
	return s.GetAssessment(ctx, id)
}

func (s *Store) GetAssessment(ctx context.Context, id int64) (*rcsa.Assessment, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	a, err := scanAssessment(s.db.QueryRowContext(ctx, assessmentSelect+` where a.id = $1`, id))
	if err != nil {
		return nil, translate(err, rcsa.ErrNotFound, rcsa.ErrConflict)
	}
	return &a, nil
}

func (s *Store) ListAssessments(ctx context.Context, f rcsa.AssessmentFilter) ([]rcsa.Assessment, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var w whereBuilder
	if f.MasterID > 0 {
		w.add("a.master_id = $%d", f.MasterID)
	}
	if f.UnitName != "" {
		w.add("un.name = $%d", f.UnitName)
	}
	if f.Period != "" {
		w.add("m.period = $%d", f.Period)
	}
	if f.Status != "" {
		w.add("a.status = $%d", string(f.Status))
	}
	rows, err := s.db.QueryContext(ctx, assessmentSelect+w.sql()+` order by a.id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rcsa.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAssessment(ctx context.Context, a rcsa.Assessment) (*rcsa.Assessment, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update rcsa_assessment set activity = $1, risk_description = $2, inherent_impact = $3,
		       inherent_likelihood = $4, control_description = $5, control_effectiveness = $6,
		       residual_impact = $7, residual_likelihood = $8, action_plan = $9, updated_at = now()
		where id = $10 and status in ('draft', 'rejected')
	`, a.Activity, a.RiskDescription, intArg(a.InherentImpact), intArg(a.InherentLikelihood),
		a.ControlDescription, a.ControlEffectiveness, intArg(a.ResidualImpact), intArg(a.ResidualLikelihood),
		a.ActionPlan, a.ID)
	if err != nil {
		return nil, translate(err, rcsa.ErrNotFound, rcsa.ErrConflict)
	}
	if err := affectedOrNotFound(res, rcsa.ErrNotEditable); err != nil {
		return nil, err
	}
	return s.GetAssessment(ctx, a.ID)
}

// TransitionAssessment updates status only while the row is still in one of t.From.
func (s *Store) TransitionAssessment(ctx context.Context, t rcsa.Transition) (*rcsa.Assessment, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	if len(t.From) == 0 {
		return nil, errors.New("transition requires at least one source status")
	}
	args := []any{string(t.To), t.Note, int64Arg(t.ApprovedBy), t.ID}
	from := make([]string, len(t.From))
	for i, st := range t.From {
		args = append(args, string(st))
		from[i] = fmt.Sprintf("$%d", len(args))
	}
	res, err := s.db.ExecContext(ctx, `
		update rcsa_assessment set status = $1, note = nullif($2, ''), approved_by = $3, updated_at = now()
		where id = $4 and status in (`+strings.Join(from, ", ")+`)`, args...)
	if err != nil {
		return nil, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		// Distinguish a missing row from one in the wrong state.
		if _, err := s.GetAssessment(ctx, t.ID); err != nil {
			return nil, err
		}
		return nil, rcsa.ErrInvalidStatus
	}
	return s.GetAssessment(ctx, t.ID)
}
