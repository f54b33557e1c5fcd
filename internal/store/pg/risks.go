package pg

import (
	"context"
	"database/sql"

	"rcsa.id/internal/risk"
)

var _ risk.Store = (*Store)(nil)

const riskSelect = `
	select k.id, k.unit_id, coalesce(un.name, ''), coalesce(k.code, ''), k.title,
	       coalesce(k.description, ''), coalesce(k.category, ''), coalesce(k.cause, ''),
	       coalesce(k.impact_description, ''), k.inherent_impact, k.inherent_likelihood,
	       coalesce(k.control, ''), k.residual_impact, k.residual_likelihood,
	       coalesce(k.owner, ''), k.status, coalesce(k.created_by, 0), k.created_at, k.updated_at
	from risks k
	left join units un on un.id = k.unit_id`

func scanRisk(row scanner) (risk.Risk, error) {
	var (
		r              risk.Risk
		inhImp, inhLik sql.NullInt64
		resImp, resLik sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.UnitID, &r.UnitName, &r.Code, &r.Title,
		&r.Description, &r.Category, &r.Cause,
		&r.ImpactDescription, &inhImp, &inhLik,
		&r.Control, &resImp, &resLik,
		&r.Owner, &r.Status, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt)
	r.InherentImpact = nullInt(inhImp)
	r.InherentLikelihood = nullInt(inhLik)
	r.ResidualImpact = nullInt(resImp)
	r.ResidualLikelihood = nullInt(resLik)
	return r, err
}

func (s *Store) CreateRisk(ctx context.Context, r risk.Risk) (*risk.Risk, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var createdBy any
	if r.CreatedBy > 0 {
		createdBy = r.CreatedBy
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		insert into risks (unit_id, code, title, description, category, cause, impact_description,
		                   inherent_impact, inherent_likelihood, control, residual_impact, residual_likelihood,
		                   owner, status, created_by, created_at, updated_at)
		values ($1, nullif($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		returning id
	`, r.UnitID, r.Code, r.Title, r.Description, r.Category, r.Cause, r.ImpactDescription,
		intArg(r.InherentImpact), intArg(r.InherentLikelihood), r.Control,
		intArg(r.ResidualImpact), intArg(r.ResidualLikelihood),
		r.Owner, r.Status, createdBy).Scan(&id)
	if err != nil {
		return nil, translate(err, risk.ErrNotFound, risk.ErrConflict)
	}
	return s.GetRisk(ctx, id)
}

func (s *Store) GetRisk(ctx context.Context, id int64) (*risk.Risk, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	r, err := scanRisk(s.db.QueryRowContext(ctx, riskSelect+` where k.id = $1`, id))
	if err != nil {
		return nil, translate(err, risk.ErrNotFound, risk.ErrConflict)
	}
	return &r, nil
}

// ListRisks applies every filter except Level, which depends on derived scores.
func (s *Store) ListRisks(ctx context.Context, f risk.Filter) ([]risk.Risk, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var w whereBuilder
	if f.UnitID > 0 {
		w.add("k.unit_id = $%d", f.UnitID)
	}
	if f.UnitName != "" {
		w.add("un.name = $%d", f.UnitName)
	}
	if f.Status != "" {
		w.add("k.status = $%d", f.Status)
	}
	if f.Category != "" {
		w.add("k.category = $%d", f.Category)
	}
	if f.Search != "" {
		w.add("(k.title ilike $%[1]d or k.code ilike $%[1]d)", "%"+f.Search+"%")
	}
	rows, err := s.db.QueryContext(ctx, riskSelect+w.sql()+` order by k.id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []risk.Risk
	for rows.Next() {
		r, err := scanRisk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRisk(ctx context.Context, r risk.Risk) (*risk.Risk, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update risks set unit_id = $1, code = nullif($2, ''), title = $3, description = $4, category = $5,
		       cause = $6, impact_description = $7, inherent_impact = $8, inherent_likelihood = $9,
		       control = $10, residual_impact = $11, residual_likelihood = $12, owner = $13,
		       status = $14, updated_at = now()
		where id = $15
	`, r.UnitID, r.Code, r.Title, r.Description, r.Category, r.Cause, r.ImpactDescription,
		intArg(r.InherentImpact), intArg(r.InherentLikelihood), r.Control,
		intArg(r.ResidualImpact), intArg(r.ResidualLikelihood), r.Owner, r.Status, r.ID)
	if err != nil {
		return nil, translate(err, risk.ErrNotFound, risk.ErrConflict)
	}
	if err := affectedOrNotFound(res, risk.ErrNotFound); err != nil {
		return nil, err
	}
	return s.GetRisk(ctx, r.ID)
}

func (s *Store) DeleteRisk(ctx context.Context, id int64) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from risks where id = $1`, id)
	if err != nil {
		return translate(err, risk.ErrNotFound, risk.ErrConflict)
	}
	return affectedOrNotFound(res, risk.ErrNotFound)
}
