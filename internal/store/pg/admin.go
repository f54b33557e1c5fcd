package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"rcsa.id/internal/auth"
)

var _ auth.AdminStore = (*Store)(nil)

const userSelect = `
	select u.id, u.user_id, u.name, coalesce(u.email, ''), u.role_id, r.name,
	       u.unit_id, coalesce(un.name, ''), u.active, u.created_at, u.updated_at
	from users u
	join roles r on r.id = u.role_id
	left join units un on un.id = u.unit_id`

func scanUser(row scanner) (auth.User, error) {
	var (
		u      auth.User
		unitID sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.UserID, &u.Name, &u.Email, &u.RoleID, &u.Role,
		&unitID, &u.UnitName, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	u.UnitID = nullInt64(unitID)
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, in auth.NewUser) (*auth.User, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var email any
	if in.Email != "" {
		email = in.Email
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		insert into users (user_id, name, email, password_hash, role_id, unit_id, active, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, true, now(), now())
		returning id
	`, in.UserID, in.Name, email, in.PasswordHash, in.RoleID, int64Arg(in.UnitID)).Scan(&id)
	if err != nil {
		return nil, translate(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return s.GetUser(ctx, id)
}

func (s *Store) ListUsers(ctx context.Context, f auth.UserFilter) ([]auth.User, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var w whereBuilder
	if f.UnitName != "" {
		w.add("un.name = $%d", f.UnitName)
	}
	if f.RoleID > 0 {
		w.add("u.role_id = $%d", f.RoleID)
	}
	rows, err := s.db.QueryContext(ctx, userSelect+w.sql()+` order by u.name, u.id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, userSelect+` where u.id = $1`, id))
	if err != nil {
		return nil, translate(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd auth.UserUpdate) (*auth.User, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	set := func(column string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, idx))
		args = append(args, v)
		idx++
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Email != nil {
		if *upd.Email == "" {
			set("email", nil)
		} else {
			set("email", *upd.Email)
		}
	}
	if upd.PasswordHash != nil {
		set("password_hash", *upd.PasswordHash)
	}
	if upd.RoleID != nil {
		set("role_id", *upd.RoleID)
	}
	if upd.UnitID != nil {
		set("unit_id", *upd.UnitID)
	}
	if upd.Active != nil {
		set("active", *upd.Active)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = now()")
		query := fmt.Sprintf(`update users set %s where id = $%d`, strings.Join(sets, ", "), idx)
		args = append(args, id)
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, translate(err, auth.ErrNotFound, auth.ErrConflict)
		}
		if err := affectedOrNotFound(res, auth.ErrNotFound); err != nil {
			return nil, err
		}
	}
	return s.GetUser(ctx, id)
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return translate(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return affectedOrNotFound(res, auth.ErrNotFound)
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `select r.id, r.name, `+rolePermissionColumns+` from roles r order by r.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Role
	for rows.Next() {
		var r auth.Role
		perms := permissionDest()
		if err := rows.Scan(append([]any{&r.ID, &r.Name}, perms...)...); err != nil {
			return nil, err
		}
		r.Permissions = scanPermissions(perms)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) CreateUnit(ctx context.Context, name, code string) (*auth.Unit, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	var codeArg any
	if code != "" {
		codeArg = code
	}
	u := auth.Unit{Name: name, Code: code}
	err := s.db.QueryRowContext(ctx, `
		insert into units (name, code, created_at)
		values ($1, $2, now())
		returning id, created_at
	`, name, codeArg).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, translate(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return &u, nil
}

func (s *Store) ListUnits(ctx context.Context) ([]auth.Unit, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `select id, name, coalesce(code, ''), created_at from units order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Unit
	for rows.Next() {
		var u auth.Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Code, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
