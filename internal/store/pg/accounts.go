package pg

import (
	"context"
	"strings"

	"rcsa.id/internal/auth"
)

var _ auth.AccountStore = (*Store)(nil)

// rolePermissionColumns follows auth.Capabilities. Columns may be boolean,
// smallint or bit depending on how the schema was created, so they are
// scanned untyped and normalized.
const rolePermissionColumns = `r.can_create, r.can_read, r.can_view, r.can_update, r.can_approve, r.can_delete, r.can_provision`

const accountSelect = `
	select u.id, u.user_id, coalesce(u.email, ''), u.name, u.password_hash, u.active,
	       u.role_id, r.name, coalesce(un.name, ''),
	       ` + rolePermissionColumns + `
	from users u
	join roles r on r.id = u.role_id
	left join units un on un.id = u.unit_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanPermissions(dest []any) auth.Permissions {
	raw := make(map[string]any, len(auth.Capabilities))
	for i, key := range auth.Capabilities {
		raw[key] = *(dest[i].(*any))
	}
	return auth.NormalizePermissions(raw)
}

func permissionDest() []any {
	dest := make([]any, len(auth.Capabilities))
	for i := range dest {
		dest[i] = new(any)
	}
	return dest
}

func scanAccount(row scanner) (*auth.Account, error) {
	var a auth.Account
	perms := permissionDest()
	dest := append([]any{
		&a.ID, &a.UserID, &a.Email, &a.Name, &a.PasswordHash, &a.Active,
		&a.RoleID, &a.Role, &a.UnitName,
	}, perms...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	a.Permissions = scanPermissions(perms)
	return &a, nil
}

// FindAccountByLogin matches the login handle exactly or the email case-insensitively.
func (s *Store) FindAccountByLogin(ctx context.Context, login string) (*auth.Account, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	row := s.db.QueryRowContext(ctx, accountSelect+`
	where u.user_id = $1 or lower(u.email) = $2
	order by (u.user_id = $1) desc
	limit 1`, login, strings.ToLower(login))
	a, err := scanAccount(row)
	if err != nil {
		return nil, translate(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return a, nil
}

func (s *Store) FindAccountByID(ctx context.Context, id int64) (*auth.Account, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	a, err := scanAccount(s.db.QueryRowContext(ctx, accountSelect+`
	where u.id = $1`, id))
	if err != nil {
		return nil, translate(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return a, nil
}
