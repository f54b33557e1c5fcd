package pg

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// translate maps driver errors onto domain sentinels. Foreign key failures
// mean a referenced row (role, unit, master) does not exist.
func translate(err, notFound, conflict error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", conflict, constraintName(pgErr))
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", notFound, constraintName(pgErr))
		}
	}
	return err
}

func constraintName(e *pgconn.PgError) string {
	if e.ConstraintName != "" {
		return e.ConstraintName
	}
	return strings.TrimSpace(e.Message)
}

func affectedOrNotFound(res sql.Result, notFound error) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return notFound
	}
	return nil
}

// whereBuilder accumulates "$n" placeholders for optional filters.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " where " + strings.Join(w.clauses, " and ")
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func intArg(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func int64Arg(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
