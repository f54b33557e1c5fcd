package migrate

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"

	"rcsa.id/internal/obs"
	"rcsa.id/internal/store/pg"
)

var testMigrations = fstest.MapFS{
	"0001_units.up.sql":   {Data: []byte("-- units\ncreate table units (id int);\n")},
	"0001_units.down.sql": {Data: []byte("drop table units;")},
	"0002_roles.up.sql":   {Data: []byte("create table roles (id int);\ninsert into roles values (1);")},
	"0002_roles.down.sql": {Data: []byte("drop table roles;")},
	"README.md":           {Data: []byte("ignored")},
}

func newManager(t *testing.T, seeds fs.FS) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	t.Cleanup(obs.SetOutput(io.Discard))
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewManager(db, testMigrations, seeds), mock
}

func expectTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("create table if not exists schema_seeds")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func expectHistory(mock sqlmock.Sqlmock, table string, names ...string) {
	rows := sqlmock.NewRows([]string{"name"})
	for _, n := range names {
		rows.AddRow(n)
	}
	mock.ExpectQuery(regexp.QuoteMeta("select name from " + table)).WillReturnRows(rows)
}

func TestSplitStatements(t *testing.T) {
	script := `-- header
create table t (v text);
insert into t values ('a;b');

-- trailing comment
`
	got := splitStatements(script)
	want := []string{"create table t (v text)", "insert into t values ('a;b')"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("splitStatements = %q, want %q", got, want)
	}
}

func TestUpAppliesPendingInOrder(t *testing.T) {
	m, mock := newManager(t, nil)

	expectTables(mock)
	expectHistory(mock, "schema_migrations", "0001_units.up.sql")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table roles (id int)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into roles values (1)")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_migrations (name) values ($1)")).
		WithArgs("0002_roles.up.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := m.Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if !reflect.DeepEqual(applied, []string{"0002_roles.up.sql"}) {
		t.Fatalf("applied = %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	m, mock := newManager(t, nil)

	expectTables(mock)
	expectHistory(mock, "schema_migrations")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("create table units (id int)")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	applied, err := m.Up(context.Background())
	if err == nil || !strings.Contains(err.Error(), "0001_units.up.sql") {
		t.Fatalf("Up err = %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("applied = %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	m, mock := newManager(t, nil)

	expectTables(mock)
	expectHistory(mock, "schema_migrations", "0001_units.up.sql", "0002_roles.up.sql")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("drop table roles")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("delete from schema_migrations where name = $1")).
		WithArgs("0002_roles.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := m.Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if name != "0002_roles.up.sql" {
		t.Fatalf("rolled back %q", name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownWithNothingApplied(t *testing.T) {
	m, mock := newManager(t, nil)
	expectTables(mock)
	expectHistory(mock, "schema_migrations")

	if _, err := m.Down(context.Background()); !errors.Is(err, ErrNothingApplied) {
		t.Fatalf("Down err = %v", err)
	}
}

func TestSeedSkipsAppliedFiles(t *testing.T) {
	seeds := fstest.MapFS{
		"0001_roles.sql": {Data: []byte("insert into roles values (1);")},
		"0002_units.sql": {Data: []byte("insert into units values (1);")},
	}
	m, mock := newManager(t, seeds)

	expectTables(mock)
	expectHistory(mock, "schema_seeds", "0001_roles.sql")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("insert into units values (1)")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("insert into schema_seeds (name) values ($1)")).
		WithArgs("0002_units.sql").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := m.Seed(context.Background())
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if !reflect.DeepEqual(applied, []string{"0002_units.sql"}) {
		t.Fatalf("applied = %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestEmbeddedFilesArePaired(t *testing.T) {
	ups, err := collect(pg.Migrations(), upSuffix)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(ups) == 0 {
		t.Fatal("no embedded migrations")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, upSuffix) + downSuffix
		if _, err := fs.Stat(pg.Migrations(), down); err != nil {
			t.Errorf("%s has no %s", up, down)
		}
	}
	seeds, err := collect(pg.Seeds(), ".sql")
	if err != nil || len(seeds) == 0 {
		t.Fatalf("seeds = %v, err = %v", seeds, err)
	}
}
