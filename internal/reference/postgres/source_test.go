package postgres

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/rapbattles/batalla/internal/reference"
)

func TestDistinctValues(t *testing.T) {
	db, mock := newSQLMock(t)
	source := NewSource(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT aka FROM persons WHERE aka IS NOT NULL AND btrim(aka) <> '' ORDER BY aka`)).
		WillReturnRows(sqlmock.NewRows([]string{"aka"}).AddRow("Aczino").AddRow("Chuty"))

	values, err := source.DistinctValues(context.Background(), reference.FieldPersonAKA)
	if err != nil {
		t.Fatalf("DistinctValues() error = %v", err)
	}
	if want := []string{"Aczino", "Chuty"}; !reflect.DeepEqual(values, want) {
		t.Fatalf("values = %v, want %v", values, want)
	}
	assertSQLMock(t, mock)
}

func TestDistinctValuesRejectsUnknownField(t *testing.T) {
	db, mock := newSQLMock(t)
	source := NewSource(db)

	_, err := source.DistinctValues(context.Background(), reference.Field{Table: "pg_shadow", Column: "passwd"})
	if !errors.Is(err, reference.ErrUnknownField) {
		t.Fatalf("error = %v, want ErrUnknownField", err)
	}
	assertSQLMock(t, mock)
}

func TestDistinctValuesWrapsQueryError(t *testing.T) {
	db, mock := newSQLMock(t)
	source := NewSource(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT country FROM events`)).
		WillReturnError(errors.New("relation does not exist"))

	if _, err := source.DistinctValues(context.Background(), reference.FieldEventCountry); err == nil {
		t.Fatal("expected query error")
	}
	assertSQLMock(t, mock)
}

func TestDescribeSchema(t *testing.T) {
	db, mock := newSQLMock(t)
	source := NewSource(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.columns`)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable"}).
			AddRow("events", "evento_id", "bigint", "NO").
			AddRow("events", "name", "text", "NO").
			AddRow("persons", "aka", "text", "NO").
			AddRow("persons", "country", "text", "YES"))

	description, err := source.DescribeSchema(context.Background())
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	want := "events(evento_id bigint not null, name text not null)\npersons(aka text not null, country text)"
	if description != want {
		t.Fatalf("DescribeSchema() = %q, want %q", description, want)
	}
	assertSQLMock(t, mock)
}

func TestDescribeSchemaFailsWithoutTables(t *testing.T) {
	db, mock := newSQLMock(t)
	source := NewSource(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM information_schema.columns`)).
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type", "is_nullable"}))

	if _, err := source.DescribeSchema(context.Background()); err == nil {
		t.Fatal("expected error for empty schema")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
