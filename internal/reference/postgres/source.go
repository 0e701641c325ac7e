package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/rapbattles/batalla/internal/reference"
)

var DomainTables = []string{"events", "persons", "battles", "battle_participants"}

type Source struct {
	db *sqlx.DB
}

func NewSource(db *sqlx.DB) *Source {
	return &Source{db: db}
}

func (s *Source) DistinctValues(ctx context.Context, field reference.Field) ([]string, error) {
	if !isKnownField(field) {
		return nil, fmt.Errorf("%w: %s", reference.ErrUnknownField, field)
	}
	query := fmt.Sprintf(
		`SELECT DISTINCT %[2]s FROM %[1]s WHERE %[2]s IS NOT NULL AND btrim(%[2]s) <> '' ORDER BY %[2]s`,
		field.Table, field.Column,
	)
	var values []string
	if err := s.db.SelectContext(ctx, &values, query); err != nil {
		return nil, fmt.Errorf("select distinct %s: %w", field, err)
	}
	return values, nil
}

type columnInfo struct {
	Table    string `db:"table_name"`
	Column   string `db:"column_name"`
	DataType string `db:"data_type"`
	Nullable string `db:"is_nullable"`
}

// DescribeSchema renders the live column layout of the domain tables, one
// table per line, e.g. "persons(person_id bigint, aka text, ...)".
func (s *Source) DescribeSchema(ctx context.Context) (string, error) {
	quoted := make([]string, 0, len(DomainTables))
	for _, table := range DomainTables {
		quoted = append(quoted, "'"+table+"'")
	}
	query := `
SELECT table_name, column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name IN (` + strings.Join(quoted, ", ") + `)
ORDER BY table_name, ordinal_position`

	var columns []columnInfo
	if err := s.db.SelectContext(ctx, &columns, query); err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("describe schema: no domain tables found")
	}

	grouped := map[string][]string{}
	for _, column := range columns {
		definition := column.Column + " " + column.DataType
		if column.Nullable == "NO" {
			definition += " not null"
		}
		grouped[column.Table] = append(grouped[column.Table], definition)
	}

	var b strings.Builder
	for _, table := range DomainTables {
		definitions, ok := grouped[table]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s(%s)\n", table, strings.Join(definitions, ", "))
	}
	return strings.TrimSpace(b.String()), nil
}

func (s *Source) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping reference db: %w", err)
	}
	return nil
}

func isKnownField(field reference.Field) bool {
	for _, known := range reference.Fields {
		if known == field {
			return true
		}
	}
	return false
}
