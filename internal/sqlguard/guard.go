package sqlguard

import (
	"errors"
	"fmt"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

var (
	ErrEmpty              = errors.New("sql is empty")
	ErrNotSelect          = errors.New("only SELECT statements are allowed")
	ErrForbiddenKeyword   = errors.New("sql contains a forbidden keyword")
	ErrForbiddenFunction  = errors.New("sql calls a forbidden function")
	ErrMultipleStatements = errors.New("only a single statement is allowed")
	ErrUnterminated       = errors.New("sql has an unterminated literal or comment")
)

var forbiddenKeywords = map[string]struct{}{
	"drop":     {},
	"delete":   {},
	"update":   {},
	"insert":   {},
	"alter":    {},
	"truncate": {},
	"create":   {},
	"grant":    {},
	"revoke":   {},
	"into":     {},
	"copy":     {},
	"merge":    {},
	"call":     {},
	"execute":  {},
	"lock":     {},
	"vacuum":   {},
	"reindex":  {},
	"uescape":  {},
	"attach":   {},
	"pragma":   {},
	"install":  {},
}

var forbiddenFunctions = map[string]struct{}{
	"pg_sleep":             {},
	"pg_read_file":         {},
	"pg_read_binary_file":  {},
	"pg_ls_dir":            {},
	"lo_import":            {},
	"lo_export":            {},
	"dblink":               {},
	"pg_terminate_backend": {},
	"pg_cancel_backend":    {},
	"set_config":           {},

	"read_text":              {},
	"read_blob":              {},
	"read_csv":               {},
	"read_csv_auto":          {},
	"read_json":              {},
	"read_json_auto":         {},
	"read_json_objects":      {},
	"read_json_objects_auto": {},
	"read_ndjson":            {},
	"read_ndjson_auto":       {},
	"read_ndjson_objects":    {},
	"read_parquet":           {},
	"parquet_scan":           {},
	"parquet_metadata":       {},
	"parquet_schema":         {},
	"parquet_file_metadata":  {},
	"parquet_kv_metadata":    {},
	"sniff_csv":              {},
	"glob":                   {},
	"query_table":            {},
}

type Rejection struct {
	Reason string
	Token  string
	Err    error
}

func (r *Rejection) Error() string {
	if r.Token != "" {
		return fmt.Sprintf("%v: %q", r.Err, r.Token)
	}
	return r.Err.Error()
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

func Reason(err error) string {
	var rejection *Rejection
	if errors.As(err, &rejection) {
		return rejection.Reason
	}
	return ""
}

var parser = sqlparser.NewTestParser()

func Validate(raw string) (string, error) {
	sqlText := Clean(raw)
	if sqlText == "" {
		return "", reject("empty", "", ErrEmpty)
	}
	if !strings.HasPrefix(strings.ToLower(sqlText), "select") {
		return "", reject("not_select", "", ErrNotSelect)
	}

	lexemes, err := scan(sqlText)
	if err != nil {
		return "", reject("unterminated", "", err)
	}
	if len(lexemes) == 0 || lexemes[0].kind != lexWord || lexemes[0].text != "select" {
		return "", reject("not_select", "", ErrNotSelect)
	}

	end := len(sqlText)
	for i, lx := range lexemes {
		switch lx.kind {
		case lexSemicolon:
			for _, rest := range lexemes[i+1:] {
				if rest.kind != lexSemicolon {
					return "", reject("multiple_statements", "", ErrMultipleStatements)
				}
			}
			if lx.pos < end {
				end = lx.pos
			}
		case lexWord:
			if _, ok := forbiddenKeywords[lx.text]; ok {
				return "", reject("forbidden_keyword", lx.text, ErrForbiddenKeyword)
			}
			if _, ok := forbiddenFunctions[lx.text]; ok {
				return "", reject("forbidden_function", lx.text, ErrForbiddenFunction)
			}
		case lexQuotedIdent:
			if _, ok := forbiddenFunctions[lx.text]; ok {
				return "", reject("forbidden_function", lx.text, ErrForbiddenFunction)
			}
		}
	}

	statement := strings.TrimSpace(sqlText[:end])
	if err := checkStructure(statement); err != nil {
		return "", err
	}
	return statement, nil
}

func Clean(raw string) string {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "```")
	if start < 0 {
		return text
	}
	body := text[start+3:]
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	body = strings.TrimLeft(body, " \t")
	if len(body) >= 3 && strings.EqualFold(body[:3], "sql") && (len(body) == 3 || isSpace(body[3])) {
		body = body[3:]
	}
	return strings.TrimSpace(body)
}

// checkStructure only rejects statements the parser understands and that are
// not queries. Postgres-only syntax such as ILIKE or :: casts does not parse
// and is left to the lexical checks.
func checkStructure(statement string) error {
	stmt, err := parser.Parse(statement)
	if err != nil {
		return nil
	}
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union:
		return nil
	default:
		return reject("not_select", "", ErrNotSelect)
	}
}

func reject(reason, token string, err error) error {
	return &Rejection{Reason: reason, Token: token, Err: err}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}
