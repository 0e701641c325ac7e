package query

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type TableFile struct {
	TableName     string
	ObjectPath    string
	FileSizeBytes int64
}

type Request struct {
	SQL      string
	RowLimit int
	Files    []TableFile
}

type Result struct {
	Columns      []string
	Rows         [][]any
	Truncated    bool
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// LimitedSQL wraps sqlText so that at most limit+1 rows come back; the extra
// row tells the caller that the result was truncated.
func LimitedSQL(sqlText string, limit int) (string, error) {
	sqlText = StripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return "", fmt.Errorf("sql is required")
	}
	if limit <= 0 {
		return sqlText, nil
	}
	return fmt.Sprintf("SELECT * FROM (%s\n) AS q LIMIT %d", sqlText, limit+1), nil
}

func Truncate(rows [][]any, limit int) ([][]any, bool) {
	if limit > 0 && len(rows) > limit {
		return rows[:limit], true
	}
	return rows, false
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
