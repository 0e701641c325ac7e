package answer

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const NoResultsMessage = "No encontré resultados para esa pregunta."

type Request struct {
	Question  string
	SQL       string
	Columns   []string
	Rows      [][]any
	Truncated bool
}

type EmitFunc func(chunk string) error

type Formatter interface {
	Format(ctx context.Context, req Request, emit EmitFunc) (string, error)
}

type TableFormatter struct {
	MaxRows int
}

func (f TableFormatter) Format(_ context.Context, req Request, emit EmitFunc) (string, error) {
	if len(req.Rows) == 0 {
		return NoResultsMessage, emitAll(emit, NoResultsMessage)
	}
	text := RenderTable(req.Columns, req.Rows, f.MaxRows)
	if req.Truncated || (f.MaxRows > 0 && len(req.Rows) > f.MaxRows) {
		text += "\n\n_Resultados truncados._"
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		if err := emitAll(emit, line); err != nil {
			return text, err
		}
	}
	return text, nil
}

func RenderTable(columns []string, rows [][]any, maxRows int) string {
	if maxRows > 0 && len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	var b strings.Builder
	b.WriteString("|")
	for _, column := range columns {
		b.WriteString(" " + escapeCell(column) + " |")
	}
	b.WriteString("\n|")
	for range columns {
		b.WriteString(" --- |")
	}
	for _, row := range rows {
		b.WriteString("\n|")
		for i := range columns {
			var value any
			if i < len(row) {
				value = row[i]
			}
			b.WriteString(" " + escapeCell(FormatValue(value)) + " |")
		}
	}
	return b.String()
}

func FormatValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case []byte:
		return string(typed)
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format(time.DateOnly)
		}
		return typed.Format(time.RFC3339)
	case bool:
		if typed {
			return "sí"
		}
		return "no"
	default:
		return fmt.Sprint(typed)
	}
}

func escapeCell(value string) string {
	value = strings.ReplaceAll(value, "|", `\|`)
	return strings.ReplaceAll(value, "\n", " ")
}

func emitAll(emit EmitFunc, chunk string) error {
	if emit == nil || chunk == "" {
		return nil
	}
	return emit(chunk)
}
