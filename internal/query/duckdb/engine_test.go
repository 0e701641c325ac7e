package duckdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/rapbattles/batalla/internal/query"
	"github.com/rapbattles/batalla/internal/storage"
	"github.com/rapbattles/batalla/internal/storage/memory"
)

type personRow struct {
	PersonID int64  `parquet:"person_id"`
	AKA      string `parquet:"aka"`
	Country  string `parquet:"country"`
	Active   bool   `parquet:"active"`
}

type staticSource struct {
	files []query.TableFile
	err   error
	calls int
}

func (s *staticSource) Files(context.Context) ([]query.TableFile, error) {
	s.calls++
	return s.files, s.err
}

func seedPersons(t *testing.T, store storage.ObjectStore) query.TableFile {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[personRow](buf)
	rows := []personRow{
		{PersonID: 1, AKA: "Aczino", Country: "mexico", Active: true},
		{PersonID: 2, AKA: "Chuty", Country: "espana", Active: false},
		{PersonID: 3, AKA: "Rapder", Country: "mexico", Active: true},
	}
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("parquet Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("parquet Close() error = %v", err)
	}
	key := "snapshots/s1/persons.parquet"
	if _, err := store.Put(context.Background(), key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	return query.TableFile{TableName: "persons", ObjectPath: key, FileSizeBytes: int64(buf.Len())}
}

func TestExecuteReadsSnapshotFromSource(t *testing.T) {
	store := memory.New()
	source := &staticSource{files: []query.TableFile{seedPersons(t, store)}}
	engine := NewEngine(store, source, 0)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL: "SELECT count(*) AS c FROM persons WHERE lower(country) = 'mexico' AND active;",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("source calls = %d", source.calls)
	}
	if len(result.Rows) != 1 || result.Rows[0][0] != int64(2) {
		t.Fatalf("rows = %#v", result.Rows)
	}
	if result.ScannedFiles != 1 || result.ScannedBytes == 0 {
		t.Fatalf("scanned = %d files / %d bytes", result.ScannedFiles, result.ScannedBytes)
	}
}

func TestExecuteAppliesRowLimit(t *testing.T) {
	store := memory.New()
	file := seedPersons(t, store)
	engine := NewEngine(store, nil, 0)

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:      "SELECT aka FROM persons ORDER BY person_id -- todos",
		RowLimit: 2,
		Files:    []query.TableFile{file},
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 || !result.Truncated {
		t.Fatalf("rows = %d, truncated = %v", len(result.Rows), result.Truncated)
	}
	if result.Rows[0][0] != "Aczino" || result.Columns[0] != "aka" {
		t.Fatalf("first row = %#v, columns = %v", result.Rows[0], result.Columns)
	}
}

func TestExecuteErrors(t *testing.T) {
	store := memory.New()
	if _, err := NewEngine(store, nil, 0).Execute(context.Background(), query.Request{SQL: "SELECT 1"}); err == nil || !strings.Contains(err.Error(), "no files") {
		t.Fatalf("error = %v, want no files", err)
	}

	sourceErr := errors.New("manifest missing")
	if _, err := NewEngine(store, &staticSource{err: sourceErr}, 0).Execute(context.Background(), query.Request{SQL: "SELECT 1"}); !errors.Is(err, sourceErr) {
		t.Fatalf("error = %v, want %v", err, sourceErr)
	}

	missing := []query.TableFile{{TableName: "persons", ObjectPath: "snapshots/none/persons.parquet"}}
	if _, err := NewEngine(store, nil, 0).Execute(context.Background(), query.Request{SQL: "SELECT 1", Files: missing}); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("error = %v, want ErrObjectNotFound", err)
	}

	if _, err := NewEngine(nil, nil, 0).Execute(context.Background(), query.Request{SQL: "SELECT 1"}); err == nil {
		t.Fatal("expected error for missing store")
	}
}

func TestExecuteCannotReachHostFiles(t *testing.T) {
	store := memory.New()
	file := seedPersons(t, store)
	engine := NewEngine(store, nil, 0)

	secretPath := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(secretPath, []byte("batalla-secret-line\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	statements := map[string]string{
		"read_text":     fmt.Sprintf("SELECT content FROM read_text('%s')", secretPath),
		"quoted":        fmt.Sprintf(`SELECT content FROM "read_blob"('%s')`, secretPath),
		"read_csv_auto": fmt.Sprintf("SELECT * FROM read_csv_auto('%s')", secretPath),
		"replacement":   fmt.Sprintf("SELECT * FROM '%s'", secretPath),
		"glob":          fmt.Sprintf("SELECT file FROM glob('%s')", filepath.Dir(secretPath)+"/*"),
		"reenable":      "SET enable_external_access = true",
		"unlock":        "SET lock_configuration = false",
	}
	for name, statement := range statements {
		t.Run(name, func(t *testing.T) {
			result, err := engine.Execute(context.Background(), query.Request{SQL: statement, Files: []query.TableFile{file}})
			if err == nil {
				t.Fatalf("Execute() rows = %#v, want error", result.Rows)
			}
			if strings.Contains(err.Error(), "batalla-secret-line") {
				t.Fatalf("error leaks file content: %v", err)
			}
		})
	}

	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT count(*) FROM persons", Files: []query.TableFile{file}})
	if err != nil {
		t.Fatalf("Execute() after rejected statements error = %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0][0] != int64(3) {
		t.Fatalf("rows = %#v", result.Rows)
	}
}

func TestQuoteHelpers(t *testing.T) {
	if got := quoteIdent(`we"ird`); got != `"we""ird"` {
		t.Fatalf("quoteIdent() = %s", got)
	}
	if got := quoteStringArray([]string{"/tmp/a.parquet", "o'b"}); got != `['/tmp/a.parquet','o''b']` {
		t.Fatalf("quoteStringArray() = %s", got)
	}
	if got := sanitizeFileComponent("../x"); got != "__x" {
		t.Fatalf("sanitizeFileComponent() = %s", got)
	}
}
