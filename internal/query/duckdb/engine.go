package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/rapbattles/batalla/internal/query"
	"github.com/rapbattles/batalla/internal/storage"
)

type FileSource interface {
	Files(ctx context.Context) ([]query.TableFile, error)
}

// Engine answers queries from a parquet snapshot. Every call downloads the
// files into a scratch directory, loads each table into an in-memory DuckDB
// database and runs the query with external access disabled.
type Engine struct {
	store   storage.ObjectStore
	source  FileSource
	timeout time.Duration
}

func NewEngine(store storage.ObjectStore, source FileSource, timeout time.Duration) *Engine {
	return &Engine{store: store, source: source, timeout: timeout}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText, err := query.LimitedSQL(request.SQL, request.RowLimit)
	if err != nil {
		return query.Result{}, err
	}
	if e.store == nil {
		return query.Result{}, fmt.Errorf("object store is required")
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	files := request.Files
	if len(files) == 0 && e.source != nil {
		files, err = e.source.Files(ctx)
		if err != nil {
			return query.Result{}, fmt.Errorf("resolve snapshot files: %w", err)
		}
	}
	if len(files) == 0 {
		return query.Result{}, fmt.Errorf("no files available for snapshot")
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "batalla-replica-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	tablePaths, scannedBytes, err := e.download(ctx, workDir, files)
	if err != nil {
		return query.Result{}, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := materialize(ctx, conn, tablePaths); err != nil {
		return query.Result{}, err
	}
	if err := lockDown(ctx, conn); err != nil {
		return query.Result{}, err
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, query.NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	resultRows, truncated := query.Truncate(resultRows, request.RowLimit)
	return query.Result{
		Columns:      columns,
		Rows:         resultRows,
		Truncated:    truncated,
		ScannedFiles: len(files),
		ScannedBytes: scannedBytes,
		Duration:     time.Since(start),
	}, nil
}

func materialize(ctx context.Context, conn *sql.Conn, tablePaths map[string][]string) error {
	for tableName, localPaths := range tablePaths {
		createSQL := fmt.Sprintf(`CREATE TABLE %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(tableName), quoteStringArray(localPaths))
		if _, err := conn.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("load table %q: %w", tableName, err)
		}
	}
	return nil
}

// lockDown cuts the connection off from the filesystem and network so the
// query can only see the loaded tables.
func lockDown(ctx context.Context, conn *sql.Conn) error {
	for _, statement := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("restrict duckdb: %w", err)
		}
	}
	return nil
}

func (e *Engine) download(ctx context.Context, workDir string, files []query.TableFile) (map[string][]string, int64, error) {
	tablePaths := map[string][]string{}
	var scannedBytes int64
	for index, file := range files {
		reader, err := e.store.Get(ctx, file.ObjectPath)
		if err != nil {
			return nil, 0, fmt.Errorf("get object %q: %w", file.ObjectPath, err)
		}
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(file.TableName), index))
		err = writeFile(localPath, reader)
		_ = reader.Close()
		if err != nil {
			return nil, 0, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		tablePaths[file.TableName] = append(tablePaths[file.TableName], localPath)
		scannedBytes += file.FileSizeBytes
	}
	return tablePaths, scannedBytes, nil
}
