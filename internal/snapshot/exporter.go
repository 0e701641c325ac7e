package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"github.com/rapbattles/batalla/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

type selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type tableExport func(ctx context.Context, db selecter, store storage.ObjectStore, snapshotID string) (TableFile, error)

func exportTable[T any](table, selectSQL string) tableExport {
	return func(ctx context.Context, db selecter, store storage.ObjectStore, snapshotID string) (TableFile, error) {
		var rows []T
		if err := db.SelectContext(ctx, &rows, selectSQL); err != nil {
			return TableFile{}, fmt.Errorf("load %s: %w", table, err)
		}

		var buf bytes.Buffer
		writer := parquet.NewGenericWriter[T](&buf)
		if _, err := writer.Write(rows); err != nil {
			return TableFile{}, fmt.Errorf("encode %s parquet: %w", table, err)
		}
		if err := writer.Close(); err != nil {
			return TableFile{}, fmt.Errorf("close %s parquet: %w", table, err)
		}

		key, err := storage.BuildSnapshotFilePath(snapshotID, table)
		if err != nil {
			return TableFile{}, err
		}
		size := int64(buf.Len())
		if _, err := store.Put(ctx, key, &buf, size, storage.PutOptions{ContentType: parquetContentType}); err != nil {
			return TableFile{}, fmt.Errorf("upload %s: %w", table, err)
		}
		return TableFile{Table: table, ObjectPath: key, Rows: int64(len(rows)), SizeBytes: size}, nil
	}
}

type Exporter struct {
	db          selecter
	store       storage.ObjectStore
	logger      *slog.Logger
	concurrency int
	now         func() time.Time
	newID       func() string
}

func NewExporter(db selecter, store storage.ObjectStore, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{
		db:          db,
		store:       store,
		logger:      logger,
		concurrency: len(tableExports),
		now:         time.Now,
		newID:       func() string { return uuid.NewString() },
	}
}

// Export writes every domain table as parquet under a fresh snapshot id,
// then publishes the manifest. The latest pointer moves only after all
// tables are uploaded.
func (e *Exporter) Export(ctx context.Context) (Manifest, error) {
	if e.db == nil || e.store == nil {
		return Manifest{}, fmt.Errorf("database and object store are required")
	}
	manifest := Manifest{
		SnapshotID: e.newID(),
		CreatedAt:  e.now().UTC(),
		Tables:     make([]TableFile, len(tableExports)),
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(e.concurrency)
	for i, export := range tableExports {
		group.Go(func() error {
			file, err := export(groupCtx, e.db, e.store, manifest.SnapshotID)
			if err != nil {
				return err
			}
			manifest.Tables[i] = file
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		exportRunsTotal.WithLabelValues("failed").Inc()
		return Manifest{}, fmt.Errorf("export snapshot %s: %w", manifest.SnapshotID, err)
	}

	manifestKey, err := storage.BuildManifestPath(manifest.SnapshotID)
	if err != nil {
		exportRunsTotal.WithLabelValues("failed").Inc()
		return Manifest{}, err
	}
	if err := putManifest(ctx, e.store, manifestKey, manifest); err != nil {
		exportRunsTotal.WithLabelValues("failed").Inc()
		return Manifest{}, err
	}
	if err := putManifest(ctx, e.store, storage.LatestManifestKey, manifest); err != nil {
		exportRunsTotal.WithLabelValues("failed").Inc()
		return Manifest{}, err
	}
	exportRunsTotal.WithLabelValues("completed").Inc()

	var totalRows int64
	for _, table := range manifest.Tables {
		totalRows += table.Rows
	}
	exportRowsTotal.Add(float64(totalRows))
	e.logger.InfoContext(ctx, "snapshot exported",
		slog.String("snapshot_id", manifest.SnapshotID),
		slog.Int("tables", len(manifest.Tables)),
		slog.Int64("rows", totalRows),
	)
	return manifest, nil
}

// Prune deletes every snapshot except the newest keep ones. The snapshot the
// latest pointer references is never deleted.
func (e *Exporter) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	protected := ""
	latest, err := LoadManifest(ctx, e.store, "")
	switch {
	case err == nil:
		protected = latest.SnapshotID
	case !errors.Is(err, ErrManifestNotFound):
		return nil, err
	}

	objects, err := e.store.List(ctx, path.Dir(storage.LatestManifestKey))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	type snapshotObjects struct {
		id     string
		keys   []string
		newest time.Time
	}
	byID := map[string]*snapshotObjects{}
	for _, object := range objects {
		parts := strings.Split(object.Key, "/")
		if len(parts) < 3 {
			continue
		}
		entry, ok := byID[parts[1]]
		if !ok {
			entry = &snapshotObjects{id: parts[1]}
			byID[parts[1]] = entry
		}
		entry.keys = append(entry.keys, object.Key)
		if object.LastModified.After(entry.newest) {
			entry.newest = object.LastModified
		}
	}

	snapshots := make([]*snapshotObjects, 0, len(byID))
	for _, entry := range byID {
		snapshots = append(snapshots, entry)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].newest.Equal(snapshots[j].newest) {
			return snapshots[i].id > snapshots[j].id
		}
		return snapshots[i].newest.After(snapshots[j].newest)
	})

	var deleted []string
	for i, entry := range snapshots {
		if i < keep || entry.id == protected {
			continue
		}
		for _, key := range entry.keys {
			if err := e.store.Delete(ctx, key); err != nil {
				return deleted, fmt.Errorf("delete snapshot %s: %w", entry.id, err)
			}
		}
		deleted = append(deleted, entry.id)
		snapshotsPrunedTotal.Inc()
		e.logger.InfoContext(ctx, "snapshot pruned", slog.String("snapshot_id", entry.id))
	}
	return deleted, nil
}
