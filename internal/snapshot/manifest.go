package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rapbattles/batalla/internal/query"
	"github.com/rapbattles/batalla/internal/storage"
)

var ErrManifestNotFound = errors.New("snapshot manifest not found")

type Manifest struct {
	SnapshotID string      `json:"snapshot_id"`
	CreatedAt  time.Time   `json:"created_at"`
	Tables     []TableFile `json:"tables"`
}

type TableFile struct {
	Table      string `json:"table"`
	ObjectPath string `json:"object_path"`
	Rows       int64  `json:"rows"`
	SizeBytes  int64  `json:"size_bytes"`
}

func (m Manifest) QueryFiles() []query.TableFile {
	files := make([]query.TableFile, 0, len(m.Tables))
	for _, table := range m.Tables {
		files = append(files, query.TableFile{
			TableName:     table.Table,
			ObjectPath:    table.ObjectPath,
			FileSizeBytes: table.SizeBytes,
		})
	}
	return files
}

func LoadManifest(ctx context.Context, store storage.ObjectStore, snapshotID string) (Manifest, error) {
	key := storage.LatestManifestKey
	if snapshotID = strings.TrimSpace(snapshotID); snapshotID != "" {
		var err error
		key, err = storage.BuildManifestPath(snapshotID)
		if err != nil {
			return Manifest{}, err
		}
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Manifest{}, fmt.Errorf("%w: %s", ErrManifestNotFound, key)
		}
		return Manifest{}, fmt.Errorf("read manifest %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	var manifest Manifest
	if err := json.NewDecoder(reader).Decode(&manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest %q: %w", key, err)
	}
	if len(manifest.Tables) == 0 {
		return Manifest{}, fmt.Errorf("manifest %q lists no tables", key)
	}
	return manifest, nil
}

func putManifest(ctx context.Context, store storage.ObjectStore, key string, manifest Manifest) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write manifest %q: %w", key, err)
	}
	return nil
}

// FileSource resolves the parquet files of one snapshot for the replica
// engine. The manifest is read on every call so that a new latest export is
// picked up without a restart.
type FileSource struct {
	store      storage.ObjectStore
	snapshotID string
}

func NewFileSource(store storage.ObjectStore, snapshotID string) *FileSource {
	return &FileSource{store: store, snapshotID: snapshotID}
}

func (s *FileSource) Files(ctx context.Context) ([]query.TableFile, error) {
	manifest, err := LoadManifest(ctx, s.store, s.snapshotID)
	if err != nil {
		return nil, err
	}
	return manifest.QueryFiles(), nil
}
