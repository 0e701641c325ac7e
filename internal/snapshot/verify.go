package snapshot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/rapbattles/batalla/internal/storage"
)

const maxIssueSamples = 20

type VerifySummary struct {
	SnapshotsScanned    int `json:"snapshots_scanned"`
	ReferencedFiles     int `json:"referenced_files"`
	MissingFiles        int `json:"missing_files"`
	SizeMismatchFiles   int `json:"size_mismatch_files"`
	OperationalFailures int `json:"operational_failures"`
}

// Verify checks that every table file listed by the newest limit manifests
// exists in the store with the recorded size. limit <= 0 checks all of
// them. Any issue is reported as an error alongside the summary.
func Verify(ctx context.Context, store storage.ObjectStore, limit int) (VerifySummary, error) {
	if store == nil {
		return VerifySummary{}, fmt.Errorf("object store is required")
	}
	objects, err := store.List(ctx, path.Dir(storage.LatestManifestKey))
	if err != nil {
		return VerifySummary{}, fmt.Errorf("list snapshots: %w", err)
	}

	manifests := make([]storage.ObjectInfo, 0)
	for _, object := range objects {
		parts := strings.Split(object.Key, "/")
		if len(parts) == 3 && parts[2] == "manifest.json" {
			manifests = append(manifests, object)
		}
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].LastModified.After(manifests[j].LastModified)
	})
	if limit > 0 && len(manifests) > limit {
		manifests = manifests[:limit]
	}

	var summary VerifySummary
	issueSamples := make([]string, 0, maxIssueSamples)
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(issueSamples) < maxIssueSamples {
			issueSamples = append(issueSamples, message)
		}
	}

	for _, object := range manifests {
		snapshotID := strings.Split(object.Key, "/")[1]
		manifest, err := LoadManifest(ctx, store, snapshotID)
		if err != nil {
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("snapshot %s manifest: %v", snapshotID, err))
			continue
		}
		summary.SnapshotsScanned++

		for _, table := range manifest.Tables {
			summary.ReferencedFiles++
			info, err := store.Stat(ctx, table.ObjectPath)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotFound) {
					summary.MissingFiles++
					addIssue(fmt.Sprintf("snapshot %s missing file %s", snapshotID, table.ObjectPath))
					continue
				}
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("snapshot %s stat file %s: %v", snapshotID, table.ObjectPath, err))
				continue
			}
			if info.Size != table.SizeBytes {
				summary.SizeMismatchFiles++
				addIssue(fmt.Sprintf("snapshot %s size mismatch for %s (expected=%d actual=%d)", snapshotID, table.ObjectPath, table.SizeBytes, info.Size))
			}
		}
	}

	if summary.MissingFiles > 0 {
		verifyMissingFilesTotal.Add(float64(summary.MissingFiles))
	}
	if summary.SizeMismatchFiles > 0 {
		verifySizeMismatchFilesTotal.Add(float64(summary.SizeMismatchFiles))
	}
	if issueCount > 0 {
		verifyRunsTotal.WithLabelValues("failed").Inc()
		extra := issueCount - len(issueSamples)
		if extra > 0 {
			return summary, fmt.Errorf("snapshot verification found %d issue(s): %s; ... plus %d more", issueCount, strings.Join(issueSamples, "; "), extra)
		}
		return summary, fmt.Errorf("snapshot verification found %d issue(s): %s", issueCount, strings.Join(issueSamples, "; "))
	}
	verifyRunsTotal.WithLabelValues("completed").Inc()
	return summary, nil
}
