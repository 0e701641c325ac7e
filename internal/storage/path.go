package storage

import (
	"fmt"
	"path"
	"regexp"
)

const snapshotRoot = "snapshots"

var LatestManifestKey = path.Join(snapshotRoot, "latest.json")

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

func BuildSnapshotFilePath(snapshotID, tableName string) (string, error) {
	if err := validatePathComponent(snapshotID, "snapshot id"); err != nil {
		return "", err
	}
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return path.Join(snapshotRoot, snapshotID, tableName+".parquet"), nil
}

func BuildManifestPath(snapshotID string) (string, error) {
	if err := validatePathComponent(snapshotID, "snapshot id"); err != nil {
		return "", err
	}
	return path.Join(snapshotRoot, snapshotID, "manifest.json"), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
