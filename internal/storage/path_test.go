package storage

import "testing"

func TestBuildSnapshotFilePath(t *testing.T) {
	key, err := BuildSnapshotFilePath("3f1c2a", "battle_participants")
	if err != nil {
		t.Fatalf("BuildSnapshotFilePath() error = %v", err)
	}
	want := "snapshots/3f1c2a/battle_participants.parquet"
	if key != want {
		t.Fatalf("BuildSnapshotFilePath() = %q, want %q", key, want)
	}
}

func TestBuildManifestPath(t *testing.T) {
	key, err := BuildManifestPath("3f1c2a")
	if err != nil {
		t.Fatalf("BuildManifestPath() error = %v", err)
	}
	if key != "snapshots/3f1c2a/manifest.json" {
		t.Fatalf("BuildManifestPath() = %q", key)
	}
	if LatestManifestKey != "snapshots/latest.json" {
		t.Fatalf("LatestManifestKey = %q", LatestManifestKey)
	}
}

func TestBuildPathRejectsInvalidComponent(t *testing.T) {
	if _, err := BuildSnapshotFilePath("../oops", "events"); err == nil {
		t.Fatal("expected invalid snapshot id error")
	}
	if _, err := BuildManifestPath(""); err == nil {
		t.Fatal("expected empty snapshot id error")
	}
}
