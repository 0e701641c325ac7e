//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rapbattles/batalla/internal/storage"
)

func TestStoreAgainstMinIO(t *testing.T) {
	endpoint := envOr("BATALLA_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("BATALLA_TEST_S3_ENDPOINT is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, Config{
		Endpoint:         endpoint,
		Region:           envOr("BATALLA_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("BATALLA_TEST_S3_BUCKET", "batalla-it"),
		AccessKeyID:      envOr("BATALLA_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("BATALLA_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "snapshots/it/manifest.json"
	payload := []byte(`{"snapshot_id":"it"}`)
	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	infos, err := store.List(ctx, "snapshots/it")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 1 || infos[0].Key != key {
		t.Fatalf("List() = %+v", infos)
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil || !bytes.Equal(got, payload) {
		t.Fatalf("Get() payload = %q, err = %v", got, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Stat(ctx, key); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() after delete error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
