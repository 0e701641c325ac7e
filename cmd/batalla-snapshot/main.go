package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rapbattles/batalla/internal/config"
	"github.com/rapbattles/batalla/internal/database"
	"github.com/rapbattles/batalla/internal/observability"
	"github.com/rapbattles/batalla/internal/snapshot"
	s3store "github.com/rapbattles/batalla/internal/storage/s3"
)

func main() {
	mode := flag.String("mode", "export", "snapshot mode: export|prune|show|verify")
	interval := flag.Duration("interval", 0, "export: repeat every interval until interrupted; 0 runs once")
	snapshotID := flag.String("id", "", "show: snapshot id; empty shows the latest")
	verifyLimit := flag.Int("limit", 0, "verify: number of newest snapshots to check; 0 checks all")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("batalla-snapshot")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	switch *mode {
	case "verify":
		summary, err := snapshot.Verify(ctx, store, *verifyLimit)
		if err != nil {
			logger.Error("snapshot verification failed", slog.Any("error", err), slog.Int("missing_files", summary.MissingFiles), slog.Int("size_mismatch_files", summary.SizeMismatchFiles))
			os.Exit(1)
		}
		logger.Info("snapshot verification passed", slog.Int("snapshots", summary.SnapshotsScanned), slog.Int("files", summary.ReferencedFiles))
		return
	case "show":
		manifest, err := snapshot.LoadManifest(ctx, store, *snapshotID)
		if err != nil {
			logger.Error("failed to load manifest", slog.Any("error", err))
			os.Exit(1)
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		_ = encoder.Encode(manifest)
		return
	}

	db, err := database.Open(ctx, database.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	exporter := snapshot.NewExporter(db, store, logger)
	switch *mode {
	case "export":
		if err := exportAndPrune(ctx, exporter, cfg.Snapshot.Keep); err != nil {
			logger.Error("snapshot export failed", slog.Any("error", err))
			os.Exit(1)
		}
		if *interval <= 0 {
			return
		}
		logger.Info("snapshot worker started", slog.Duration("interval", *interval))
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Info("snapshot worker stopped")
				return
			case <-ticker.C:
				if err := exportAndPrune(ctx, exporter, cfg.Snapshot.Keep); err != nil {
					logger.Error("snapshot export failed", slog.Any("error", err))
				}
			}
		}
	case "prune":
		deleted, err := exporter.Prune(ctx, cfg.Snapshot.Keep)
		if err != nil {
			logger.Error("snapshot prune failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("snapshot prune finished", slog.Int("deleted", len(deleted)))
	default:
		logger.Error("invalid mode", slog.String("mode", *mode))
		os.Exit(1)
	}
}

func exportAndPrune(ctx context.Context, exporter *snapshot.Exporter, keep int) error {
	if _, err := exporter.Export(ctx); err != nil {
		return err
	}
	_, err := exporter.Prune(ctx, keep)
	return err
}
