package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rapbattles/batalla/internal/answer"
	"github.com/rapbattles/batalla/internal/api"
	"github.com/rapbattles/batalla/internal/auth"
	"github.com/rapbattles/batalla/internal/chat"
	"github.com/rapbattles/batalla/internal/config"
	"github.com/rapbattles/batalla/internal/database"
	"github.com/rapbattles/batalla/internal/entities"
	"github.com/rapbattles/batalla/internal/llm"
	"github.com/rapbattles/batalla/internal/mcptools"
	"github.com/rapbattles/batalla/internal/nl2sql"
	"github.com/rapbattles/batalla/internal/observability"
	"github.com/rapbattles/batalla/internal/query"
	duckdbengine "github.com/rapbattles/batalla/internal/query/duckdb"
	postgresengine "github.com/rapbattles/batalla/internal/query/postgres"
	"github.com/rapbattles/batalla/internal/reference"
	refpostgres "github.com/rapbattles/batalla/internal/reference/postgres"
	"github.com/rapbattles/batalla/internal/snapshot"
	s3store "github.com/rapbattles/batalla/internal/storage/s3"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env file", slog.Any("error", err))
	}

	cfg, err := config.LoadFromEnv("batalla-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	referenceSource := refpostgres.NewSource(db)
	references := reference.NewCache(referenceSource, logger)

	var vocabulary *entities.Vocabulary
	if cfg.Entities.VocabularyFile != "" {
		dir, name := filepath.Split(cfg.Entities.VocabularyFile)
		if dir == "" {
			dir = "."
		}
		vocabulary, err = entities.LoadVocabulary(os.DirFS(dir), name)
	} else {
		vocabulary, err = entities.DefaultVocabulary()
	}
	if err != nil {
		logger.Error("failed to load vocabulary", slog.String("path", cfg.Entities.VocabularyFile), slog.Any("error", err))
		os.Exit(1)
	}
	extractor := entities.NewExtractor(vocabulary, entities.Config{
		PersonThreshold:  cfg.Entities.PersonThreshold,
		CountryThreshold: cfg.Entities.CountryThreshold,
	})

	llmClient, err := llm.NewClient(llm.Config{BaseURL: cfg.AI.BaseURL, APIKey: cfg.AI.APIKey})
	if err != nil {
		logger.Error("failed to initialize llm client", slog.Any("error", err))
		os.Exit(1)
	}
	translator, err := nl2sql.NewOpenAITranslator(llmClient, nl2sql.OpenAIConfig{
		Model:           cfg.AI.Model,
		Temperature:     cfg.AI.Temperature,
		Timeout:         cfg.AI.Timeout,
		HistoryMessages: cfg.AI.HistoryMessages,
	})
	if err != nil {
		logger.Error("failed to initialize query translator", slog.Any("error", err))
		os.Exit(1)
	}

	var formatter answer.Formatter = answer.TableFormatter{MaxRows: cfg.Query.RowLimit}
	if cfg.AI.AnswerEnabled {
		formatter, err = answer.NewOpenAIFormatter(llmClient, answer.OpenAIConfig{
			Model:       cfg.AI.AnswerModelName(),
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize answer formatter", slog.Any("error", err))
			os.Exit(1)
		}
	}

	var engine query.Engine
	switch cfg.Query.Engine {
	case config.QueryEngineDuckDB:
		objectStore, err := s3store.New(ctx, s3store.Config{
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
		engine = duckdbengine.NewEngine(objectStore, snapshot.NewFileSource(objectStore, cfg.Query.SnapshotID), cfg.Query.Timeout)
	default:
		engine = postgresengine.NewEngine(db, cfg.Query.Timeout)
	}
	logger.Info("query engine selected", slog.String("engine", cfg.Query.Engine))

	service, err := chat.NewService(chat.Dependencies{
		Extractor:  extractor,
		References: references,
		Schema:     referenceSource,
		Translator: translator,
		Engine:     engine,
		Formatter:  formatter,
		Examples:   nl2sql.DefaultExamples,
		RowLimit:   cfg.Query.RowLimit,
		Logger:     logger,
	})
	if err != nil {
		logger.Error("failed to initialize chat service", slog.Any("error", err))
		os.Exit(1)
	}

	onReload := api.OnReferenceReload(service)
	values, err := references.Load(ctx)
	onReload(values, err)
	if err != nil {
		logger.Error("initial reference load failed", slog.Any("error", err))
	}
	go references.Run(ctx, cfg.Reference.RefreshInterval, onReload)

	deps := api.Dependencies{
		Logger:     logger,
		Chat:       service,
		References: references,
		Readiness: api.CombineReadinessChecks(
			database.HealthCheck(db),
			api.CheckReferencesLoaded(references),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.MCP.Enabled {
		deps.MCP = mcptools.NewHandler(mcptools.NewServer(service, version))
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address), slog.Bool("mcp", cfg.MCP.Enabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
