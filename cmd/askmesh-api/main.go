package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askmesh/askmesh/internal/api"
	"github.com/askmesh/askmesh/internal/ask"
	"github.com/askmesh/askmesh/internal/audit"
	"github.com/askmesh/askmesh/internal/auth"
	"github.com/askmesh/askmesh/internal/config"
	"github.com/askmesh/askmesh/internal/maintenance"
	"github.com/askmesh/askmesh/internal/nl2sql"
	"github.com/askmesh/askmesh/internal/observability"
	"github.com/askmesh/askmesh/internal/query"
	duckdbengine "github.com/askmesh/askmesh/internal/query/duckdb"
	pgengine "github.com/askmesh/askmesh/internal/query/postgres"
	"github.com/askmesh/askmesh/internal/relevance"
	"github.com/askmesh/askmesh/internal/schema"
	"github.com/askmesh/askmesh/internal/sqlguard"
	s3store "github.com/askmesh/askmesh/internal/storage/s3"
)

func main() {
	if _, err := config.LoadEnvFile(envOr("ASKMESH_ENV_FILE", ".env")); err != nil {
		slog.Error("failed to load env file", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv("askmesh-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)
	ctx := context.Background()

	var objectStore *s3store.Store
	needsStore := cfg.Schema.Source == config.SchemaSourceS3 || cfg.Query.Engine == config.QueryEngineDuckDB
	if needsStore {
		objectStore, err = s3store.New(ctx, s3store.Config{
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
	}

	var source schema.Source = schema.FileSource{Path: cfg.Schema.Path}
	if cfg.Schema.Source == config.SchemaSourceS3 {
		source = schema.ObjectSource{Store: objectStore, Key: cfg.Schema.ObjectKey}
	}
	catalogs := schema.NewCache(source, logger)

	var queryDB *sql.DB
	var engine query.Engine
	var tables map[string][]string
	switch cfg.Query.Engine {
	case config.QueryEngineDuckDB:
		tables, err = cfg.DuckDBTableObjects()
		if err != nil {
			logger.Error("invalid duckdb table mapping", slog.Any("error", err))
			os.Exit(1)
		}
		engine = query.Instrument(config.QueryEngineDuckDB, duckdbengine.NewEngine(objectStore, duckdbengine.Config{
			Tables:           tables,
			StatementTimeout: cfg.Query.StatementTimeout,
		}))
	default:
		queryDB, err = pgengine.Open(ctx, pgengine.DBConfig{
			DSN:             cfg.Query.DSN,
			MaxOpenConns:    cfg.Query.MaxOpenConns,
			MaxIdleConns:    cfg.Query.MaxIdleConns,
			ConnMaxIdleTime: cfg.Query.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Query.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open query db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = queryDB.Close() }()
		engine = query.Instrument(config.QueryEnginePostgres, pgengine.NewEngine(queryDB, cfg.Query.StatementTimeout))
	}

	deps := ask.Dependencies{
		Catalogs: catalogs,
		Engine:   engine,
		Logger:   logger,
	}
	if cfg.AI.Enabled {
		client, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize model client", slog.Any("error", err))
			os.Exit(1)
		}
		deps.Generator = client
		deps.Summarizer = client
	} else {
		logger.Warn("model client disabled; ask and translate will fail until ASKMESH_AI_ENABLED is set")
	}

	var auditReader audit.Reader
	var auditPruner audit.Pruner
	if cfg.Audit.Enabled {
		auditDB := queryDB
		if auditDB == nil || cfg.Audit.DSN != cfg.Query.DSN {
			auditDB, err = pgengine.Open(ctx, pgengine.DBConfig{
				DSN:             cfg.Audit.DSN,
				MaxOpenConns:    cfg.Query.MaxOpenConns,
				MaxIdleConns:    cfg.Query.MaxIdleConns,
				ConnMaxIdleTime: cfg.Query.ConnMaxIdleTime,
				ConnMaxLifetime: cfg.Query.ConnMaxLifetime,
			})
			if err != nil {
				logger.Error("failed to open audit db", slog.Any("error", err))
				os.Exit(1)
			}
			defer func() { _ = auditDB.Close() }()
		}
		recorder := audit.NewPostgresRecorder(auditDB)
		deps.Recorder = recorder
		auditReader = recorder
		auditPruner = recorder
	}

	service := ask.NewService(deps, ask.Options{
		Ranker: relevance.New(cfg.Ranker.TopTables, cfg.Ranker.MaxColumns),
		Guard: sqlguard.Guard{
			DefaultLimit:   cfg.Guard.DefaultLimit,
			ScanSubqueries: cfg.Guard.ScanSubqueries,
			Strict:         cfg.Guard.Strict,
		},
		CoerceLiterals: cfg.Guard.CoerceLiterals,
		SampleRows:     cfg.Answer.SampleRows,
		Debug:          cfg.Answer.Debug,
	})

	checks := []api.ReadinessCheck{api.CheckQueryDSN(cfg), api.CheckCatalog(service)}
	if needsStore {
		checks = append(checks, api.CheckObjectStoreConfig(cfg))
	}
	handlerDeps := api.Dependencies{
		Logger:            logger,
		Service:           service,
		Readiness:         api.CombineReadinessChecks(checks...),
		DependencyTimeout: 2 * time.Second,
		Audit:             auditReader,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		handlerDeps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, handlerDeps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs := &maintenance.Service{
		Audit:        auditPruner,
		Catalogs:     catalogs,
		TableObjects: tables,
		Config: maintenance.Config{
			AuditRetention:    cfg.Maintenance.AuditRetention,
			RetentionInterval: cfg.Maintenance.RetentionInterval,
			IntegrityInterval: cfg.Maintenance.IntegrityInterval,
		},
		Logger: logger,
	}
	if objectStore != nil {
		jobs.ObjectStore = objectStore
	}
	go func() {
		if err := jobs.Run(ctx); err != nil {
			logger.Error("maintenance jobs stopped", slog.Any("error", err))
		}
	}()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("schema", source.String()),
			slog.String("engine", cfg.Query.Engine),
		)
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

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
