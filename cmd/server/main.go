package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	ingestapp "github.com/mapflow/backend/internal/application/ingest"
	queryapp "github.com/mapflow/backend/internal/application/query"
	"github.com/mapflow/backend/internal/infrastructure/config"
	"github.com/mapflow/backend/internal/infrastructure/llm"
	"github.com/mapflow/backend/internal/infrastructure/logger"
	"github.com/mapflow/backend/internal/infrastructure/persistence"
	"github.com/mapflow/backend/internal/infrastructure/scheduler"
	"github.com/mapflow/backend/internal/infrastructure/storage"
	"github.com/mapflow/backend/internal/infrastructure/tabular"
	"github.com/mapflow/backend/internal/interfaces/http/handler"
	"github.com/mapflow/backend/internal/interfaces/http/middleware"
	"github.com/mapflow/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Mapflow Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database with a zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Object storage: in-memory for development, S3-compatible otherwise
	var objectStorage ingestapp.ObjectStorage
	switch cfg.Storage.Provider {
	case "s3":
		s3Storage, err := storage.NewS3ObjectStorage(&cfg.Storage)
		if err != nil {
			log.Fatal("Failed to initialize object storage", zap.Error(err))
		}
		if err := s3Storage.EnsureBucket(ctx); err != nil {
			log.Fatal("Failed to ensure storage bucket", zap.Error(err))
		}
		objectStorage = s3Storage
		log.Info("Object storage ready",
			zap.String("provider", "s3"),
			zap.String("bucket", cfg.Storage.Bucket),
		)
	default:
		objectStorage = storage.NewMemoryObjectStorage()
		log.Warn("Using in-memory object storage; uploads do not survive restarts")
	}

	// Model client for analysis and SQL generation. model_id "stub" keeps
	// the whole pipeline runnable without AWS credentials.
	var llmClient llm.Client
	if cfg.LLM.ModelID == "stub" {
		llmClient = llm.NewStubClient()
		log.Warn("Using stub model client; analysis endpoints return canned output")
	} else {
		llmClient, err = llm.NewBedrockClient(ctx, cfg.LLM.Region, cfg.LLM.ModelID, log)
		if err != nil {
			log.Fatal("Failed to initialize model client", zap.Error(err))
		}
	}

	parseCache := tabular.NewParseCache(tabular.DefaultCacheEntries, tabular.DefaultCacheTTL)

	// Repositories
	historyRepo := persistence.NewGormImportHistoryRepository(db.DB)
	jobRepo := persistence.NewGormImportJobRepository(db.DB)
	sessionRepo := persistence.NewGormUploadSessionRepository(db.DB)
	mappingErrorRepo := persistence.NewGormMappingErrorRepository(db.DB)
	threadRepo := persistence.NewGormQueryThreadRepository(db.DB)
	tableStore := persistence.NewGormTableStore(db.DB)
	sqlExecutor := persistence.NewGormSQLExecutor(db.DB)

	// Application services
	executor := ingestapp.NewExecutor(tableStore, historyRepo, mappingErrorRepo,
		parseCache, log,
		ingestapp.WithChunkSize(cfg.Worker.ChunkSize),
		ingestapp.WithWorkers(cfg.Worker.Workers),
	)
	importService := ingestapp.NewImportService(executor, objectStorage, parseCache, log)
	taskService := ingestapp.NewTaskService(jobRepo, log)
	uploadService := ingestapp.NewUploadService(objectStorage, sessionRepo,
		cfg.Upload.MaxFileSizeBytes(), log)
	historyService := ingestapp.NewHistoryService(historyRepo, mappingErrorRepo, tableStore, log)
	analyzer := ingestapp.NewAnalyzer(llmClient, tableStore, parseCache, threadRepo, log)
	queryService := queryapp.NewService(llmClient, tableStore, sqlExecutor, log)
	exporter := queryapp.NewExporter(queryService, cfg.Export.RowLimit, cfg.Export.Timeout, log)

	// Background import worker
	workerCfg := scheduler.DefaultImportWorkerConfig()
	workerCfg.Enabled = cfg.Worker.Enabled
	if cfg.Worker.PollInterval > 0 {
		workerCfg.PollInterval = cfg.Worker.PollInterval
	}
	if cfg.Upload.SweepInterval > 0 {
		workerCfg.SweepInterval = cfg.Upload.SweepInterval
	}
	if cfg.Upload.MaxIdle > 0 {
		workerCfg.UploadMaxIdle = cfg.Upload.MaxIdle
	}
	worker, err := scheduler.NewImportWorker(workerCfg, jobRepo, objectStorage,
		executor, uploadService, log)
	if err != nil {
		log.Fatal("Failed to create import worker", zap.Error(err))
	}
	if workerCfg.Enabled {
		if err := worker.Start(ctx); err != nil {
			log.Fatal("Failed to start import worker", zap.Error(err))
		}
	} else {
		log.Info("Import worker disabled")
	}

	// HTTP engine and middleware
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Failed to set trusted proxies", zap.Error(err))
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSAllowOrigins,
			AllowMethods: cfg.HTTP.CORSAllowMethods,
			AllowHeaders: cfg.HTTP.CORSAllowHeaders,
			MaxAge:       12 * time.Hour,
		}),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	router.NewRouter(engine).
		Register(handler.NewImportHandler(importService, taskService, log)).
		Register(handler.NewAnalyzeHandler(analyzer, importService, log)).
		Register(handler.NewUploadHandler(uploadService, log)).
		Register(handler.NewQueryHandler(queryService, exporter, log)).
		Register(handler.NewTablesHandler(tableStore, log)).
		Register(handler.NewHistoryHandler(historyService, log)).
		Register(handler.NewSystemHandler(db)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	stop()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Error("Import worker did not stop cleanly", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
