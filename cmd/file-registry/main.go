package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/filescan-registry/api/swagger"
	"github.com/noah-isme/filescan-registry/internal/handler"
	internalmiddleware "github.com/noah-isme/filescan-registry/internal/middleware"
	"github.com/noah-isme/filescan-registry/internal/repository"
	"github.com/noah-isme/filescan-registry/internal/service"
	"github.com/noah-isme/filescan-registry/migrations"
	"github.com/noah-isme/filescan-registry/pkg/cache"
	"github.com/noah-isme/filescan-registry/pkg/config"
	"github.com/noah-isme/filescan-registry/pkg/database"
	"github.com/noah-isme/filescan-registry/pkg/logger"
	corsmiddleware "github.com/noah-isme/filescan-registry/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/filescan-registry/pkg/middleware/requestid"
	"github.com/noah-isme/filescan-registry/pkg/storage"
)

// @title File Registry API
// @version 0.1.0
// @description Content-addressed file registry, tagging and attachments for scan artifacts
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database, migrations.FS, logr); err != nil {
			logr.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, file record cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	blobs, err := storage.NewBlobStore(cfg.Storage.BlobDir)
	if err != nil {
		logr.Fatal("failed to prepare blob store", zap.Error(err))
	}
	attachments, err := storage.NewAttachmentStore(cfg.Storage.AttachmentsDir)
	if err != nil {
		logr.Fatal("failed to prepare attachment store", zap.Error(err))
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled && redisClient != nil)

	fileRepo := repository.NewFileRepository(db)
	occurrenceRepo := repository.NewOccurrenceRepository(db)
	tagRepo := repository.NewTagRepository(db)

	fileSvc := service.NewFileService(fileRepo, occurrenceRepo, tagRepo, blobs, cacheSvc, validate, logr)
	searchSvc := service.NewSearchService(occurrenceRepo, fileSvc, validate, metricsSvc, logr, cfg.Search.DefaultLimit)
	attachmentSvc := service.NewAttachmentService(attachments, cfg.Storage.MaxAttachmentBytes, logr)

	fileHandler := handler.NewFileHandler(searchSvc, fileSvc)
	attachmentHandler := handler.NewAttachmentHandler(attachmentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = cfg.Storage.MaxAttachmentBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.WithResponseMeta())
	{
		api.GET("/files", fileHandler.Search)
		api.POST("/files", fileHandler.Ingest)
		api.GET("/files/:sha256", fileHandler.Get)
		api.PUT("/files/:sha256/tags/:tagId", fileHandler.AddTag)
		api.DELETE("/files/:sha256/tags/:tagId", fileHandler.RemoveTag)
		api.PUT("/occurrences/:id/tags/:tagId", fileHandler.AddOccurrenceTag)
		api.DELETE("/occurrences/:id/tags/:tagId", fileHandler.RemoveOccurrenceTag)
		api.GET("/files/:sha256/attachments", attachmentHandler.List)
		api.POST("/files/:sha256/attachments", attachmentHandler.Add)
		api.DELETE("/files/:sha256/attachments/:filename", attachmentHandler.Delete)
		api.GET("/tags", fileHandler.ListTags)
		api.POST("/tags", fileHandler.CreateTag)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
