package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"patient-qa-platform/internal/ai"
	"patient-qa-platform/internal/config"
	"patient-qa-platform/internal/logger"
	"patient-qa-platform/internal/rag"
	"patient-qa-platform/internal/telemetry"
	"patient-qa-platform/middleware"
	"patient-qa-platform/routes"
	"patient-qa-platform/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Tracing and metrics
	shutdownTracer, err := telemetry.InitTracer("patient-qa-platform")
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	} else {
		defer shutdownTracer()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		logger.Warn("Metrics disabled", "error", err)
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Connect to Redis
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Retrieval pipeline: embedding provider, vector index, system
	embedder, err := ai.NewEmbedder(cfg)
	if err != nil {
		log.Fatal("Failed to initialize embedding provider:", err)
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	var index rag.Index
	switch cfg.VectorBackend {
	case "atlas":
		index, err = rag.NewAtlasIndex(startupCtx, db.Collection("doc_chunks"), cfg.VectorIndexName, cfg.VectorDimensions)
		if err != nil {
			log.Fatal("Failed to initialize Atlas vector index:", err)
		}
	default:
		index = rag.NewFlatIndex()
	}

	system := rag.NewSystem(embedder, index, rag.Options{
		ChunkSize:       cfg.ChunkSize,
		ChunkOverlap:    cfg.ChunkOverlap,
		Thresholds:      cfg.ScoreThresholds,
		StrongMatch:     float32(cfg.StrongMatch),
		MaxContextChars: cfg.MaxContextChars,
	})

	// Generation layer
	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize Gemini client:", err)
	}
	defer gemini.Close()

	// Background task queue
	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	// Services
	cache := services.NewAnswerCacheService(rdb, time.Duration(cfg.CacheTTL)*time.Second)
	extractor := services.NewPDFExtractor(cfg)
	records := services.NewRecordService(db)
	documents := services.NewDocumentService(cfg, db, system, extractor, cache, queueClient, metrics, records)
	qa := services.NewQAService(cfg, db, system, gemini, cache, metrics)
	summaries := services.NewSummarizationService(gemini, cache, db, cfg.MaxSummaryChars)
	snapshots := services.NewSnapshotService(db, system, cfg.SnapshotName)

	// The flat backend starts empty; restore the newest snapshot so a
	// restart does not force a full re-embedding of the corpus.
	if cfg.VectorBackend == "flat" {
		restored, err := snapshots.Restore(startupCtx)
		if err != nil {
			logger.Warn("Snapshot restore failed", "error", err)
		} else if restored {
			logger.Info("Index restored from snapshot", "chunks", system.Len())
		}
	}

	// Seed patient records when a data file is configured. SeedRecords
	// rebuilds the index when the file brought anything new, so a fresh
	// deployment answers questions about the records right away.
	if cfg.RecordDataPath != "" {
		if n, err := documents.SeedRecords(startupCtx, cfg.RecordDataPath); err != nil {
			logger.Warn("Patient record seed failed", "path", cfg.RecordDataPath, "error", err)
		} else if n > 0 {
			logger.Info("Patient records loaded", "count", n, "chunks", system.Len())
		}
	}

	// Periodic snapshot persistence
	cron := services.NewCronService(snapshots, system, cfg.SnapshotCron, cfg.VectorBackend == "flat")
	if err := cron.Start(); err != nil {
		logger.Warn("Snapshot scheduler disabled", "error", err)
	} else {
		defer cron.Stop()
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	if metrics != nil {
		router.Use(middleware.MetricsMiddleware(metrics))
	}
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":       "healthy",
			"index_chunks": system.Len(),
			"backend":      cfg.VectorBackend,
			"timestamp":    time.Now(),
		})
	})

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg, rdb)
	roleMiddleware := middleware.NewRoleMiddleware()

	// Setup routes
	routes.SetupAuthRoutes(router, cfg, mongoClient, rdb)
	routes.SetupDocumentRoutes(router, cfg, authMiddleware, documents, summaries)
	routes.SetupQARoutes(router, cfg, rdb, authMiddleware, roleMiddleware, qa)
	routes.SetupRecordRoutes(router, authMiddleware, roleMiddleware, records, documents)
	routes.SetupAdminRoutes(router, db, authMiddleware, roleMiddleware, system, snapshots, documents)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port, "backend", cfg.VectorBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	// Persist the index before exit so the next start can restore it
	if cfg.VectorBackend == "flat" {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := snapshots.Save(saveCtx); err != nil {
			logger.Warn("Final snapshot save failed", "error", err)
		}
		saveCancel()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
