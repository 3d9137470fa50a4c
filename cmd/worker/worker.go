package main

import (
	"context"
	"log"
	"time"

	"patient-qa-platform/internal/ai"
	"patient-qa-platform/internal/config"
	"patient-qa-platform/internal/logger"
	"patient-qa-platform/internal/queue"
	"patient-qa-platform/internal/rag"
	"patient-qa-platform/services"

	"github.com/hibiken/asynq"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

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

	// Retrieval pipeline. The worker runs its own system instance; the
	// atlas backend shares state with the API server through MongoDB,
	// while the flat backend is hydrated from the latest snapshot.
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

	snapshots := services.NewSnapshotService(db, system, cfg.SnapshotName)
	if cfg.VectorBackend == "flat" {
		if restored, err := snapshots.Restore(startupCtx); err != nil {
			logger.Warn("Snapshot restore failed", "error", err)
		} else if restored {
			logger.Info("Index restored from snapshot", "chunks", system.Len())
		}
	}

	cache := services.NewAnswerCacheService(rdb, time.Duration(cfg.CacheTTL)*time.Second)
	extractor := services.NewPDFExtractor(cfg)
	records := services.NewRecordService(db)
	documents := services.NewDocumentService(cfg, db, system, extractor, cache, nil, nil, records)

	// Redis options for Asynq
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 20,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			StrictPriority: true,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	// Create task processor and register handlers
	processor := queue.NewTaskProcessor(documents, snapshots)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting worker",
		"concurrency", 20,
		"redis", redisOpt.Addr,
		"backend", cfg.VectorBackend)

	// Start the server
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
