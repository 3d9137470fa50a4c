package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"patient-qa-platform/internal/config"
	"patient-qa-platform/internal/logger"
	"patient-qa-platform/internal/queue"
	"patient-qa-platform/internal/rag"
	"patient-qa-platform/internal/telemetry"
	"patient-qa-platform/models"
)

// DocumentService owns the ingestion pipeline: extract, clean, chunk,
// embed, index, and mirror the document to Mongo. Small files are
// processed synchronously, large ones are queued.
type DocumentService struct {
	config    *config.Config
	db        *mongo.Database
	system    *rag.System
	extractor *PDFExtractor
	cache     *AnswerCacheService
	queue     *asynq.Client
	metrics   *telemetry.Metrics
	records   *RecordService
}

func NewDocumentService(cfg *config.Config, db *mongo.Database, system *rag.System, extractor *PDFExtractor, cache *AnswerCacheService, queueClient *asynq.Client, metrics *telemetry.Metrics, records *RecordService) *DocumentService {
	return &DocumentService{
		config:    cfg,
		db:        db,
		system:    system,
		extractor: extractor,
		cache:     cache,
		queue:     queueClient,
		metrics:   metrics,
		records:   records,
	}
}

// Upload stores the file, registers the document, and either processes it
// inline or queues it depending on size.
func (ds *DocumentService) Upload(ctx context.Context, userID string, fileHeader *multipart.FileHeader) (*models.UploadResponse, error) {
	if fileHeader.Size > ds.config.MaxFileSize {
		return nil, fmt.Errorf("file exceeds maximum size of %d bytes", ds.config.MaxFileSize)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(ds.config.FileStorageDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}

	storedName := uuid.NewString() + filepath.Ext(fileHeader.Filename)
	storedPath := filepath.Join(ds.config.FileStorageDir, storedName)

	dst, err := os.Create(storedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(dst, hasher), src); err != nil {
		dst.Close()
		os.Remove(storedPath)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	dst.Close()

	fileHash := hex.EncodeToString(hasher.Sum(nil))

	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		os.Remove(storedPath)
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	// Duplicate uploads short-circuit to the existing document
	var existing models.Document
	err = ds.db.Collection("documents").
		FindOne(ctx, bson.M{"user_id": userOID, "file_hash": fileHash}).
		Decode(&existing)
	if err == nil {
		os.Remove(storedPath)
		return &models.UploadResponse{
			ID:         existing.ID.Hex(),
			Filename:   existing.OriginalName,
			Status:     existing.Status,
			ChunkCount: existing.ChunkCount,
			Message:    "Document already uploaded",
		}, nil
	}

	doc := models.Document{
		UserID:       userOID,
		Filename:     storedName,
		OriginalName: fileHeader.Filename,
		ContentType:  fileHeader.Header.Get("Content-Type"),
		FilePath:     storedPath,
		FileHash:     fileHash,
		Status:       models.DocStatusPending,
		Metadata:     models.DocumentMetadata{Size: fileHeader.Size},
		UploadedAt:   time.Now(),
	}

	res, err := ds.db.Collection("documents").InsertOne(ctx, doc)
	if err != nil {
		os.Remove(storedPath)
		return nil, fmt.Errorf("failed to register document: %w", err)
	}
	docID := res.InsertedID.(primitive.ObjectID)

	// Large files go through the worker
	if fileHeader.Size > ds.config.SyncProcessingLimit && ds.queue != nil {
		task, err := queue.NewDocumentProcessTask(userID, docID.Hex(), storedPath)
		if err != nil {
			return nil, err
		}
		info, err := ds.queue.Enqueue(task)
		if err != nil {
			return nil, fmt.Errorf("failed to queue processing: %w", err)
		}
		// Queue a snapshot save behind the processing task so the worker's
		// index changes survive a restart. Runs on the lower-priority queue.
		if snapTask, snapErr := queue.NewPersistSnapshotTask(); snapErr == nil {
			if _, snapErr = ds.queue.Enqueue(snapTask); snapErr != nil {
				logger.Warn("failed to queue snapshot persistence", "error", snapErr.Error())
			}
		}
		return &models.UploadResponse{
			ID:       docID.Hex(),
			Filename: fileHeader.Filename,
			Status:   models.DocStatusPending,
			Message:  "Document queued for processing",
			TaskID:   info.ID,
		}, nil
	}

	if err := ds.Process(ctx, docID.Hex()); err != nil {
		return nil, err
	}

	var processed models.Document
	if err := ds.db.Collection("documents").FindOne(ctx, bson.M{"_id": docID}).Decode(&processed); err != nil {
		return nil, err
	}

	return &models.UploadResponse{
		ID:         docID.Hex(),
		Filename:   fileHeader.Filename,
		Status:     processed.Status,
		ChunkCount: processed.ChunkCount,
		Message:    "Document processed",
	}, nil
}

// Process runs extraction and indexing for a registered document. Used by
// both the sync path and the worker.
func (ds *DocumentService) Process(ctx context.Context, documentID string) error {
	start := time.Now()

	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}

	var doc models.Document
	if err := ds.db.Collection("documents").FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		return fmt.Errorf("document lookup failed: %w", err)
	}

	ds.setStatus(ctx, oid, models.DocStatusProcessing, "")

	extraction, err := ds.extractor.ExtractText(ctx, doc.FilePath)
	if err != nil {
		ds.setStatus(ctx, oid, models.DocStatusFailed, err.Error())
		ds.recordProcessing(start, "failed")
		return fmt.Errorf("extraction failed: %w", err)
	}

	meta := map[string]string{"document_id": documentID}
	if doc.Metadata.HadmID != "" {
		meta["hadm_id"] = doc.Metadata.HadmID
	}

	count, err := ds.system.AddDocuments(ctx, []rag.Document{{
		Name: doc.OriginalName,
		Text: extraction.Text,
		Meta: meta,
	}})
	if err != nil {
		ds.setStatus(ctx, oid, models.DocStatusFailed, err.Error())
		ds.recordProcessing(start, "failed")
		return fmt.Errorf("indexing failed: %w", err)
	}

	now := time.Now()
	_, err = ds.db.Collection("documents").UpdateOne(ctx, bson.M{"_id": oid}, bson.M{
		"$set": bson.M{
			"text":        extraction.Text,
			"chunk_count": count,
			"status":      models.DocStatusCompleted,
			"processed_at": now,
			"metadata.pages":             extraction.Pages,
			"metadata.extraction_method": extraction.Method,
			"metadata.quality_score":     extraction.QualityScore,
			"metadata.word_count":        extraction.WordCount,
			"metadata.character_count":   extraction.CharacterCount,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	// Index content changed, cached answers are stale
	if ds.cache != nil {
		if cacheErr := ds.cache.InvalidateAnswers(ctx); cacheErr != nil {
			logger.Warn("answer cache invalidation failed", "error", cacheErr.Error())
		}
	}

	ds.recordProcessing(start, "completed")
	if ds.metrics != nil {
		ds.metrics.RecordChunksIndexed(int64(count), ds.config.VectorBackend)
	}
	logger.Info("document processed", "document_id", documentID, "chunks", count, "method", extraction.Method)
	return nil
}

// IngestText indexes raw text without a file upload.
func (ds *DocumentService) IngestText(ctx context.Context, userID string, req *models.TextIngestRequest) (*models.UploadResponse, error) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	sum := sha256.Sum256([]byte(req.Text))

	doc := models.Document{
		UserID:       userOID,
		Filename:     req.Name,
		OriginalName: req.Name,
		ContentType:  "text/plain",
		FileHash:     hex.EncodeToString(sum[:]),
		Text:         req.Text,
		Status:       models.DocStatusProcessing,
		Metadata: models.DocumentMetadata{
			Size:           int64(len(req.Text)),
			CharacterCount: len(req.Text),
			HadmID:         req.Meta["hadm_id"],
		},
		UploadedAt: time.Now(),
	}

	res, err := ds.db.Collection("documents").InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}
	docID := res.InsertedID.(primitive.ObjectID)

	meta := map[string]string{"document_id": docID.Hex()}
	for k, v := range req.Meta {
		meta[k] = v
	}

	count, err := ds.system.AddDocuments(ctx, []rag.Document{{
		Name: req.Name,
		Text: req.Text,
		Meta: meta,
	}})
	if err != nil {
		ds.setStatus(ctx, docID, models.DocStatusFailed, err.Error())
		return nil, fmt.Errorf("indexing failed: %w", err)
	}

	now := time.Now()
	_, _ = ds.db.Collection("documents").UpdateOne(ctx, bson.M{"_id": docID}, bson.M{
		"$set": bson.M{
			"chunk_count":  count,
			"status":       models.DocStatusCompleted,
			"processed_at": now,
		},
	})

	if ds.cache != nil {
		if cacheErr := ds.cache.InvalidateAnswers(ctx); cacheErr != nil {
			logger.Warn("answer cache invalidation failed", "error", cacheErr.Error())
		}
	}

	return &models.UploadResponse{
		ID:         docID.Hex(),
		Filename:   req.Name,
		Status:     models.DocStatusCompleted,
		ChunkCount: count,
		Message:    "Text indexed",
	}, nil
}

// List returns the user's documents, newest first, without text bodies.
func (ds *DocumentService) List(ctx context.Context, userID string) ([]models.Document, error) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}

	cur, err := ds.db.Collection("documents").Find(ctx,
		bson.M{"user_id": userOID},
		options.Find().
			SetSort(bson.D{{Key: "uploaded_at", Value: -1}}).
			SetProjection(bson.M{"text": 0}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []models.Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// Get returns one document without its text body, enforcing ownership.
func (ds *DocumentService) Get(ctx context.Context, userID, documentID string) (*models.Document, error) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", err)
	}
	docOID, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}

	var doc models.Document
	err = ds.db.Collection("documents").FindOne(ctx,
		bson.M{"_id": docOID, "user_id": userOID},
		options.FindOne().SetProjection(bson.M{"text": 0}),
	).Decode(&doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes a document record and its stored file. The vector index
// is rebuilt from the remaining documents so deleted content stops being
// retrievable.
func (ds *DocumentService) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := ds.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}

	if _, err := ds.db.Collection("documents").DeleteOne(ctx, bson.M{"_id": doc.ID}); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	if doc.FilePath != "" {
		if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove stored file", "path", doc.FilePath, "error", err.Error())
		}
	}

	if err := ds.Reindex(ctx); err != nil {
		return fmt.Errorf("reindex after delete failed: %w", err)
	}

	if ds.cache != nil {
		if cacheErr := ds.cache.InvalidateDocument(ctx, documentID); cacheErr != nil {
			logger.Warn("summary cache invalidation failed", "error", cacheErr.Error())
		}
	}
	return nil
}

// SeedRecords loads the patient-record export at path and makes the
// records retrievable. The index is rebuilt when the file introduced new
// records or when the index is still empty, so a fresh deployment serves
// record content without a manual rebuild. Returns the number of records
// loaded.
func (ds *DocumentService) SeedRecords(ctx context.Context, path string) (int, error) {
	if ds.records == nil {
		return 0, fmt.Errorf("record service not configured")
	}
	loaded, inserted, err := ds.records.LoadFromFile(ctx, path)
	if err != nil {
		return loaded, err
	}
	if loaded == 0 {
		return 0, nil
	}
	if inserted > 0 || ds.system.Len() == 0 {
		if err := ds.Reindex(ctx); err != nil {
			return loaded, fmt.Errorf("records loaded but indexing failed: %w", err)
		}
	}
	return loaded, nil
}

// Reindex rebuilds the vector index from every completed document plus
// the structured patient records.
func (ds *DocumentService) Reindex(ctx context.Context) error {
	cur, err := ds.db.Collection("documents").Find(ctx, bson.M{"status": models.DocStatusCompleted})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var ragDocs []rag.Document
	for cur.Next(ctx) {
		var doc models.Document
		if err := cur.Decode(&doc); err != nil {
			return err
		}
		if doc.Text == "" {
			continue
		}
		meta := map[string]string{"document_id": doc.ID.Hex()}
		if doc.Metadata.HadmID != "" {
			meta["hadm_id"] = doc.Metadata.HadmID
		}
		ragDocs = append(ragDocs, rag.Document{
			Name: doc.OriginalName,
			Text: doc.Text,
			Meta: meta,
		})
	}
	if err := cur.Err(); err != nil {
		return err
	}

	if ds.records != nil {
		recordDocs, err := ds.records.AsDocuments(ctx)
		if err != nil {
			return err
		}
		ragDocs = append(ragDocs, recordDocs...)
	}

	count, err := ds.system.LoadDocuments(ctx, ragDocs)
	if err != nil {
		return err
	}

	if ds.cache != nil {
		if cacheErr := ds.cache.InvalidateAnswers(ctx); cacheErr != nil {
			logger.Warn("answer cache invalidation failed", "error", cacheErr.Error())
		}
	}

	logger.Info("index rebuilt", "documents", len(ragDocs), "chunks", count)
	return nil
}

func (ds *DocumentService) setStatus(ctx context.Context, id primitive.ObjectID, status, errMsg string) {
	update := bson.M{"status": status}
	if errMsg != "" {
		update["error_message"] = errMsg
	}
	_, err := ds.db.Collection("documents").UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		logger.Warn("failed to update document status", "document_id", id.Hex(), "error", err.Error())
	}
}

func (ds *DocumentService) recordProcessing(start time.Time, status string) {
	if ds.metrics != nil {
		ds.metrics.RecordDocumentProcessing(time.Since(start).Seconds(), status)
	}
}
