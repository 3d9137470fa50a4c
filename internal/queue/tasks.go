package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"patient-qa-platform/internal/logger"
)

const (
	TaskProcessDocument = "document:process"
	TaskPersistSnapshot = "index:snapshot"
)

type DocumentProcessPayload struct {
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id"`
	FilePath   string `json:"file_path"`
}

// NewDocumentProcessTask queues extraction and indexing of an uploaded
// document.
func NewDocumentProcessTask(userID, documentID, filePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentProcessPayload{
		UserID:     userID,
		DocumentID: documentID,
		FilePath:   filePath,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("critical"),
	), nil
}

// NewPersistSnapshotTask queues an index snapshot save.
func NewPersistSnapshotTask() (*asynq.Task, error) {
	return asynq.NewTask(
		TaskPersistSnapshot,
		nil,
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("default"),
	), nil
}

// DocumentProcessor runs the ingestion pipeline for one document.
// Implemented by the document service.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID string) error
}

// SnapshotSaver persists the vector index. Implemented by the snapshot
// service.
type SnapshotSaver interface {
	Save(ctx context.Context) error
}

// TaskProcessor wires task types to their handlers.
type TaskProcessor struct {
	documents DocumentProcessor
	snapshots SnapshotSaver
}

func NewTaskProcessor(documents DocumentProcessor, snapshots SnapshotSaver) *TaskProcessor {
	return &TaskProcessor{
		documents: documents,
		snapshots: snapshots,
	}
}

func (p *TaskProcessor) ProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("processing queued document", "document_id", payload.DocumentID)

	if err := p.documents.Process(ctx, payload.DocumentID); err != nil {
		logger.Error("queued document processing failed", "document_id", payload.DocumentID, "error", err.Error())
		return err
	}

	return nil
}

func (p *TaskProcessor) PersistSnapshot(ctx context.Context, t *asynq.Task) error {
	return p.snapshots.Save(ctx)
}

// Register attaches the handlers to an asynq mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskProcessDocument, p.ProcessDocument)
	mux.HandleFunc(TaskPersistSnapshot, p.PersistSnapshot)
}
