package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is an uploaded medical document (PDF or raw text) tracked
// through extraction, chunking and indexing.
type Document struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	Filename     string             `bson:"filename" json:"filename"`
	OriginalName string             `bson:"original_name" json:"original_name"`
	ContentType  string             `bson:"content_type" json:"content_type"`
	FilePath     string             `bson:"file_path,omitempty" json:"-"`
	FileHash     string             `bson:"file_hash" json:"file_hash"`
	Text         string             `bson:"text,omitempty" json:"-"`
	Summary      string             `bson:"summary,omitempty" json:"summary,omitempty"`
	ChunkCount   int                `bson:"chunk_count" json:"chunk_count"`
	Status       string             `bson:"status" json:"status"` // pending, processing, completed, failed
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	Metadata     DocumentMetadata   `bson:"metadata" json:"metadata"`
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// DocumentMetadata carries extraction details for a processed document.
type DocumentMetadata struct {
	Size             int64   `bson:"size" json:"size"`
	Pages            int     `bson:"pages" json:"pages"`
	ExtractionMethod string  `bson:"extraction_method" json:"extraction_method"`
	QualityScore     float64 `bson:"quality_score" json:"quality_score"`
	WordCount        int     `bson:"word_count" json:"word_count"`
	CharacterCount   int     `bson:"character_count" json:"character_count"`
	HadmID           string  `bson:"hadm_id,omitempty" json:"hadm_id,omitempty"`
}

// Document processing states
const (
	DocStatusPending    = "pending"
	DocStatusProcessing = "processing"
	DocStatusCompleted  = "completed"
	DocStatusFailed     = "failed"
)

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	Message    string `json:"message"`
	TaskID     string `json:"task_id,omitempty"` // Set when processing is queued
}

// TextIngestRequest ingests raw text without a file upload.
type TextIngestRequest struct {
	Name string            `json:"name" binding:"required,min=1,max=200"`
	Text string            `json:"text" binding:"required,min=1"`
	Meta map[string]string `json:"meta,omitempty"`
}
