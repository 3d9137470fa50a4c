package services

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"patient-qa-platform/internal/ai"
	"patient-qa-platform/internal/logger"
)

// SummarizationService produces and caches medical-document summaries.
type SummarizationService struct {
	geminiClient *ai.GeminiClient
	cache        *AnswerCacheService
	db           *mongo.Database
	maxChars     int
}

func NewSummarizationService(geminiClient *ai.GeminiClient, cache *AnswerCacheService, db *mongo.Database, maxChars int) *SummarizationService {
	if maxChars <= 0 {
		maxChars = 15000
	}
	return &SummarizationService{
		geminiClient: geminiClient,
		cache:        cache,
		db:           db,
		maxChars:     maxChars,
	}
}

// SummarizeDocument returns the summary for a document, serving from cache
// or the stored document record when possible. Long documents are truncated
// to the configured cap before summarization.
func (ss *SummarizationService) SummarizeDocument(ctx context.Context, documentID string) (string, error) {
	if summary, ok := ss.cache.GetSummary(ctx, documentID); ok {
		return summary, nil
	}

	oid, err := primitive.ObjectIDFromHex(documentID)
	if err != nil {
		return "", fmt.Errorf("invalid document id: %w", err)
	}

	var doc struct {
		Text    string `bson:"text"`
		Summary string `bson:"summary"`
	}
	err = ss.db.Collection("documents").FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if err != nil {
		return "", fmt.Errorf("document lookup failed: %w", err)
	}

	if doc.Summary != "" {
		ss.cache.PutSummary(ctx, documentID, doc.Summary)
		return doc.Summary, nil
	}

	if doc.Text == "" {
		return "", fmt.Errorf("document has no extracted text")
	}

	text := doc.Text
	if len(text) > ss.maxChars {
		text = text[:ss.maxChars]
	}

	summary, tokens, err := ss.geminiClient.Summarize(ctx, text)
	if err != nil {
		return "", err
	}

	logger.Info("document summarized", "document_id", documentID, "tokens", tokens)

	_, err = ss.db.Collection("documents").UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"summary": summary}},
	)
	if err != nil {
		logger.Warn("failed to persist summary", "document_id", documentID, "error", err.Error())
	}

	ss.cache.PutSummary(ctx, documentID, summary)
	return summary, nil
}
