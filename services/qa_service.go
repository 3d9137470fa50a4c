package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"patient-qa-platform/internal/ai"
	"patient-qa-platform/internal/config"
	"patient-qa-platform/internal/logger"
	"patient-qa-platform/internal/rag"
	"patient-qa-platform/internal/telemetry"
	"patient-qa-platform/models"
)

// ErrQuotaExceeded and ErrModelUnavailable are re-exported so handlers don't
// import internal/ai.
var (
	ErrQuotaExceeded    = ai.ErrQuotaExceeded
	ErrModelUnavailable = ai.ErrModelUnavailable
)

// QAService answers patient questions: cache lookup, retrieval, context
// assembly, quota check, generation, and message persistence.
//
// Question text is treated as sensitive and never logged.
type QAService struct {
	config  *config.Config
	db      *mongo.Database
	system  *rag.System
	gemini  *ai.GeminiClient
	cache   *AnswerCacheService
	metrics *telemetry.Metrics
}

func NewQAService(cfg *config.Config, db *mongo.Database, system *rag.System, gemini *ai.GeminiClient, cache *AnswerCacheService, metrics *telemetry.Metrics) *QAService {
	return &QAService{
		config:  cfg,
		db:      db,
		system:  system,
		gemini:  gemini,
		cache:   cache,
		metrics: metrics,
	}
}

// Ask answers a question against the indexed documents.
func (qs *QAService) Ask(ctx context.Context, userID string, req *models.AskRequest) (*models.AskResponse, error) {
	if cached, ok := qs.cache.GetAnswer(ctx, userID, req.Question); ok {
		cached.ConversationID = qs.resolveConversation(req.ConversationID)
		logger.Debug("answer served from cache", "user_id", userID)
		return cached, nil
	}

	topK := req.TopK
	if topK <= 0 {
		topK = qs.config.RAGTopK
	}

	minScore := qs.config.ScoreThresholds[0]
	if req.MinScore != nil {
		minScore = *req.MinScore
	}

	retrievalStart := time.Now()
	results, err := qs.system.Retrieve(ctx, req.Question, topK, minScore, req.Filter)
	if err != nil {
		return nil, err
	}
	if qs.metrics != nil {
		qs.metrics.RecordRetrieval(qs.config.VectorBackend, time.Since(retrievalStart).Seconds(), len(results))
	}

	block, err := qs.system.AssembleContext(ctx, results)
	if err != nil {
		return nil, err
	}
	if qs.metrics != nil {
		qs.metrics.RecordContextTier(string(block.Tier))
	}

	prompt := ai.BuildAnswerPrompt(req.Question, block)
	estimated := len(prompt) / 4
	if err := ai.CheckUserQuota(ctx, qs.db, userID, estimated); err != nil {
		return nil, err
	}

	answer, tokens, err := qs.gemini.AnswerQuestion(ctx, req.Question, block)
	if err != nil {
		return nil, err
	}
	// The quota was charged with an estimate; settle the difference now
	// that the real token count is known.
	if delta := tokens - estimated; delta != 0 {
		if err := ai.RecordActualUsage(ctx, qs.db, userID, delta); err != nil {
			logger.Warn("quota adjustment failed", "user_id", userID, "error", err.Error())
		}
	}
	if qs.metrics != nil {
		qs.metrics.RecordTokensUsed(int64(tokens), qs.config.GeminiModel)
	}

	sources := make([]models.AnswerSource, 0, len(block.Sources))
	for _, s := range block.Sources {
		sources = append(sources, models.AnswerSource{
			DocumentName: s.DocumentName,
			ChunkIndex:   s.ChunkIndex,
			Preview:      s.Preview,
			Score:        s.Score,
		})
	}

	resp := &models.AskResponse{
		Answer:         answer,
		AnswerSource:   string(block.Tier),
		Sources:        sources,
		TokensUsed:     tokens,
		ConversationID: qs.resolveConversation(req.ConversationID),
		Timestamp:      time.Now(),
	}

	qs.persistMessage(ctx, userID, req.Question, resp)
	qs.cache.PutAnswer(ctx, userID, req.Question, resp)

	logger.Info("question answered",
		"user_id", userID,
		"tier", block.Tier,
		"sources", len(sources),
		"tokens", tokens,
	)
	return resp, nil
}

func (qs *QAService) resolveConversation(conversationID string) string {
	if conversationID == "" {
		return uuid.NewString()
	}
	return conversationID
}

func (qs *QAService) persistMessage(ctx context.Context, userID, question string, resp *models.AskResponse) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		logger.Warn("message not persisted, invalid user id", "user_id", userID)
		return
	}

	msg := models.Message{
		UserID:         userOID,
		ConversationID: resp.ConversationID,
		Question:       question,
		Answer:         resp.Answer,
		AnswerSource:   resp.AnswerSource,
		Sources:        resp.Sources,
		TokenCost:      resp.TokensUsed,
		Timestamp:      resp.Timestamp,
	}

	if _, err := qs.db.Collection("messages").InsertOne(ctx, msg); err != nil {
		logger.Warn("failed to persist message", "error", err.Error())
	}
}

// History returns one conversation's messages in order.
func (qs *QAService) History(ctx context.Context, userID, conversationID string) (*models.ConversationHistory, error) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, errors.New("invalid user id")
	}

	cur, err := qs.db.Collection("messages").Find(ctx,
		bson.M{"user_id": userOID, "conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var messages []models.Message
	if err := cur.All(ctx, &messages); err != nil {
		return nil, err
	}

	history := &models.ConversationHistory{
		ConversationID: conversationID,
		Messages:       messages,
	}
	for _, m := range messages {
		history.TotalTokens += m.TokenCost
	}
	if len(messages) > 0 {
		history.CreatedAt = messages[0].Timestamp
		history.UpdatedAt = messages[len(messages)-1].Timestamp
	}
	return history, nil
}

// Conversations lists the user's conversation ids, most recent first.
func (qs *QAService) Conversations(ctx context.Context, userID string) ([]string, error) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, errors.New("invalid user id")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userOID}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$conversation_id",
			"latest": bson.M{"$max": "$timestamp"},
		}}},
		{{Key: "$sort", Value: bson.M{"latest": -1}}},
	}

	cur, err := qs.db.Collection("messages").Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}
