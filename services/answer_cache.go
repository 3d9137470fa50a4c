package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"patient-qa-platform/internal/logger"
	"patient-qa-platform/models"
)

// AnswerCacheService caches answers and document summaries in Redis.
// Keys are derived from a hash of the question so raw question text never
// appears in Redis keys or logs.
type AnswerCacheService struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewAnswerCacheService(rdb *redis.Client, ttl time.Duration) *AnswerCacheService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AnswerCacheService{rdb: rdb, ttl: ttl}
}

type cachedAnswer struct {
	Answer       string                `json:"answer"`
	AnswerSource string                `json:"answer_source"`
	Sources      []models.AnswerSource `json:"sources,omitempty"`
	TokensUsed   int                   `json:"tokens_used"`
}

func answerKey(userID, question string) string {
	sum := sha256.Sum256([]byte(userID + "\x00" + question))
	return "answer:" + hex.EncodeToString(sum[:])
}

func summaryKey(documentID string) string {
	return "summary:" + documentID
}

// GetAnswer returns a cached answer for this user's question, if any.
func (ac *AnswerCacheService) GetAnswer(ctx context.Context, userID, question string) (*models.AskResponse, bool) {
	raw, err := ac.rdb.Get(ctx, answerKey(userID, question)).Bytes()
	if err != nil {
		return nil, false
	}

	var cached cachedAnswer
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false
	}

	return &models.AskResponse{
		Answer:       cached.Answer,
		AnswerSource: cached.AnswerSource,
		Sources:      cached.Sources,
		TokensUsed:   cached.TokensUsed,
		Cached:       true,
		Timestamp:    time.Now(),
	}, true
}

// PutAnswer stores an answer under the question hash.
func (ac *AnswerCacheService) PutAnswer(ctx context.Context, userID, question string, resp *models.AskResponse) {
	raw, err := json.Marshal(cachedAnswer{
		Answer:       resp.Answer,
		AnswerSource: resp.AnswerSource,
		Sources:      resp.Sources,
		TokensUsed:   resp.TokensUsed,
	})
	if err != nil {
		return
	}

	if err := ac.rdb.Set(ctx, answerKey(userID, question), raw, ac.ttl).Err(); err != nil {
		logger.Warn("answer cache write failed", "error", err.Error())
	}
}

// GetSummary returns a cached document summary.
func (ac *AnswerCacheService) GetSummary(ctx context.Context, documentID string) (string, bool) {
	raw, err := ac.rdb.Get(ctx, summaryKey(documentID)).Bytes()
	if err != nil {
		return "", false
	}

	data, err := decompressPayload(raw)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// PutSummary caches a document summary, gzipped when large. Summaries are
// kept longer than answers, the document text does not change.
func (ac *AnswerCacheService) PutSummary(ctx context.Context, documentID, summary string) {
	payload, err := compressPayload([]byte(summary))
	if err != nil {
		return
	}

	if err := ac.rdb.Set(ctx, summaryKey(documentID), payload, 24*time.Hour).Err(); err != nil {
		logger.Warn("summary cache write failed", "error", err.Error())
	}
}

// InvalidateDocument removes cached state tied to a document.
func (ac *AnswerCacheService) InvalidateDocument(ctx context.Context, documentID string) error {
	return ac.rdb.Del(ctx, summaryKey(documentID)).Err()
}

// InvalidateAnswers drops all cached answers. Called whenever the index
// content changes, stale answers would otherwise survive re-ingestion.
func (ac *AnswerCacheService) InvalidateAnswers(ctx context.Context) error {
	iter := ac.rdb.Scan(ctx, 0, "answer:*", 0).Iterator()
	pipe := ac.rdb.Pipeline()
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return err
}
