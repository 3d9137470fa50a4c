package ai

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrQuotaExceeded is returned when a user has exhausted their daily
// generation token budget.
var ErrQuotaExceeded = errors.New("daily quota exceeded")

// UserQuota tracks the per-user daily generation budget. Usage resets at
// midnight UTC on first access each day.
type UserQuota struct {
	UserID          string    `bson:"user_id"`
	DailyTokenLimit int       `bson:"daily_token_limit"`
	TokensUsedToday int       `bson:"tokens_used_today"`
	QuestionsToday  int       `bson:"questions_today"`
	LastResetDate   time.Time `bson:"last_reset_date"`
	CreatedAt       time.Time `bson:"created_at"`
	UpdatedAt       time.Time `bson:"updated_at"`
}

const defaultDailyTokenLimit = 50000

// CheckUserQuota verifies the user has headroom for estimatedTokens and,
// if so, records the usage.
func CheckUserQuota(ctx context.Context, db *mongo.Database, userID string, estimatedTokens int) error {
	col := db.Collection("user_quotas")

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	// Roll over stale counters before checking
	_, err := col.UpdateOne(ctx, bson.M{
		"user_id":         userID,
		"last_reset_date": bson.M{"$lt": today},
	}, bson.M{
		"$set": bson.M{
			"tokens_used_today": 0,
			"questions_today":   0,
			"last_reset_date":   today,
			"updated_at":        now,
		},
	})
	if err != nil {
		return err
	}

	var quota UserQuota
	err = col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&quota)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			quota = UserQuota{
				UserID:          userID,
				DailyTokenLimit: defaultDailyTokenLimit,
				LastResetDate:   today,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if _, err := col.InsertOne(ctx, quota); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	if quota.TokensUsedToday+estimatedTokens > quota.DailyTokenLimit {
		return ErrQuotaExceeded
	}

	_, err = col.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$inc": bson.M{
				"tokens_used_today": estimatedTokens,
				"questions_today":   1,
			},
			"$set": bson.M{"updated_at": now},
		},
	)
	return err
}

// RecordActualUsage adjusts the recorded usage once the real token count is
// known. The delta may be negative when the estimate was high.
func RecordActualUsage(ctx context.Context, db *mongo.Database, userID string, delta int) error {
	if delta == 0 {
		return nil
	}
	col := db.Collection("user_quotas")
	_, err := col.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$inc": bson.M{"tokens_used_today": delta},
			"$set": bson.M{"updated_at": time.Now()},
		},
	)
	return err
}

// GetUserQuotaStatus returns the current quota document for a user.
func GetUserQuotaStatus(ctx context.Context, db *mongo.Database, userID string) (*UserQuota, error) {
	col := db.Collection("user_quotas")

	var quota UserQuota
	if err := col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&quota); err != nil {
		return nil, err
	}
	return &quota, nil
}

// SetUserQuotaLimit sets the daily token limit for a user, creating the
// quota document if needed.
func SetUserQuotaLimit(ctx context.Context, db *mongo.Database, userID string, dailyLimit int) error {
	col := db.Collection("user_quotas")

	_, err := col.UpdateOne(
		ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{
				"daily_token_limit": dailyLimit,
				"updated_at":        time.Now(),
			},
			"$setOnInsert": bson.M{
				"tokens_used_today": 0,
				"questions_today":   0,
				"created_at":        time.Now(),
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}
