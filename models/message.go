package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one answered question in a conversation. Question text is
// stored here but never written to logs.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	Question       string             `bson:"question" json:"question"`
	Answer         string             `bson:"answer" json:"answer"`
	AnswerSource   string             `bson:"answer_source" json:"answer_source"`
	Sources        []AnswerSource     `bson:"sources,omitempty" json:"sources,omitempty"`
	TokenCost      int                `bson:"token_cost" json:"token_cost"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
}

// AnswerSource points at a document chunk that supported an answer.
type AnswerSource struct {
	DocumentName string  `bson:"document_name" json:"document_name"`
	ChunkIndex   int     `bson:"chunk_index" json:"chunk_index"`
	Preview      string  `bson:"preview" json:"preview"`
	Score        float32 `bson:"score" json:"score"`
}

type AskRequest struct {
	Question       string            `json:"question" binding:"required,min=1,max=2000"`
	ConversationID string            `json:"conversation_id,omitempty"`
	TopK           int               `json:"top_k,omitempty" binding:"omitempty,min=1,max=50"`
	MinScore       *float32          `json:"min_score,omitempty"`
	Filter         map[string]string `json:"filter,omitempty"`
}

type AskResponse struct {
	Answer         string         `json:"answer"`
	AnswerSource   string         `json:"answer_source"`
	Sources        []AnswerSource `json:"sources,omitempty"`
	TokensUsed     int            `json:"tokens_used"`
	ConversationID string         `json:"conversation_id"`
	Cached         bool           `json:"cached"`
	Timestamp      time.Time      `json:"timestamp"`
}

type ConversationHistory struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	TotalTokens    int       `json:"total_tokens"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
