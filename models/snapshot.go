package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IndexSnapshot is a persisted copy of the vector index, restorable at
// startup. Loading refuses a snapshot whose embedding model or dimension
// differs from the configured provider.
type IndexSnapshot struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	ModelInfo string             `bson:"model_info" json:"model_info"`
	Dimension int                `bson:"dimension" json:"dimension"`
	ChunkCount int               `bson:"chunk_count" json:"chunk_count"`
	Payload   []byte             `bson:"payload" json:"-"` // gzip-compressed JSON snapshot
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
