package rag

// Chunk is a bounded slice of document text with positional and source metadata.
// Chunks are created once at load time and never mutated afterwards.
type Chunk struct {
	Text         string            `json:"text" bson:"text"`
	DocumentName string            `json:"document_name" bson:"document_name"`
	Index        int               `json:"chunk_index" bson:"chunk_index"`
	Meta         map[string]string `json:"meta,omitempty" bson:"meta,omitempty"`
}

// MetaValue returns the metadata value for key, or "" when absent.
func (c Chunk) MetaValue(key string) string {
	if c.Meta == nil {
		return ""
	}
	return c.Meta[key]
}

// Result is a retrieved chunk paired with its similarity score.
// Scores are cosine similarity over unit vectors, so typically in [0,1]
// for text embeddings regardless of which index backend produced them.
type Result struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Document is a unit of ingestion: extracted text plus document-level
// metadata that every chunk produced from it inherits.
type Document struct {
	Name string
	Text string
	Meta map[string]string
}

// Snapshot is the export/load contract for cross-session persistence.
// Chunks and Vectors correspond positionally; ModelInfo and Dimension
// identify the embedding model the vectors came from, so a snapshot is
// never loaded into a system running a different model.
type Snapshot struct {
	Chunks    []Chunk     `bson:"chunks"`
	Vectors   [][]float32 `bson:"vectors"`
	ModelInfo string      `bson:"model_info"`
	Dimension int         `bson:"dimension"`
}
