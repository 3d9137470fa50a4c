package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI     string
	DBName       string
	Port         string
	GinMode      string
	CORSOrigins  []string
	MaxFileSize  int64
	AllowedTypes []string
	BcryptCost   int

	// Rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Chunking
	ChunkSize    int
	ChunkOverlap int

	// Retrieval
	RAGTopK         int
	ScoreThresholds []float32
	StrongMatch     float64
	MaxContextChars int

	// Vector index backend: "flat" (in-memory brute force, default) or
	// "atlas" (MongoDB Atlas $vectorSearch)
	VectorBackend    string
	VectorIndexName  string
	VectorDimensions int
	SnapshotName     string

	// Embeddings configuration
	EmbeddingsProvider    string // "google" (default), "openai"
	GoogleEmbeddingsModel string
	OpenAIAPIKey          string
	OpenAIBaseURL         string
	OpenAIEmbeddingsModel string

	// Generation
	GeminiAPIKey    string
	GeminiModel     string
	GeminiTier      string
	MaxSummaryChars int

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int
	CacheTTL      int // seconds

	// JWT Token Secrets
	AccessSecret  string
	RefreshSecret string

	// File handling
	FileStorageDir      string
	SyncProcessingLimit int64

	// Patient record data (JSON lines, optional)
	RecordDataPath string

	// Snapshot persistence cron
	SnapshotCron string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017/patient_qa"),
		DBName:       getEnv("DB_NAME", "patient_qa"),
		Port:         getEnv("PORT", "8080"),
		GinMode:      getEnv("GIN_MODE", "debug"),
		CORSOrigins:  strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxFileSize:  getEnvInt64("MAX_FILE_SIZE", 52428800), // 50MB
		AllowedTypes: strings.Split(getEnv("ALLOWED_FILE_TYPES", "application/pdf,text/plain"), ","),
		BcryptCost:   getEnvInt("BCRYPT_COST", 12),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 500),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 50),

		RAGTopK:         getEnvInt("RAG_TOP_K", 5),
		ScoreThresholds: getEnvFloat32List("RAG_SCORE_THRESHOLDS", []float32{0.3, 0.2, 0.1, 0.0}),
		StrongMatch:     getEnvFloat64("RAG_STRONG_MATCH", 0.2),
		MaxContextChars: getEnvInt("RAG_MAX_CONTEXT_CHARS", 8000),

		VectorBackend:    getEnv("VECTOR_BACKEND", "flat"),
		VectorIndexName:  getEnv("MONGODB_VECTOR_INDEX", "doc_chunks_vector"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 768),
		SnapshotName:     getEnv("SNAPSHOT_NAME", "primary"),

		EmbeddingsProvider:    getEnv("EMBEDDINGS_PROVIDER", "google"),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		OpenAIEmbeddingsModel: getEnv("OPENAI_EMBEDDINGS_MODEL", "text-embedding-3-small"),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:      getEnv("GEMINI_TIER", "free"),
		MaxSummaryChars: getEnvInt("MAX_SUMMARY_CHARS", 15000),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTL:      getEnvInt("CACHE_TTL_SECONDS", 3600),

		AccessSecret:  getEnv("ACCESS_SECRET", ""),
		RefreshSecret: getEnv("REFRESH_SECRET", ""),

		FileStorageDir:      getEnv("FILE_STORAGE_DIR", "./storage"),
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 5242880), // 5MB sync processing limit

		RecordDataPath: getEnv("RECORD_DATA_PATH", ""),

		SnapshotCron: getEnv("SNAPSHOT_CRON", "*/30 * * * *"),
	}

	// Validate required fields
	if cfg.AccessSecret == "" {
		return nil, fmt.Errorf("ACCESS_SECRET is required - set it in .env file")
	}

	if cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("REFRESH_SECRET is required - set it in .env file")
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	switch cfg.VectorBackend {
	case "flat", "atlas":
	default:
		return nil, fmt.Errorf("VECTOR_BACKEND must be \"flat\" or \"atlas\", got %q", cfg.VectorBackend)
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)", cfg.ChunkOverlap, cfg.ChunkSize)
	}

	if len(cfg.ScoreThresholds) == 0 {
		return nil, fmt.Errorf("RAG_SCORE_THRESHOLDS must name at least one threshold")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvFloat32List parses a comma-separated list of floats. A malformed
// entry falls back to the default list rather than silently dropping values.
func getEnvFloat32List(key string, defaultValue []float32) []float32 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return defaultValue
		}
		out = append(out, float32(f))
	}
	return out
}
