package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// Paths
	PDFPath    string
	StorageDir string

	// Server
	Port        string
	GinMode     string
	CORSOrigins []string

	// Gemini
	GeminiAPIKey    string
	EmbeddingModel  string
	GenerationModel string
	GeminiTier      string

	// Chunking
	ChunkTokens  int
	ChunkOverlap int
	MaxChunks    int // 0 means unlimited

	// Heading detection
	HeadingSizeRatio float64
	MaxHeadingLength int

	// Retrieval
	TopK                int
	MMRLambda           float64
	MMRCandidates       int
	HierarchicalEnabled bool
	SectionTopK         int
	UseHyDE             bool
	HyDETimeoutSecs     int
	RerankEnabled       bool
	ConfidenceThreshold float64

	// Redis (optional response/hypothesis cache; empty URL disables)
	RedisURL      string
	RedisPassword string
	RedisDB       int
	CacheTTLSecs  int

	// Background re-index
	ReindexIntervalMins int // 0 disables the mtime watcher

	// Telemetry
	OTLPEndpoint string // empty disables tracing export
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		PDFPath:    getEnv("PDF_PATH", "./data/manual.pdf"),
		StorageDir: getEnv("STORAGE_DIR", "./storage"),

		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),

		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-004"),
		GenerationModel: getEnv("GENERATION_MODEL", "gemini-2.0-flash"),
		GeminiTier:      getEnv("GEMINI_TIER", "free"),

		ChunkTokens:  getEnvInt("CHUNK_TOKENS", 350),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 60),
		MaxChunks:    getEnvInt("MAX_CHUNKS", 0),

		HeadingSizeRatio: getEnvFloat64("HEADING_SIZE_RATIO", 1.2),
		MaxHeadingLength: getEnvInt("MAX_HEADING_LENGTH", 180),

		TopK:                getEnvInt("TOP_K", 5),
		MMRLambda:           getEnvFloat64("MMR_LAMBDA", 0.5),
		MMRCandidates:       getEnvInt("MMR_CANDIDATES", 24),
		HierarchicalEnabled: getEnvBool("HIERARCHICAL_RETRIEVAL", true),
		SectionTopK:         getEnvInt("SECTION_TOP_K", 3),
		UseHyDE:             getEnvBool("USE_HYDE", true),
		HyDETimeoutSecs:     getEnvInt("HYDE_TIMEOUT_SECS", 8),
		RerankEnabled:       getEnvBool("RERANK", true),
		ConfidenceThreshold: getEnvFloat64("CONFIDENCE_THRESHOLD", 0.2),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		CacheTTLSecs:  getEnvInt("CACHE_TTL_SECS", 3600),

		ReindexIntervalMins: getEnvInt("REINDEX_INTERVAL_MINS", 0),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),
	}

	if cfg.ChunkTokens <= 0 {
		return nil, fmt.Errorf("CHUNK_TOKENS must be positive")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkTokens {
		return nil, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_TOKENS)")
	}
	if cfg.MMRLambda < 0 || cfg.MMRLambda > 1 {
		return nil, fmt.Errorf("MMR_LAMBDA must be in [0, 1]")
	}
	if cfg.SectionTopK <= 0 {
		return nil, fmt.Errorf("SECTION_TOP_K must be positive")
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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
