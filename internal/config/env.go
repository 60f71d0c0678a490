package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	SslCertPath  string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	Port         string
	JWTSecret    string

	// Ingestion
	ChunkSize       int // runes per chunk
	ChunkOverlap    int // runes shared between neighbors
	MinExtractChars int // non-whitespace runes below which native extraction falls back to OCR
	MaxFileSize     int64
	WorkerCount     int

	// Retrieval
	LexicalWeight    float64
	SemanticWeight   float64
	RetrievalTimeout time.Duration
	HistoryTurns     int
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "docuquery-docs"),
		SslCertPath:  getEnv("SSL_CERT_PATH", ""),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),
		JWTSecret:    getEnv("JWT_SECRET", ""),

		ChunkSize:       getEnvInt("CHUNK_SIZE", 768),
		ChunkOverlap:    getEnvInt("CHUNK_OVERLAP", 96),
		MinExtractChars: getEnvInt("MIN_EXTRACT_CHARS", 32),
		MaxFileSize:     int64(getEnvInt("MAX_FILE_SIZE", 100<<20)),
		WorkerCount:     getEnvInt("WORKER_COUNT", 4),

		// Equal weighting is a placeholder, not a tuned constant.
		LexicalWeight:    getEnvFloat("LEXICAL_WEIGHT", 0.5),
		SemanticWeight:   getEnvFloat("SEMANTIC_WEIGHT", 0.5),
		RetrievalTimeout: time.Duration(getEnvInt("RETRIEVAL_TIMEOUT_MS", 5000)) * time.Millisecond,
		HistoryTurns:     getEnvInt("HISTORY_TURNS", 5),
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL not set")
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		log.Printf("WARN: CHUNK_OVERLAP %d >= CHUNK_SIZE %d, using %d", cfg.ChunkOverlap, cfg.ChunkSize, cfg.ChunkSize/4)
		cfg.ChunkOverlap = cfg.ChunkSize / 4
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("WARN: %s=%q not a float, using default %g", key, v, def)
		return def
	}
	return f
}
