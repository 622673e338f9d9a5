package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string

	// Gemini
	GeminiAPIKey          string
	GoogleEmbeddingsModel string // e.g., "text-embedding-004"
	GenerationModel       string
	GeminiTier            string

	// Vector index
	VectorStorePath  string
	VectorCollection string
	VectorDimensions int

	// Sentiment service
	SentimentServiceURL string
	SentimentTimeout    time.Duration
	SentimentBatchSize  int
	SentimentFailOpen   bool

	// Embedding batching
	EmbedBatchSize  int
	EmbedBatchDelay time.Duration

	// TMDb catalog
	TMDbAPIKey    string
	TMDbBaseURL   string
	TMDbLanguage  string
	TMDbRateLimit int

	// IMDb scraping
	IMDbBaseURL          string
	IMDbRenderJS         bool
	ScrapeTargetDelay    time.Duration
	ScrapeMaxReviews     int
	ScrapeJitterMin      time.Duration
	ScrapeJitterMax      time.Duration
	ScrapeRequestTimeout time.Duration

	// Script files
	ScriptsDir         string
	ScriptChunkSize    int
	ScriptChunkOverlap int

	// Retrieval
	ContextMaxTokens int
	QueryCacheTTL    time.Duration
	QueryCacheSize   int

	// MongoDB (job status store)
	MongoURI string
	DBName   string
	JobStore string // "memory" (default), "mongo"

	// Jobs
	JobBackend string // "inprocess" (default), "asynq"

	// Redis Configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	RateLimitReqs   int
	RateLimitWindow int

	// Admin auth
	JWTSecret         string
	JWTExpiresIn      time.Duration
	AdminUsername     string
	AdminPasswordHash string

	// Scheduled refresh, empty disables it
	RefreshCron string

	// Telemetry
	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GinMode:     getEnv("GIN_MODE", "debug"),
		CORSOrigins: strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8501"), ","),

		GeminiAPIKey:          getEnv("GEMINI_API_KEY", ""),
		GoogleEmbeddingsModel: getEnv("GOOGLE_EMBEDDINGS_MODEL", "text-embedding-004"),
		GenerationModel:       getEnv("GENERATION_MODEL", "gemini-2.5-flash"),
		GeminiTier:            getEnv("GEMINI_TIER", "free"),

		VectorStorePath:  getEnv("VECTOR_STORE_PATH", "data/vector_store"),
		VectorCollection: getEnv("VECTOR_COLLECTION", "cinemind_store"),
		VectorDimensions: getEnvInt("VECTOR_DIM", 768),

		SentimentServiceURL: getEnv("SENTIMENT_SERVICE_URL", "http://localhost:8001"),
		SentimentTimeout:    getEnvDuration("SENTIMENT_TIMEOUT", 45*time.Second),
		SentimentBatchSize:  getEnvInt("SENTIMENT_BATCH_SIZE", 32),
		SentimentFailOpen:   getEnvBool("SENTIMENT_FAIL_OPEN", true),

		EmbedBatchSize:  getEnvInt("EMBED_BATCH_SIZE", 20),
		EmbedBatchDelay: time.Duration(getEnvInt("EMBED_BATCH_DELAY_MS", 500)) * time.Millisecond,

		TMDbAPIKey:    getEnv("TMDB_API_KEY", ""),
		TMDbBaseURL:   getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDbLanguage:  getEnv("TMDB_LANGUAGE", "en-US"),
		TMDbRateLimit: getEnvInt("TMDB_RATE_LIMIT", 10),

		IMDbBaseURL:          getEnv("IMDB_BASE_URL", "https://www.imdb.com"),
		IMDbRenderJS:         getEnvBool("IMDB_RENDER_JS", false),
		ScrapeTargetDelay:    time.Duration(getEnvInt("SCRAPE_TARGET_DELAY_MS", 3000)) * time.Millisecond,
		ScrapeMaxReviews:     getEnvInt("SCRAPE_MAX_REVIEWS", 5),
		ScrapeJitterMin:      time.Duration(getEnvInt("SCRAPE_JITTER_MIN_MS", 2000)) * time.Millisecond,
		ScrapeJitterMax:      time.Duration(getEnvInt("SCRAPE_JITTER_MAX_MS", 4000)) * time.Millisecond,
		ScrapeRequestTimeout: getEnvDuration("SCRAPE_TIMEOUT", 30*time.Second),

		ScriptsDir:         getEnv("SCRIPTS_DIR", "data/scripts"),
		ScriptChunkSize:    getEnvInt("SCRIPT_CHUNK_SIZE", 1000),
		ScriptChunkOverlap: getEnvInt("SCRIPT_CHUNK_OVERLAP", 200),

		ContextMaxTokens: getEnvInt("CONTEXT_MAX_TOKENS", 3000),
		QueryCacheTTL:    getEnvDuration("QUERY_CACHE_TTL", 24*time.Hour),
		QueryCacheSize:   getEnvInt("QUERY_CACHE_SIZE", 1024),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/cinemind"),
		DBName:   getEnv("DB_NAME", "cinemind"),
		JobStore: getEnv("JOB_STORE", "memory"),

		JobBackend: getEnv("JOB_BACKEND", "inprocess"),

		// Redis Configuration
		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTExpiresIn:      getEnvDuration("JWT_EXPIRES_IN", 12*time.Hour),
		AdminUsername:     getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),

		RefreshCron: getEnv("REFRESH_CRON", ""),

		OTelEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:    getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 0.1),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks required fields and cross-field constraints.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}
	if c.SentimentBatchSize < 1 || c.SentimentBatchSize > 100 {
		return fmt.Errorf("SENTIMENT_BATCH_SIZE must be between 1 and 100, got %d", c.SentimentBatchSize)
	}
	if c.EmbedBatchSize < 1 || c.EmbedBatchSize > 100 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be between 1 and 100, got %d", c.EmbedBatchSize)
	}
	switch c.JobStore {
	case "memory", "mongo":
	default:
		return fmt.Errorf("JOB_STORE must be memory or mongo, got %q", c.JobStore)
	}
	switch c.JobBackend {
	case "inprocess":
	case "asynq":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when JOB_BACKEND=asynq - set it in .env file")
		}
		if c.JobStore != "mongo" {
			return fmt.Errorf("JOB_STORE=mongo is required when JOB_BACKEND=asynq - set it in .env file")
		}
	default:
		return fmt.Errorf("JOB_BACKEND must be inprocess or asynq, got %q", c.JobBackend)
	}
	if c.AdminPasswordHash != "" && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ADMIN_PASSWORD_HASH is set - set it in .env file")
	}
	return nil
}

// AuthEnabled reports whether admin-only routes are protected.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != "" && c.AdminPasswordHash != ""
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
