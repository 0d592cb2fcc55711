package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Database
	DatabaseURL string

	// Redis (빈 값이면 Redis 기능 비활성화)
	RedisURL string

	// CORS
	CORSAllowedOrigins []string

	// Matchmaking
	RatingTolerance int
	DefaultRating   int

	// Rating policy
	MinIncrement  int
	MaxIncrement  int
	RatingFloor   int
	RatingCeiling int

	// Room
	MaxCodeBytes      int
	QuestionTimeout   time.Duration
	EvaluationTimeout time.Duration

	// Archive
	ArchiveTimeout         time.Duration
	ArchiveQueueMaxRetries int
	ArchivePollInterval    time.Duration

	// WebSocket inbound messages per second per connection
	WSMessageRate int64

	// REST requests per minute per IP
	APIRateLimit int

	// Gemini
	GeminiAPIKey string
	GeminiModel  string
}

func Load() (*Config, error) {
	// .env 파일 로드 (있는 경우)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", "5000"),
		Env:                    getEnv("ENV", "development"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		CORSAllowedOrigins:     parseList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		RatingTolerance:        parseInt(getEnv("RATING_TOLERANCE", "150"), 150),
		DefaultRating:          parseInt(getEnv("DEFAULT_RATING", "1000"), 1000),
		MinIncrement:           parseInt(getEnv("MIN_INCREMENT", "0"), 0),
		MaxIncrement:           parseInt(getEnv("MAX_INCREMENT", "30"), 30),
		RatingFloor:            parseInt(getEnv("RATING_FLOOR", "0"), 0),
		RatingCeiling:          parseInt(getEnv("RATING_CEILING", "3000"), 3000),
		MaxCodeBytes:           parseInt(getEnv("MAX_CODE_BYTES", "65536"), 65536),
		QuestionTimeout:        parseDuration(getEnv("QUESTION_TIMEOUT", "45s"), 45*time.Second),
		EvaluationTimeout:      parseDuration(getEnv("EVALUATION_TIMEOUT", "90s"), 90*time.Second),
		ArchiveTimeout:         parseDuration(getEnv("ARCHIVE_TIMEOUT", "10s"), 10*time.Second),
		ArchiveQueueMaxRetries: parseInt(getEnv("ARCHIVE_QUEUE_MAX_RETRIES", "3"), 3),
		ArchivePollInterval:    parseDuration(getEnv("ARCHIVE_POLL_INTERVAL", "2s"), 2*time.Second),
		WSMessageRate:          int64(parseInt(getEnv("WS_MESSAGE_RATE", "20"), 20)),
		APIRateLimit:           parseInt(getEnv("API_RATE_LIMIT", "600"), 600),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
