// Package config loads server configuration from environment variables.
// Every knob has a working default so a local deployment needs nothing
// beyond a running MongoDB and two chat-completion endpoints.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration for the ILE Guard server.
type Config struct {
	// HTTP
	ListenAddr string

	// Persistence
	MongoURI    string
	MongoDBName string

	// Optional distributed rate limiting. Empty means in-process limiter.
	RedisAddr string

	// Auth
	JWTSecret        string
	JWTAlgorithm     string
	JWTAccessExpires time.Duration

	// Upstream LLM endpoints (OpenAI-compatible chat completions)
	PrimaryBaseURL string
	ShadowBaseURL  string
	PrimaryModel   string
	ShadowModel    string
	PrimaryAPIKey  string
	ShadowAPIKey   string
	LLMMaxTokens   int
	LLMTimeout     time.Duration

	// Divergence thresholds (0..1)
	ThreshLow      float64
	ThreshHigh     float64
	ThreshCritical float64

	// Limits
	InputMaxChars      int
	RateLimitPerMinute int

	// Optional directory holding lexicon override YAML files.
	LexiconDir string
}

// Load builds a Config from the environment, falling back to defaults.
func Load() *Config {
	return &Config{
		ListenAddr: GetEnv("LISTEN_ADDR", ":8080"),

		MongoURI:    GetEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDBName: GetEnv("MONGODB_DB_NAME", "shieldllm"),

		RedisAddr: GetEnv("REDIS_ADDR", ""),

		JWTSecret:        GetEnv("JWT_SECRET", "changeme_in_prod"),
		JWTAlgorithm:     GetEnv("JWT_ALGORITHM", "HS256"),
		JWTAccessExpires: time.Duration(GetEnvInt("JWT_ACCESS_EXPIRE_MINUTES", 1440)) * time.Minute,

		PrimaryBaseURL: GetEnv("PRIMARY_BASE_URL", "http://localhost:8000/v1"),
		ShadowBaseURL:  GetEnv("SHADOW_BASE_URL", "http://localhost:8001/v1"),
		PrimaryModel:   GetEnv("PRIMARY_MODEL", "facebook/Meta-SecAlign-8B"),
		ShadowModel:    GetEnv("SHADOW_MODEL", "microsoft/phi-4"),
		PrimaryAPIKey:  GetEnv("PRIMARY_API_KEY", "EMPTY"),
		ShadowAPIKey:   GetEnv("SHADOW_API_KEY", "EMPTY"),
		LLMMaxTokens:   GetEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTimeout:     time.Duration(GetEnvInt("LLM_TIMEOUT_SECONDS", 120)) * time.Second,

		ThreshLow:      GetEnvFloat("THRESH_LOW", 0.25),
		ThreshHigh:     GetEnvFloat("THRESH_HIGH", 0.55),
		ThreshCritical: GetEnvFloat("THRESH_CRITICAL", 0.75),

		InputMaxChars:      GetEnvInt("INPUT_MAX_CHARS", 20000),
		RateLimitPerMinute: GetEnvInt("RATE_LIMIT_CHAT_PER_MIN", 30),

		LexiconDir: GetEnv("LEXICON_DIR", ""),
	}
}

// GetEnv returns the environment variable value or the fallback when unset.
func GetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvInt returns the environment variable parsed as int, or the fallback
// when unset or unparseable.
func GetEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// GetEnvFloat returns the environment variable parsed as float64, or the
// fallback when unset or unparseable.
func GetEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
