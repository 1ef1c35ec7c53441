package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	HTTPAddr          string
	Env               string
	LogLevel          string
	LogFormat         string
	UserAgent         string
	RequestTimeout    time.Duration
	CommentTimeout    time.Duration
	SuggestEndpoint   string
	InvidiousEndpoint string
	YouTubeAPIKey     string
	YouTubeEndpoint   string
	RedisURL          string
	CacheTTL          time.Duration
	CacheDisabled     bool
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:          ":" + getEnv("PORT", "3000"),
		Env:               normalizeEnv(getEnv("APP_ENV", EnvDevelopment)),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", "text")),
		UserAgent:         getEnv("SEARCH_USER_AGENT", "clipstream-search/1.0"),
		RequestTimeout:    time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 30)) * time.Second,
		CommentTimeout:    time.Duration(getEnvInt("COMMENT_TIMEOUT_MS", 8000)) * time.Millisecond,
		SuggestEndpoint:   getEnv("SUGGEST_ENDPOINT", "https://suggestqueries.google.com/complete/search"),
		InvidiousEndpoint: getEnv("INVIDIOUS_ENDPOINT", "https://inv.nadeko.net"),
		YouTubeAPIKey:     strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY")),
		YouTubeEndpoint:   getEnv("YOUTUBE_ENDPOINT", "https://www.googleapis.com/youtube/v3"),
		RedisURL:          getEnv("REDIS_URL", ""),
		CacheTTL:          time.Duration(getEnvInt("SEARCH_CACHE_TTL_MINUTES", 10)) * time.Minute,
		CacheDisabled:     getEnvBool("SEARCH_CACHE_DISABLED", false),
	}
}

// IsDevelopment controls error-message verbosity only.
func (c Config) IsDevelopment() bool {
	return c.Env != EnvProduction
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", EnvProduction:
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
