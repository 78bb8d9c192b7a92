package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration, loaded from the environment.
type Config struct {
	// LLM provider (OpenAI-compatible chat completions API).
	LLMModel   string
	LLMAPIKey  string
	LLMBaseURL string
	LLMTimeout time.Duration
	MaxTokens  int

	// Brave web search.
	BraveAPIKey   string
	SearchTimeout time.Duration

	// Postgres DSN; empty selects the in-memory store.
	DatabaseURL string

	Port           string
	AllowedOrigins []string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		LLMModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMAPIKey:     os.Getenv("OPENAI_API_KEY"),
		LLMBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		LLMTimeout:    getDurationEnv("LLM_TIMEOUT_SECONDS", 120*time.Second),
		MaxTokens:     getIntEnv("LLM_MAX_TOKENS", 4096),
		BraveAPIKey:   os.Getenv("BRAVE_API_KEY"),
		SearchTimeout: getDurationEnv("SEARCH_TIMEOUT_SECONDS", 30*time.Second),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Port:          getEnv("PORT", "3000"),
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
