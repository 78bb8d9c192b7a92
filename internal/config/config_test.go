package config

import (
	"testing"
	"time"
)

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is missing")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("PORT", "")
	t.Setenv("LLM_TIMEOUT_SECONDS", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMModel != "gpt-4o-mini" {
		t.Errorf("model default = %q", cfg.LLMModel)
	}
	if cfg.Port != "3000" {
		t.Errorf("port default = %q", cfg.Port)
	}
	if cfg.LLMTimeout != 120*time.Second {
		t.Errorf("timeout default = %v", cfg.LLMTimeout)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("expected empty database url, got %q", cfg.DatabaseURL)
	}
}

func TestLoadOverridesAndOrigins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_TIMEOUT_SECONDS", "45")
	t.Setenv("ALLOWED_ORIGINS", " http://localhost:5173 , https://app.example.com ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMTimeout != 45*time.Second {
		t.Errorf("timeout = %v", cfg.LLMTimeout)
	}
	want := []string{"http://localhost:5173", "https://app.example.com"}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != want[0] || cfg.AllowedOrigins[1] != want[1] {
		t.Errorf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestInvalidIntFallsBack(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_MAX_TOKENS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxTokens != 4096 {
		t.Errorf("max tokens = %d", cfg.MaxTokens)
	}
}
