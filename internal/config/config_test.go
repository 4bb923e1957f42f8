package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadJSONAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"basic_config":{"server_address":":9000"},"databases":{"sqlite3":{"dsn":"taxfiler.db"}}}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" {
		t.Fatalf("server address mismatch: %s", cfg.BasicConfig.ServerAddress)
	}
	if cfg.Upload.MaxBytes != DefaultMaxUploadBytes {
		t.Fatalf("expected default upload limit, got %d", cfg.Upload.MaxBytes)
	}
	if cfg.OCR.Language != "eng" {
		t.Fatalf("expected eng ocr language, got %s", cfg.OCR.Language)
	}
	if want := filepath.Join(dir, "taxfiler.db"); cfg.Databases["sqlite3"].DSN != want {
		t.Fatalf("sqlite dsn not resolved: %s", cfg.Databases["sqlite3"].DSN)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "pipeline:\n  suggestion_model: custom-pro\nrate_limit:\n  chat_per_minute: 7\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "env-key")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Pipeline.SuggestionModel != "custom-pro" {
		t.Fatalf("yaml value not applied: %s", cfg.Pipeline.SuggestionModel)
	}
	if cfg.Pipeline.ExtractionModel != "gemini-2.5-flash" {
		t.Fatalf("default extraction model missing: %s", cfg.Pipeline.ExtractionModel)
	}
	if cfg.RateLimit.ChatPerMinute != 7 {
		t.Fatalf("rate limit mismatch: %d", cfg.RateLimit.ChatPerMinute)
	}
	if cfg.Providers["gemini"].APIKey != "env-key" {
		t.Fatalf("env api key not applied")
	}
}

func TestLoadChatModelFollowsProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "pipeline:\n  chat_provider: openai\nproviders:\n  openai:\n    model: gpt-4o-mini\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Pipeline.ChatModel != "gpt-4o-mini" {
		t.Fatalf("expected provider model, got %s", cfg.Pipeline.ChatModel)
	}

	cfg = &Config{Pipeline: PipelineConfig{ChatProvider: "claude"}}
	cfg.ApplyDefaults()
	if cfg.Pipeline.ChatModel != "" {
		t.Fatalf("gemini model must not leak into claude: %s", cfg.Pipeline.ChatModel)
	}

	cfg = &Config{}
	cfg.ApplyDefaults()
	if cfg.Pipeline.ChatProvider != "gemini" || cfg.Pipeline.ChatModel != "gemini-2.5-flash" {
		t.Fatalf("unexpected gemini defaults: %+v", cfg.Pipeline)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing config")
	}
}
