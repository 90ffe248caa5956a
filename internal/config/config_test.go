package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Bot.TriggerPhrase != "debate this" {
		t.Errorf("trigger = %q", cfg.Bot.TriggerPhrase)
	}
	if cfg.Bot.RateLimit != 5 || cfg.Bot.RateWindowMin != 60 {
		t.Errorf("rate limit = %d/%dmin", cfg.Bot.RateLimit, cfg.Bot.RateWindowMin)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "data/discoursa.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9999"

[bot]
trigger_phrase = "argue with me"
rate_limit = 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Bot.TriggerPhrase != "argue with me" || cfg.Bot.RateLimit != 3 {
		t.Errorf("bot = %+v", cfg.Bot)
	}
	// Untouched sections keep their defaults.
	if cfg.Platform.PageSize != 50 {
		t.Errorf("page size = %d", cfg.Platform.PageSize)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[encryption]
key = "from-file"

[llm]
gemini_api_key = "file-key"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DISCOURSA_ENCRYPTION_KEY", "from-env")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Encryption.Key != "from-env" {
		t.Errorf("encryption key = %q", cfg.Encryption.Key)
	}
	if cfg.LLM.GeminiAPIKey != "env-key" {
		t.Errorf("gemini key = %q", cfg.LLM.GeminiAPIKey)
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("not [valid toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed config must be rejected")
	}
}
