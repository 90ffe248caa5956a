package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Auth       AuthConfig       `toml:"auth"`
	Encryption EncryptionConfig `toml:"encryption"`
	Platform   PlatformConfig   `toml:"platform"`
	Bot        BotConfig        `toml:"bot"`
	LLM        LLMConfig        `toml:"llm"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	TokenExpiryMin int    `toml:"token_expiry_min"`
	AdminToken     string `toml:"admin_token"`
}

type EncryptionConfig struct {
	// Key is a base64-encoded 32-byte secretbox key. Overridable via
	// DISCOURSA_ENCRYPTION_KEY.
	Key string `toml:"key"`
}

type PlatformConfig struct {
	BaseURL     string `toml:"base_url"`
	BearerToken string `toml:"bearer_token"`
	BotUserID   string `toml:"bot_user_id"`
	BotHandle   string `toml:"bot_handle"`
	PageSize    int    `toml:"page_size"`
}

type BotConfig struct {
	TriggerPhrase   string `toml:"trigger_phrase"`
	PollIntervalSec int    `toml:"poll_interval_sec"`
	RateLimit       int    `toml:"rate_limit"`
	RateWindowMin   int    `toml:"rate_window_min"`
	LinkURL         string `toml:"link_url"`
}

type LLMConfig struct {
	GeminiAPIKey  string `toml:"gemini_api_key"`
	MistralAPIKey string `toml:"mistral_api_key"`
	OpenRouterKey string `toml:"openrouter_api_key"`
	GroqAPIKey    string `toml:"groq_api_key"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path: "data/discoursa.db",
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			TokenExpiryMin: 30,
		},
		Platform: PlatformConfig{
			BaseURL:  "https://api.twitter.com",
			PageSize: 50,
		},
		Bot: BotConfig{
			TriggerPhrase:   "debate this",
			PollIntervalSec: 60,
			RateLimit:       5,
			RateWindowMin:   60,
			LinkURL:         "https://discoursa.app/link",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv lets secrets come from the environment (or a .env file loaded by
// main) instead of living in config.toml.
func (c *Config) applyEnv() {
	if v := os.Getenv("DISCOURSA_ENCRYPTION_KEY"); v != "" {
		c.Encryption.Key = v
	}
	if v := os.Getenv("PLATFORM_BEARER_TOKEN"); v != "" {
		c.Platform.BearerToken = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.LLM.GeminiAPIKey = v
	}
	if v := os.Getenv("DISCOURSA_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DISCOURSA_ADMIN_TOKEN"); v != "" {
		c.Auth.AdminToken = v
	}
}
