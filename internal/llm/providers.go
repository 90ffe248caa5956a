package llm

import "github.com/discoursa/discoursa/internal/config"

// NewFromConfig creates the server-side fallback client from the application
// config. Only providers with configured API keys are activated. The
// challenger's own Gemini key, when present, is tried before any of these.
func NewFromConfig(cfg config.LLMConfig) *Client {
	var providers []Provider

	if cfg.GeminiAPIKey != "" {
		providers = append(providers, NewGeminiProvider(cfg.GeminiAPIKey))
	}

	if cfg.MistralAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "mistral",
			BaseURL:      "https://api.mistral.ai/v1",
			APIKey:       cfg.MistralAPIKey,
			DefaultModel: "mistral-small-latest",
		}))
	}

	if cfg.GroqAPIKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "groq",
			BaseURL:      "https://api.groq.com/openai/v1",
			APIKey:       cfg.GroqAPIKey,
			DefaultModel: "llama-3.3-70b-versatile",
		}))
	}

	if cfg.OpenRouterKey != "" {
		providers = append(providers, NewOpenAIProvider(OpenAIConfig{
			Name:         "openrouter",
			BaseURL:      "https://openrouter.ai/api/v1",
			APIKey:       cfg.OpenRouterKey,
			DefaultModel: "deepseek/deepseek-chat",
		}))
	}

	return New(providers)
}
