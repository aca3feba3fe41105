package ai

import (
	"context"
	"fmt"
	"strings"
)

// ProviderConfig selects and configures a generation backend.
type ProviderConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Params   GenerationConfig
}

// NewVisionGenerator builds the backend named by cfg.Provider (default gemini).
func NewVisionGenerator(ctx context.Context, cfg ProviderConfig) (VisionGenerator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "gemini"
	}
	switch provider {
	case "gemini":
		return NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model, cfg.Params)
	case "ollama":
		if strings.TrimSpace(cfg.Model) == "" {
			return nil, fmt.Errorf("ollama generation model required")
		}
		return NewOllamaGenerator(NewOllamaClient(cfg.BaseURL), cfg.Model, cfg.Params), nil
	case "openai-compat", "openai":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, fmt.Errorf("openai-compat base URL required")
		}
		if strings.TrimSpace(cfg.Model) == "" {
			return nil, fmt.Errorf("openai-compat generation model required")
		}
		return NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Params), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}
