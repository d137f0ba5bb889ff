package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/hyperjump/shoko/internal/config"
)

// New creates a Generator from config. Supported providers are "ollama"
// (default) and "anthropic". The Anthropic API key falls back to the
// ANTHROPIC_API_KEY environment variable when not set in config.
func New(cfg *config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaGenerator(
			cfg.BaseURL,
			cfg.Model,
			cfg.MaxTokens,
			cfg.Temperature,
			time.Duration(cfg.TimeoutSec)*time.Second,
		), nil
	case "anthropic":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return NewAnthropicGenerator(apiKey, cfg.Model, cfg.MaxTokens, cfg.Temperature)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.Provider)
	}
}
