package llm

import (
	"fmt"

	"github.com/hupe1980/zoterochat/config"
)

// New maps a configured provider tag to its backend variant.
func New(cfg config.Settings) (Provider, error) {
	switch cfg.LLMProvider {
	case config.ProviderOllama:
		return NewOllama(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	case config.ProviderOpenRouter:
		return NewOpenRouter(cfg.OpenRouterAPIKey, cfg.OpenRouterModel), nil
	case config.ProviderAnthropic:
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", cfg.LLMProvider)
	}
}
