// Package config loads and validates the immutable settings value threaded
// through the supervisor, transport and orchestrator. Changing settings
// produces a new orchestrator rather than mutating shared state in place.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Provider tags selecting an LLM backend variant. The set is fixed at build
// time; llm.New maps a tag to its implementation.
const (
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// DefaultSystemPrompt is the instruction prepended to every conversation.
const DefaultSystemPrompt = "You are a research assistant with access to the user's Zotero library. " +
	"Answer questions using the provided paper metadata and context. " +
	"Always cite sources by title and author when referencing specific papers. " +
	"If no relevant papers are found, say so honestly."

// Settings is the complete configuration for one chat deployment.
type Settings struct {
	// Knowledge service process.
	MCPExecutablePath string `mapstructure:"mcp_executable_path"`
	MCPServerPort     int    `mapstructure:"mcp_server_port"`

	// LLM backend selection.
	LLMProvider string `mapstructure:"llm_provider"`

	OllamaBaseURL string `mapstructure:"ollama_base_url"`
	OllamaModel   string `mapstructure:"ollama_model"`

	OpenRouterAPIKey string `mapstructure:"openrouter_api_key"`
	OpenRouterModel  string `mapstructure:"openrouter_model"`

	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`

	// Retrieval behavior.
	MaxConversationHistory int    `mapstructure:"max_conversation_history"`
	SystemPrompt           string `mapstructure:"system_prompt"`
	FullTextTopN           int    `mapstructure:"fulltext_top_n"`
	FullTextMaxChars       int    `mapstructure:"fulltext_max_chars"`

	// Logging.
	LogLevel  string `mapstructure:"log_level"`  // debug, info, warn, error
	LogFormat string `mapstructure:"log_format"` // json or text
}

// Default returns the baseline settings.
func Default() Settings {
	return Settings{
		MCPExecutablePath: "zotero-mcp",
		MCPServerPort:     8000,

		LLMProvider: ProviderOllama,

		OllamaBaseURL: "http://localhost:11434",
		OllamaModel:   "deepseek-r1:8b",

		OpenRouterModel: "deepseek/deepseek-r1",
		AnthropicModel:  "claude-sonnet-4-5-20250929",

		MaxConversationHistory: 6,
		SystemPrompt:           DefaultSystemPrompt,
		FullTextTopN:           3,
		FullTextMaxChars:       4000,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads settings from an optional config file plus ZOTEROCHAT_* env
// vars, layered over Default(). An empty path searches the usual locations;
// a missing file is not an error, an unreadable one is.
func Load(path string) (Settings, error) {
	v := viper.New()
	for key, value := range map[string]any{
		"mcp_executable_path":      "zotero-mcp",
		"mcp_server_port":          8000,
		"llm_provider":             ProviderOllama,
		"ollama_base_url":          "http://localhost:11434",
		"ollama_model":             "deepseek-r1:8b",
		"openrouter_api_key":       "",
		"openrouter_model":         "deepseek/deepseek-r1",
		"anthropic_api_key":        "",
		"anthropic_model":          "claude-sonnet-4-5-20250929",
		"max_conversation_history": 6,
		"system_prompt":            DefaultSystemPrompt,
		"fulltext_top_n":           3,
		"fulltext_max_chars":       4000,
		"log_level":                "info",
		"log_format":               "text",
	} {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("zoterochat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/zoterochat")
	}
	v.SetEnvPrefix("ZOTEROCHAT")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("parse config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks ranges and the provider tag.
func (s Settings) Validate() error {
	if s.MCPExecutablePath == "" {
		return fmt.Errorf("mcp_executable_path must not be empty")
	}
	if s.MCPServerPort <= 0 || s.MCPServerPort > 65535 {
		return fmt.Errorf("mcp_server_port %d out of range", s.MCPServerPort)
	}
	switch strings.ToLower(s.LLMProvider) {
	case ProviderOllama, ProviderOpenRouter, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown llm_provider %q", s.LLMProvider)
	}
	if s.MaxConversationHistory < 0 {
		return fmt.Errorf("max_conversation_history must not be negative")
	}
	if s.FullTextTopN < 0 {
		return fmt.Errorf("fulltext_top_n must not be negative")
	}
	if s.FullTextMaxChars <= 0 {
		return fmt.Errorf("fulltext_max_chars must be positive")
	}
	return nil
}
