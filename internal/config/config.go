// Package config loads wagate configuration from the environment.
//
// Provider and policy sections can be re-read at runtime (hot reload);
// callers must treat returned values as immutable snapshots.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Provider names recognized by AI_PROVIDER.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Gateway holds process-level settings, read once at startup.
type Gateway struct {
	Listen      string `env:"LISTEN" envDefault:":3000"`
	SessionPath string `env:"SESSION_FILE_PATH" envDefault:"./session/wa-auth"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// AI holds the provider selection and per-provider credentials.
// Replaced wholesale on reload, never mutated in place.
type AI struct {
	Provider string `env:"AI_PROVIDER" envDefault:"openai"`

	OpenAIKey   string `env:"OPENAI_API_KEY"`
	OpenAIModel string `env:"OPENAI_MODEL_NAME" envDefault:"gpt-4o-mini"`

	OpenRouterKey   string `env:"OPENROUTER_API_KEY"`
	OpenRouterModel string `env:"OPENROUTER_MODEL_NAME" envDefault:"openai/gpt-4o-mini-2024-07-18"`

	GeminiKey   string `env:"GEMINI_API_KEY"`
	GeminiModel string `env:"GEMINI_MODEL_NAME" envDefault:"gemini-2.0-flash"`

	SystemPrompt string `env:"SYSTEM_PROMPT" envDefault:"You are a helpful assistant."`
}

// Policy holds the auto-reply decision settings.
// Reloadable independently of the AI section.
type Policy struct {
	GroupAutoReply   bool     `env:"GROUP_AUTO_REPLY" envDefault:"true"`
	PrivateAutoReply bool     `env:"PRIVATE_AUTO_REPLY" envDefault:"true"`
	BlacklistTerms   []string `env:"BLACKLISTED_WORDS" envSeparator:","`
}

// LoadGateway parses process-level settings from the environment.
func LoadGateway() (*Gateway, error) {
	cfg := &Gateway{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse gateway env: %w", err)
	}
	return cfg, nil
}

// LoadAI parses the AI provider section from the environment.
func LoadAI() (*AI, error) {
	cfg := &AI{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse ai env: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch cfg.Provider {
	case ProviderOpenAI, ProviderOpenRouter, ProviderGemini:
	case "":
		cfg.Provider = ProviderOpenAI
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.Provider)
	}
	return cfg, nil
}

// LoadPolicy parses the auto-reply policy section from the environment.
// Blacklist terms are normalized to lowercase; empty entries are dropped.
func LoadPolicy() (*Policy, error) {
	cfg := &Policy{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse policy env: %w", err)
	}
	terms := cfg.BlacklistTerms[:0]
	for _, t := range cfg.BlacklistTerms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	cfg.BlacklistTerms = terms
	return cfg, nil
}
