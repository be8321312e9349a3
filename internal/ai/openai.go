package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/perdanaw/wagate/internal/config"
	. "github.com/perdanaw/wagate/internal/logging"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// Generation budget shared by all variants: bounded output, moderate
// randomness.
const (
	genMaxTokens   = 500
	genTemperature = 0.7
)

// chatProvider serves both the OpenAI and OpenRouter variants through the
// OpenAI-compatible chat completions API.
type chatProvider struct {
	name         string
	label        string
	client       *openai.Client
	model        string
	systemPrompt string
}

// newOpenAI builds the OpenAI variant. A missing key yields an unconfigured
// provider that fails fast on Generate.
func newOpenAI(cfg *config.AI) *chatProvider {
	p := &chatProvider{
		name:         config.ProviderOpenAI,
		label:        "OpenAI",
		model:        cfg.OpenAIModel,
		systemPrompt: cfg.SystemPrompt,
	}
	if cfg.OpenAIKey == "" {
		L_warn("ai: OpenAI API key not provided")
		return p
	}
	p.client = openai.NewClient(cfg.OpenAIKey)
	return p
}

// newOpenRouter builds the OpenRouter variant: the same client pointed at
// the OpenRouter base URL, exactly as the upstream service exposes it.
func newOpenRouter(cfg *config.AI) *chatProvider {
	p := &chatProvider{
		name:         config.ProviderOpenRouter,
		label:        "OpenRouter",
		model:        cfg.OpenRouterModel,
		systemPrompt: cfg.SystemPrompt,
	}
	if cfg.OpenRouterKey == "" {
		L_warn("ai: OpenRouter API key not provided")
		return p
	}
	clientCfg := openai.DefaultConfig(cfg.OpenRouterKey)
	clientCfg.BaseURL = openRouterBaseURL
	p.client = openai.NewClientWithConfig(clientCfg)
	return p
}

func (p *chatProvider) Name() string { return p.name }

func (p *chatProvider) configured() bool { return p.client != nil }

func (p *chatProvider) Generate(ctx context.Context, text, senderLabel string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Message from %s: %s", senderLabel, text)},
		},
		MaxTokens:   genMaxTokens,
		Temperature: genTemperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
