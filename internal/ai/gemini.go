package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/perdanaw/wagate/internal/config"
	. "github.com/perdanaw/wagate/internal/logging"
)

// geminiProvider serves the Gemini variant via the Google GenAI SDK.
type geminiProvider struct {
	client       *genai.Client
	model        string
	systemPrompt string
}

// newGemini builds the Gemini variant. A missing key yields an unconfigured
// provider that fails fast on Generate.
func newGemini(ctx context.Context, cfg *config.AI) (*geminiProvider, error) {
	p := &geminiProvider{
		model:        cfg.GeminiModel,
		systemPrompt: cfg.SystemPrompt,
	}
	if cfg.GeminiKey == "" {
		L_warn("ai: Gemini API key not provided")
		return p, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("ai: create gemini client: %w", err)
	}
	p.client = client
	return p, nil
}

func (p *geminiProvider) Name() string { return config.ProviderGemini }

func (p *geminiProvider) configured() bool { return p.client != nil }

func (p *geminiProvider) Generate(ctx context.Context, text, senderLabel string) (string, error) {
	prompt := fmt.Sprintf("Message from %s: %s", senderLabel, text)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(p.systemPrompt, genai.RoleUser),
			MaxOutputTokens:   genMaxTokens,
			Temperature:       genai.Ptr[float32](genTemperature),
		})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}
