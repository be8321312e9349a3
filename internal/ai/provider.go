// Package ai dispatches inbound text to the configured AI backend and
// shapes the result for the chat pipeline.
//
// Three provider variants are supported: OpenAI, OpenRouter (OpenAI-compatible
// API behind a different base URL) and Gemini. Exactly one variant is active
// at a time; Reload swaps the whole configuration atomically.
package ai

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when the selected provider has no API key,
// before any network call is attempted.
var ErrNotConfigured = errors.New("ai: provider not configured")

// Provider is one AI backend variant.
type Provider interface {
	// Name is the config selector value ("openai", "openrouter", "gemini").
	Name() string
	// Generate produces a reply for text attributed to senderLabel.
	// A nil error with empty text means the model genuinely returned nothing.
	Generate(ctx context.Context, text, senderLabel string) (string, error)
}

// Reply is the dispatcher result. Blocked is a policy outcome, not an
// error: callers must treat "no reply" and "failure" differently.
type Reply struct {
	Text     string
	Provider string

	Blocked     bool
	BlockedTerm string
}
