package ai

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/perdanaw/wagate/internal/bus"
	"github.com/perdanaw/wagate/internal/config"
	. "github.com/perdanaw/wagate/internal/logging"
	"github.com/perdanaw/wagate/internal/policy"
)

// variant is a built provider plus its readiness bit.
type variant interface {
	Provider
	configured() bool
}

// active bundles everything a Generate call reads, so a Reload swap can
// never be observed half-applied.
type active struct {
	provider variant
	label    string
}

// Dispatcher selects the configured AI backend, invokes it and maps
// failures to user-facing text. Safe for concurrent use; Reload replaces
// the active provider atomically.
type Dispatcher struct {
	current atomic.Pointer[active]
}

// NewDispatcher builds the dispatcher for the given provider config.
func NewDispatcher(ctx context.Context, cfg *config.AI) (*Dispatcher, error) {
	d := &Dispatcher{}
	act, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d.current.Store(act)
	L_info("ai: provider configured", "provider", cfg.Provider)
	return d, nil
}

// build constructs the provider variant selected by cfg.
func build(ctx context.Context, cfg *config.AI) (*active, error) {
	switch cfg.Provider {
	case config.ProviderOpenRouter:
		return &active{provider: newOpenRouter(cfg), label: "OpenRouter"}, nil
	case config.ProviderGemini:
		p, err := newGemini(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &active{provider: p, label: "Gemini"}, nil
	case config.ProviderOpenAI:
		return &active{provider: newOpenAI(cfg), label: "OpenAI"}, nil
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.Provider)
	}
}

// Reload atomically replaces the active provider with one built from cfg.
// Connection state is unaffected; observers are notified of the switch.
func (d *Dispatcher) Reload(ctx context.Context, cfg *config.AI) error {
	act, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	d.current.Store(act)

	L_info("ai: provider reloaded", "provider", cfg.Provider)
	bus.Publish(bus.TopicProviderReloaded, bus.PayloadProviderReloaded{
		Provider: cfg.Provider,
		Message:  fmt.Sprintf("AI provider switched to %s", cfg.Provider),
	})
	return nil
}

// Name returns the active provider's selector name.
func (d *Dispatcher) Name() string {
	return d.current.Load().provider.Name()
}

// Generate produces a reply for inbound text.
//
// The blacklist is applied first: a match yields a blocked Reply, not an
// error. An unconfigured provider fails with ErrNotConfigured before any
// network call. Provider call failures are logged raw and mapped to a
// fixed fallback string; an empty successful response maps to the
// "no response available" fallback. Both are returned as normal replies.
func (d *Dispatcher) Generate(ctx context.Context, text, senderLabel string, pol policy.Config) (Reply, error) {
	act := d.current.Load()
	name := act.provider.Name()

	if blocked, term := policy.Blacklisted(text, pol); blocked {
		L_info("ai: message blacklisted", "sender", senderLabel, "term", term)
		return Reply{Provider: name, Blocked: true, BlockedTerm: term}, nil
	}

	if !act.provider.configured() {
		return Reply{Provider: name}, fmt.Errorf("%w: %s (check API key)", ErrNotConfigured, name)
	}

	L_debug("ai: dispatching", "provider", name, "sender", senderLabel)
	out, err := act.provider.Generate(ctx, text, senderLabel)
	if err != nil {
		class := Classify(err.Error())
		L_error("ai: provider call failed", "provider", name, "class", string(class), "error", err)
		return Reply{Provider: name, Text: fallbackText(act.label, class)}, nil
	}

	if out == "" {
		L_warn("ai: provider returned empty response", "provider", name)
		return Reply{Provider: name, Text: fallbackEmpty}, nil
	}

	return Reply{Provider: name, Text: out}, nil
}
