package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/perdanaw/wagate/internal/config"
	"github.com/perdanaw/wagate/internal/policy"
)

// stubProvider lets tests drive the dispatcher without network calls.
type stubProvider struct {
	name  string
	ready bool
	out   string
	err   error
	calls int
}

func (s *stubProvider) Name() string     { return s.name }
func (s *stubProvider) configured() bool { return s.ready }
func (s *stubProvider) Generate(ctx context.Context, text, sender string) (string, error) {
	s.calls++
	return s.out, s.err
}

func newStubDispatcher(p variant, label string) *Dispatcher {
	d := &Dispatcher{}
	d.current.Store(&active{provider: p, label: label})
	return d
}

func TestGenerateBlacklistedIsBlockedNotError(t *testing.T) {
	stub := &stubProvider{name: "openai", ready: true, out: "should not be called"}
	d := newStubDispatcher(stub, "OpenAI")
	pol := policy.Config{BlacklistTerms: []string{"viagra"}}

	reply, err := d.Generate(context.Background(), "buy viagra now", "628123", pol)
	if err != nil {
		t.Fatalf("blocked reply must not be an error, got %v", err)
	}
	if !reply.Blocked || reply.BlockedTerm != "viagra" {
		t.Errorf("expected blocked with term viagra, got %+v", reply)
	}
	if stub.calls != 0 {
		t.Error("provider must not be invoked for blacklisted text")
	}
}

func TestGenerateUnconfiguredFailsFast(t *testing.T) {
	stub := &stubProvider{name: "gemini", ready: false}
	d := newStubDispatcher(stub, "Gemini")

	_, err := d.Generate(context.Background(), "hello", "628123", policy.Config{})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if stub.calls != 0 {
		t.Error("unconfigured provider must not be invoked")
	}
}

func TestGenerateMapsAuthFailure(t *testing.T) {
	stub := &stubProvider{name: "openrouter", ready: true, err: errors.New("401 invalid api key")}
	d := newStubDispatcher(stub, "OpenRouter")

	reply, err := d.Generate(context.Background(), "hi", "628123", policy.Config{})
	if err != nil {
		t.Fatalf("mapped failure must not surface as error, got %v", err)
	}
	if !strings.Contains(reply.Text, "OpenRouter API key tidak valid") {
		t.Errorf("expected auth fallback, got %q", reply.Text)
	}
}

func TestGenerateMapsQuotaFailure(t *testing.T) {
	stub := &stubProvider{name: "openrouter", ready: true, err: errors.New("429 too many requests")}
	d := newStubDispatcher(stub, "OpenRouter")

	reply, _ := d.Generate(context.Background(), "hi", "628123", policy.Config{})
	if !strings.Contains(reply.Text, "terlalu banyak permintaan ke OpenRouter") {
		t.Errorf("expected quota fallback, got %q", reply.Text)
	}
}

func TestGenerateEmptyResponseFallback(t *testing.T) {
	stub := &stubProvider{name: "openai", ready: true, out: ""}
	d := newStubDispatcher(stub, "OpenAI")

	reply, err := d.Generate(context.Background(), "hi", "628123", policy.Config{})
	if err != nil {
		t.Fatalf("empty response must not be an error, got %v", err)
	}
	if reply.Text != FallbackEmpty() {
		t.Errorf("expected empty-response fallback, got %q", reply.Text)
	}
}

func TestGenerateSuccess(t *testing.T) {
	stub := &stubProvider{name: "openai", ready: true, out: "halo!"}
	d := newStubDispatcher(stub, "OpenAI")

	reply, err := d.Generate(context.Background(), "hi", "628123", policy.Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if reply.Text != "halo!" || reply.Blocked || reply.Provider != "openai" {
		t.Errorf("unexpected reply %+v", reply)
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	_, err := build(context.Background(), &config.AI{Provider: "llama-at-home"})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want FailureClass
	}{
		{"401 Unauthorized", FailureAuth},
		{"API_KEY_INVALID", FailureAuth},
		{"status code 429: rate limit reached", FailureQuota},
		{"QUOTA_EXCEEDED for the model", FailureQuota},
		{"candidate was blocked due to SAFETY", FailureSafety},
		{"connection reset by peer", FailureUnknown},
		{"", FailureUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.msg); got != c.want {
			t.Errorf("Classify(%q) = %s, want %s", c.msg, got, c.want)
		}
	}
}
