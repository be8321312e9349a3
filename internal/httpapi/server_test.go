package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/perdanaw/wagate/internal/ai"
	"github.com/perdanaw/wagate/internal/config"
	"github.com/perdanaw/wagate/internal/policy"
	"github.com/perdanaw/wagate/internal/session"
	"github.com/perdanaw/wagate/internal/wa"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	manager := wa.NewManager(session.NewStore(t.TempDir() + "/wa-auth"))
	dispatcher, err := ai.NewDispatcher(context.Background(), &config.AI{
		Provider:    config.ProviderOpenAI,
		OpenAIModel: "gpt-4o-mini",
	})
	if err != nil {
		t.Fatal(err)
	}
	policies := policy.NewSource(policy.Config{GroupAutoReply: true, PrivateAutoReply: true})

	return NewServer(":0", manager, dispatcher, policies)
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return m
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/whatsapp/status", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["isReady"] != false {
		t.Errorf("isReady = %v, want false before start", body["isReady"])
	}
	if body["state"] != "disconnected" {
		t.Errorf("state = %v", body["state"])
	}
	if body["provider"] != "openai" {
		t.Errorf("provider = %v", body["provider"])
	}
}

func TestSendRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/whatsapp/send", `{"to":"628123456789"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing message: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/whatsapp/send", `{"message":"hi"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing recipient: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPost, "/api/whatsapp/send", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("garbage body: status = %d, want 400", rec.Code)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/whatsapp/send",
		`{"to":"628123456789","message":"hello"}`)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "WhatsApp client is not ready" {
		t.Errorf("error = %v", body["error"])
	}
}

func TestChatsWhileDisconnected(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/whatsapp/chats", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestSessionDelete(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodDelete, "/api/whatsapp/session", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	if body["message"] != "No session found to clear" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestSessionRequiresDelete(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/whatsapp/session", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/whatsapp/stop", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPolicyReloadSwapsSource(t *testing.T) {
	s := newTestServer(t)
	t.Setenv("GROUP_AUTO_REPLY", "false")
	t.Setenv("PRIVATE_AUTO_REPLY", "true")

	rec := doRequest(t, s, http.MethodPost, "/api/ai/autoreply/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	snap := s.policies.Snapshot()
	if snap.GroupAutoReply {
		t.Error("group auto-reply still enabled after reload")
	}
	if !snap.PrivateAutoReply {
		t.Error("private auto-reply disabled after reload")
	}
}

func TestAIReloadRejectsUnknownProvider(t *testing.T) {
	s := newTestServer(t)
	t.Setenv("AI_PROVIDER", "plan9")

	rec := doRequest(t, s, http.MethodPost, "/api/ai/reload", "")
	if rec.Code == http.StatusOK {
		t.Error("unknown provider accepted")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
