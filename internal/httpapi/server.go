// Package httpapi provides the control API and the websocket
// notification feed.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/perdanaw/wagate/internal/ai"
	"github.com/perdanaw/wagate/internal/bus"
	"github.com/perdanaw/wagate/internal/config"
	. "github.com/perdanaw/wagate/internal/logging"
	"github.com/perdanaw/wagate/internal/policy"
	"github.com/perdanaw/wagate/internal/wa"
)

// Server is the HTTP control surface over the gateway core.
type Server struct {
	server     *http.Server
	manager    *wa.Manager
	dispatcher *ai.Dispatcher
	policies   *policy.Source
	hub        *Hub

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// NewServer creates the control API server.
func NewServer(listen string, manager *wa.Manager, dispatcher *ai.Dispatcher, policies *policy.Source) *Server {
	if listen == "" {
		listen = ":3000"
	}

	s := &Server{
		manager:    manager,
		dispatcher: dispatcher,
		policies:   policies,
		hub:        NewHub(),
	}
	s.server = &http.Server{
		Addr:         listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		return s.logRequest(h)
	}

	mux.HandleFunc("/api/whatsapp/status", wrap(s.handleStatus))
	mux.HandleFunc("/api/whatsapp/start", wrap(s.handleStart))
	mux.HandleFunc("/api/whatsapp/stop", wrap(s.handleStop))
	mux.HandleFunc("/api/whatsapp/send", wrap(s.handleSend))
	mux.HandleFunc("/api/whatsapp/chats", wrap(s.handleChats))
	mux.HandleFunc("/api/whatsapp/session", wrap(s.handleSession))
	mux.HandleFunc("/api/ai/reload", wrap(s.handleAIReload))
	mux.HandleFunc("/api/ai/autoreply/reload", wrap(s.handlePolicyReload))

	mux.HandleFunc("/ws", s.hub.handleWS)
	mux.HandleFunc("/health", wrap(s.handleHealth))

	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.hub.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		L_info("httpapi: server starting", "addr", s.server.Addr)
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			L_error("httpapi: server error", "error", err)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	s.running = true
	return nil
}

// Stop gracefully shuts down the server and the websocket hub.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		L_error("httpapi: shutdown error", "error", err)
		return err
	}
	s.hub.Stop()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	L_info("httpapi: server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	st := s.manager.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"isReady":   st.IsReady,
		"hasClient": st.HasClient,
		"state":     s.manager.State().String(),
		"provider":  s.dispatcher.Name(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.manager.Start(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "WhatsApp client starting",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.manager.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "WhatsApp client stopped",
	})
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.To == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "Phone number and message are required")
		return
	}

	if err := s.manager.Send(req.To, req.Message); err != nil {
		if errors.Is(err, wa.ErrNotReady) {
			writeError(w, http.StatusServiceUnavailable, "WhatsApp client is not ready")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Message sent successfully",
	})
}

func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	chats, err := s.manager.Chats()
	if err != nil {
		if errors.Is(err, wa.ErrNotReady) {
			writeError(w, http.StatusServiceUnavailable, "WhatsApp client is not ready")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ok, msg := s.manager.ClearSession()
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{
		"success": ok,
		"message": msg,
	})
}

func (s *Server) handleAIReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	cfg, err := config.LoadAI()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.dispatcher.Reload(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	L_info("httpapi: AI provider reloaded", "provider", s.dispatcher.Name())
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"provider": s.dispatcher.Name(),
	})
}

func (s *Server) handlePolicyReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	cfg, err := config.LoadPolicy()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pol := policy.Config{
		GroupAutoReply:   cfg.GroupAutoReply,
		PrivateAutoReply: cfg.PrivateAutoReply,
		BlacklistTerms:   cfg.BlacklistTerms,
	}
	s.policies.Swap(pol)
	bus.Publish(bus.TopicPolicyReloaded, bus.PayloadPolicyReloaded{
		GroupAutoReply:   pol.GroupAutoReply,
		PrivateAutoReply: pol.PrivateAutoReply,
	})

	L_info("httpapi: auto-reply policy reloaded",
		"group", pol.GroupAutoReply, "private", pol.PrivateAutoReply)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"groupAutoReply":   pol.GroupAutoReply,
		"privateAutoReply": pol.PrivateAutoReply,
	})
}

func (s *Server) logRequest(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(lw, r)

		L_debug("httpapi: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.statusCode,
			"duration", time.Since(start))
	}
}

// loggingResponseWriter wraps ResponseWriter to capture status code
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		L_error("httpapi: response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}
