// wagate is a WhatsApp auto-reply gateway: it pairs a WhatsApp account,
// answers inbound messages through a configured AI provider and exposes
// a small control API with a websocket notification feed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/perdanaw/wagate/internal/ai"
	"github.com/perdanaw/wagate/internal/config"
	"github.com/perdanaw/wagate/internal/httpapi"
	. "github.com/perdanaw/wagate/internal/logging"
	"github.com/perdanaw/wagate/internal/policy"
	"github.com/perdanaw/wagate/internal/session"
	"github.com/perdanaw/wagate/internal/wa"
)

const version = "0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("wagate %s\n", version)
		return
	}

	gwCfg, err := config.LoadGateway()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wagate: %v\n", err)
		os.Exit(1)
	}

	Init(&Config{
		Level:      ParseLevel(gwCfg.LogLevel),
		TimeFormat: "15:04:05",
	})
	L_info("wagate %s starting", version)

	aiCfg, err := config.LoadAI()
	if err != nil {
		L_fatal("failed to load AI config: %v", err)
	}
	polCfg, err := config.LoadPolicy()
	if err != nil {
		L_fatal("failed to load policy config: %v", err)
	}

	dispatcher, err := ai.NewDispatcher(context.Background(), aiCfg)
	if err != nil {
		L_fatal("failed to build AI provider: %v", err)
	}

	policies := policy.NewSource(policy.Config{
		GroupAutoReply:   polCfg.GroupAutoReply,
		PrivateAutoReply: polCfg.PrivateAutoReply,
		BlacklistTerms:   polCfg.BlacklistTerms,
	})

	store := session.NewStore(gwCfg.SessionPath)
	manager := wa.NewManager(store)
	manager.SetRouter(wa.NewRouter(manager, dispatcher, policies))

	server := httpapi.NewServer(gwCfg.Listen, manager, dispatcher, policies)
	if err := server.Start(); err != nil {
		L_fatal("failed to start HTTP server: %v", err)
	}

	if err := manager.Start(); err != nil {
		// The gateway stays up so the API can retry or clear the session.
		L_error("whatsapp startup failed", "error", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	L_info("wagate shutting down")
	SetShuttingDown()

	if err := manager.Stop(); err != nil {
		L_error("whatsapp shutdown error", "error", err)
	}
	if err := server.Stop(); err != nil {
		L_error("http shutdown error", "error", err)
	}
	L_info("wagate stopped")
}
