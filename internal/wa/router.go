package wa

import (
	"context"
	"strings"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"

	"github.com/perdanaw/wagate/internal/ai"
	"github.com/perdanaw/wagate/internal/bus"
	. "github.com/perdanaw/wagate/internal/logging"
	"github.com/perdanaw/wagate/internal/policy"
)

// InboundMessage is one accepted protocol message, immutable once built.
type InboundMessage struct {
	ChatID     string
	SenderID   string
	IsGroup    bool
	Text       string
	ReceivedAt time.Time
}

// Sender delivers outbound traffic. Implemented by the connection Manager.
type Sender interface {
	Send(chatID, text string) error
	SetTyping(chatID string, typing bool)
}

// Generator produces AI replies. Implemented by ai.Dispatcher.
type Generator interface {
	Generate(ctx context.Context, text, senderLabel string, pol policy.Config) (ai.Reply, error)
}

// PolicySource yields the current auto-reply policy snapshot.
type PolicySource interface {
	Snapshot() policy.Config
}

// Router runs the inbound pipeline: policy, AI dispatch, response shaping
// and the send back through the connection.
type Router struct {
	sender   Sender
	gen      Generator
	policies PolicySource
}

// NewRouter wires the pipeline collaborators together.
func NewRouter(sender Sender, gen Generator, policies PolicySource) *Router {
	return &Router{sender: sender, gen: gen, policies: policies}
}

// Route processes one inbound message end to end.
//
// Broadcast/status channels are skipped unconditionally. Every other
// message is observed (notified) before policy evaluation; a policy denial
// emits a skip notification and stops before any AI call. Dispatch
// failures turn into a best-effort apology to the chat, never silence.
func (r *Router) Route(ctx context.Context, msg InboundMessage) {
	if isStatusBroadcast(msg.ChatID) {
		L_debug("router: ignoring status broadcast")
		return
	}

	bus.Publish(bus.TopicMessageObserved, bus.PayloadMessageObserved{
		ChatID:    msg.ChatID,
		Text:      msg.Text,
		IsGroup:   msg.IsGroup,
		Timestamp: msg.ReceivedAt,
	})

	senderLabel := senderLabel(msg.SenderID)
	L_info("router: message received", "from", senderLabel, "isGroup", msg.IsGroup)

	pol := r.policies.Snapshot()
	if !policy.ShouldReply(msg.IsGroup, pol) {
		reason := policy.SkipReason(msg.IsGroup)
		L_info("router: auto-reply disabled", "from", senderLabel, "reason", reason)
		bus.Publish(bus.TopicMessageSkipped, bus.PayloadMessageSkipped{
			ChatID:  msg.ChatID,
			Text:    msg.Text,
			IsGroup: msg.IsGroup,
			Reason:  reason,
		})
		return
	}

	if strings.TrimSpace(msg.Text) == "" {
		return
	}

	r.sender.SetTyping(msg.ChatID, true)
	defer r.sender.SetTyping(msg.ChatID, false)

	reply, err := r.gen.Generate(ctx, msg.Text, senderLabel, pol)
	if err != nil {
		L_error("router: ai dispatch failed", "from", senderLabel, "error", err)
		bus.Publish(bus.TopicError, bus.PayloadError{
			Context: "Error processing message with AI",
			Detail:  err.Error(),
		})
		if sendErr := r.sender.Send(msg.ChatID, ai.FallbackPipeline()); sendErr != nil {
			L_error("router: failed to send apology", "error", sendErr)
		}
		return
	}

	if reply.Blocked {
		L_info("router: message blocked", "from", senderLabel, "term", reply.BlockedTerm)
		bus.Publish(bus.TopicMessageBlocked, bus.PayloadMessageBlocked{
			ChatID: msg.ChatID,
			Text:   msg.Text,
			Sender: senderLabel,
		})
		return
	}

	out := shapeOutbound(reply.Text)
	if err := r.sender.Send(msg.ChatID, out); err != nil {
		L_error("router: failed to send response", "to", msg.ChatID, "error", err)
		bus.Publish(bus.TopicError, bus.PayloadError{
			Context: "Error sending AI response",
			Detail:  err.Error(),
		})
		return
	}

	bus.Publish(bus.TopicAIResponseSent, bus.PayloadAIResponseSent{
		ChatID:       msg.ChatID,
		OriginalText: msg.Text,
		ResponseText: out,
		Provider:     reply.Provider,
	})
	L_info("router: response sent", "to", senderLabel, "provider", reply.Provider)
}

// extractText pulls the reply-worthy text out of a protocol message, in
// priority order: plain text, extended/quoted text, image caption, video
// caption. Anything else yields an empty string.
func extractText(msg *waE2E.Message) string {
	switch {
	case msg == nil:
		return ""
	case msg.GetConversation() != "":
		return msg.GetConversation()
	case msg.GetExtendedTextMessage().GetText() != "":
		return msg.GetExtendedTextMessage().GetText()
	case msg.GetImageMessage().GetCaption() != "":
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage().GetCaption() != "":
		return msg.GetVideoMessage().GetCaption()
	default:
		return ""
	}
}

// senderLabel strips the user-server suffix from a sender JID for prompts
// and logs.
func senderLabel(senderID string) string {
	return strings.TrimSuffix(senderID, "@"+types.DefaultUserServer)
}

// isStatusBroadcast reports whether a chat is the status/broadcast channel.
func isStatusBroadcast(chatID string) bool {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return false
	}
	return jid.Server == types.BroadcastServer
}

// isGroupChat reports whether a chat identifier denotes a group.
func isGroupChat(chatID string) bool {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return false
	}
	return jid.Server == types.GroupServer
}
