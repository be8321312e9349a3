package bus

import "time"

// PayloadPairingCode carries the pairing challenge for the UI to render.
type PayloadPairingCode struct {
	Code string `json:"code"`
}

// PayloadConnectionLost reports why the protocol session closed and
// whether the gateway will retry.
type PayloadConnectionLost struct {
	Reason    string `json:"reason"`
	WillRetry bool   `json:"willRetry"`
}

// PayloadMessageObserved is emitted for every accepted inbound message,
// before policy evaluation.
type PayloadMessageObserved struct {
	ChatID    string    `json:"from"`
	Text      string    `json:"body"`
	IsGroup   bool      `json:"isGroup"`
	Timestamp time.Time `json:"timestamp"`
}

// PayloadMessageSkipped is emitted when policy disallowed an auto-reply.
type PayloadMessageSkipped struct {
	ChatID  string `json:"from"`
	Text    string `json:"body"`
	IsGroup bool   `json:"isGroup"`
	Reason  string `json:"reason"`
}

// PayloadMessageBlocked is emitted when the dispatcher refused the message.
type PayloadMessageBlocked struct {
	ChatID string `json:"from"`
	Text   string `json:"message"`
	Sender string `json:"contact"`
}

// PayloadMessageSent reports a delivered manual (API-initiated) send.
type PayloadMessageSent struct {
	ChatID string `json:"to"`
	Text   string `json:"message"`
}

// PayloadAIResponseSent reports a completed auto-reply.
type PayloadAIResponseSent struct {
	ChatID       string `json:"to"`
	OriginalText string `json:"originalMessage"`
	ResponseText string `json:"response"`
	Provider     string `json:"provider"`
}

// PayloadProviderReloaded reports an AI provider configuration swap.
type PayloadProviderReloaded struct {
	Provider string `json:"newProvider"`
	Message  string `json:"message"`
}

// PayloadPolicyReloaded reports an auto-reply policy swap.
type PayloadPolicyReloaded struct {
	GroupAutoReply   bool `json:"groupAutoReply"`
	PrivateAutoReply bool `json:"privateAutoReply"`
}

// PayloadSessionCleared reports the outcome of a credential wipe.
type PayloadSessionCleared struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// PayloadError reports a caught failure with its origin.
type PayloadError struct {
	Context string `json:"message"`
	Detail  string `json:"error"`
}
