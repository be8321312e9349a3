package ai

import (
	"fmt"
	"strings"
)

// FailureClass categorizes provider call failures for user messaging.
// The raw error is logged; only the mapped fallback text reaches the chat.
type FailureClass string

const (
	FailureUnknown FailureClass = "unknown"
	FailureAuth    FailureClass = "auth"
	FailureQuota   FailureClass = "quota"
	FailureSafety  FailureClass = "safety"
)

// Classify determines the failure class from an error message.
// Patterns cover OpenAI, OpenRouter and Gemini error shapes.
func Classify(msg string) FailureClass {
	if msg == "" {
		return FailureUnknown
	}
	lower := strings.ToLower(msg)

	if isSafetyMessage(lower) {
		return FailureSafety
	}
	if isQuotaMessage(lower) {
		return FailureQuota
	}
	if isAuthMessage(lower) {
		return FailureAuth
	}
	return FailureUnknown
}

func isAuthMessage(lower string) bool {
	if strings.Contains(lower, "401") || strings.Contains(lower, "403") {
		return true
	}
	return strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "api_key_invalid") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "permission_denied") ||
		strings.Contains(lower, "invalid credentials")
}

func isQuotaMessage(lower string) bool {
	if strings.Contains(lower, "429") {
		return true
	}
	return strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "quota_exceeded") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "exceeded your current quota") ||
		strings.Contains(lower, "insufficient_quota") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "resource has been exhausted")
}

func isSafetyMessage(lower string) bool {
	return strings.Contains(lower, "safety") ||
		strings.Contains(lower, "content_filter") ||
		strings.Contains(lower, "content management policy") ||
		strings.Contains(lower, "blocked_reason") ||
		strings.Contains(lower, "prohibited_content")
}

// User-facing fallback strings. Kept in the gateway's deployment locale;
// chat users never see a raw provider error.
const (
	fallbackEmpty    = "Maaf, saya tidak bisa memberikan respons saat ini."
	fallbackPipeline = "Maaf, terjadi kesalahan saat memproses pesan Anda dengan AI. Silakan coba lagi nanti."
	fallbackSafety   = "Maaf, pesan Anda tidak dapat diproses karena alasan keamanan."
)

// FallbackEmpty is the reply used when a provider succeeds with no content.
func FallbackEmpty() string { return fallbackEmpty }

// FallbackPipeline is the apology sent when the pipeline itself fails.
func FallbackPipeline() string { return fallbackPipeline }

// fallbackText maps a failure class to the user-facing reply for a provider.
// label is the provider's display name ("OpenAI", "OpenRouter", "Gemini").
func fallbackText(label string, class FailureClass) string {
	switch class {
	case FailureAuth:
		return fmt.Sprintf("Maaf, %s API key tidak valid. Silakan periksa konfigurasi.", label)
	case FailureQuota:
		return fmt.Sprintf("Maaf, terlalu banyak permintaan ke %s. Silakan coba lagi nanti.", label)
	case FailureSafety:
		return fallbackSafety
	default:
		return fmt.Sprintf("Maaf, terjadi masalah saat menghubungi layanan %s.", label)
	}
}
