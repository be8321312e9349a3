// Package policy implements the auto-reply decision rules.
// Pure functions over a config snapshot; no I/O.
package policy

import "strings"

// Config is an immutable auto-reply policy snapshot.
type Config struct {
	GroupAutoReply   bool
	PrivateAutoReply bool
	BlacklistTerms   []string
}

// ShouldReply decides whether an inbound message in the given chat kind
// triggers an automated response.
func ShouldReply(isGroup bool, cfg Config) bool {
	if isGroup {
		return cfg.GroupAutoReply
	}
	return cfg.PrivateAutoReply
}

// SkipReason returns the user-facing reason string for a policy denial.
func SkipReason(isGroup bool) string {
	if isGroup {
		return "Group auto-reply disabled"
	}
	return "Private auto-reply disabled"
}

// Blacklisted reports whether any configured term appears in the text
// (case-insensitive substring match) and which term matched first.
func Blacklisted(text string, cfg Config) (bool, string) {
	lower := strings.ToLower(text)
	for _, term := range cfg.BlacklistTerms {
		term = strings.ToLower(term)
		if term != "" && strings.Contains(lower, term) {
			return true, term
		}
	}
	return false, ""
}
