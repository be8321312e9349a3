package wa

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// WhatsApp rejects extremely long message bodies; split anything above this.
const maxResponseLen = 4000

// continuedMarker joins the two halves of a split response.
const continuedMarker = "*[Lanjutan...]*"

var (
	// Markdown bold **text** -> WhatsApp bold *text*
	boldPattern = regexp.MustCompile(`\*\*(.+?)\*\*`)

	// Markdown strikethrough ~~text~~ -> WhatsApp ~text~
	strikePattern = regexp.MustCompile(`~~(.+?)~~`)

	// Markdown headers ## text -> WhatsApp bold *text*
	headerPattern = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)

	// Markdown links [text](url) -> text (url)
	linkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

	// HTML tags (strip them)
	htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

	// Markdown image syntax ![alt](url) -> just the URL
	imagePattern = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]+)\)`)
)

// FormatMessage converts markdown to WhatsApp-compatible formatting.
// WhatsApp supports: *bold*, _italic_, ~strikethrough~, ```code blocks```
func FormatMessage(markdown string) string {
	if markdown == "" {
		return ""
	}

	text := markdown

	// Strip images first (before link processing)
	text = imagePattern.ReplaceAllString(text, "$2")

	text = linkPattern.ReplaceAllString(text, "$1 ($2)")

	// WhatsApp has no header concept
	text = headerPattern.ReplaceAllString(text, "*$1*")

	text = boldPattern.ReplaceAllString(text, "*$1*")
	text = strikePattern.ReplaceAllString(text, "~$1~")

	// _italic_, ```code``` and `code` work natively in WhatsApp

	text = htmlTagPattern.ReplaceAllString(text, "")

	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}

// FormatResponse applies the protocol size constraint to an outbound reply.
//
// Text at or under the threshold is returned trimmed and otherwise
// unchanged. Longer text is split in two at the latest sentence terminator
// before the threshold, else the latest whitespace, else a hard cut, with
// a visible continuation marker between the parts.
func FormatResponse(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxResponseLen {
		return text
	}

	breakAt := strings.LastIndexAny(text[:maxResponseLen], ".!?")
	if breakAt == -1 {
		breakAt = strings.LastIndexAny(text[:maxResponseLen], " \n\t")
	}

	var first, second string
	if breakAt == -1 {
		// Hard cut: back up to a rune boundary so neither part carries
		// a torn multibyte sequence.
		cut := maxResponseLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		first, second = text[:cut], text[cut:]
	} else {
		first, second = text[:breakAt+1], text[breakAt+1:]
	}

	return strings.TrimSpace(first) + "\n\n" + continuedMarker + "\n\n" + strings.TrimSpace(second)
}

// shapeOutbound is the outbound text pipeline: markdown normalization,
// then the size constraint. Auto-replies and manual sends both pass
// through here so the protocol never sees an oversized or raw-markdown body.
func shapeOutbound(text string) string {
	return FormatResponse(FormatMessage(text))
}
