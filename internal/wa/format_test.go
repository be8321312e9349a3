package wa

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFormatMessageBold(t *testing.T) {
	got := FormatMessage("this is **important** news")
	want := "this is *important* news"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageHeader(t *testing.T) {
	got := FormatMessage("## Summary\nbody text")
	want := "*Summary*\nbody text"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageLink(t *testing.T) {
	got := FormatMessage("see [docs](https://example.com) for more")
	want := "see docs (https://example.com) for more"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageImage(t *testing.T) {
	got := FormatMessage("![a chart](https://example.com/chart.png)")
	want := "https://example.com/chart.png"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageStripHTML(t *testing.T) {
	got := FormatMessage("hello <b>world</b>")
	want := "hello world"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageCollapsesBlankLines(t *testing.T) {
	got := FormatMessage("a\n\n\n\n\nb")
	want := "a\n\nb"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatMessageEmpty(t *testing.T) {
	if got := FormatMessage(""); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestFormatResponseShortIsUnchanged(t *testing.T) {
	in := "a perfectly ordinary reply"
	if got := FormatResponse(in); got != in {
		t.Errorf("got %q, want %q", got, in)
	}
}

func TestFormatResponseAtLimitIsUnchanged(t *testing.T) {
	in := strings.Repeat("x", maxResponseLen)
	if got := FormatResponse(in); got != in {
		t.Errorf("text at the limit was modified")
	}
}

func TestFormatResponseSplitsLongText(t *testing.T) {
	// A sentence boundary just before the limit, then more text.
	in := strings.Repeat("y", 3990) + ". " + strings.Repeat("z", 500)
	got := FormatResponse(in)

	if count := strings.Count(got, continuedMarker); count != 1 {
		t.Fatalf("marker appears %d times, want 1", count)
	}

	parts := strings.SplitN(got, "\n\n"+continuedMarker+"\n\n", 2)
	if len(parts) != 2 {
		t.Fatalf("response did not split into two parts: %q", got)
	}
	if !strings.HasSuffix(parts[0], ".") {
		t.Errorf("first part does not end at the sentence boundary: ...%q", parts[0][len(parts[0])-10:])
	}
	if len(parts[0]) > maxResponseLen {
		t.Errorf("first part is %d chars, exceeds limit", len(parts[0]))
	}

	// No content lost modulo the trimmed whitespace around the cut.
	reassembled := parts[0] + " " + parts[1]
	if strings.ReplaceAll(reassembled, " ", "") != strings.ReplaceAll(in, " ", "") {
		t.Errorf("content lost across the split")
	}
}

func TestFormatResponseHardCutKeepsRuneBoundary(t *testing.T) {
	// 3-byte runes put the byte-4000 cut inside a rune.
	in := strings.Repeat("世", maxResponseLen/3+40)
	got := FormatResponse(in)

	parts := strings.SplitN(got, "\n\n"+continuedMarker+"\n\n", 2)
	if len(parts) != 2 {
		t.Fatalf("multibyte text was not split: %q", got[:60])
	}
	if !utf8.ValidString(parts[0]) {
		t.Error("first part ends in a torn rune")
	}
	if !utf8.ValidString(parts[1]) {
		t.Error("second part starts in a torn rune")
	}
	if parts[0]+parts[1] != in {
		t.Error("content lost across the rune-boundary cut")
	}
}

func TestShapeOutboundNormalizesMarkdown(t *testing.T) {
	got := shapeOutbound("a **bold** [link](https://example.com)")
	want := "a *bold* link (https://example.com)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestShapeOutboundSplitsLongText(t *testing.T) {
	in := strings.Repeat("x", maxResponseLen+50)
	got := shapeOutbound(in)
	if count := strings.Count(got, continuedMarker); count != 1 {
		t.Errorf("marker appears %d times, want 1", count)
	}
}

func TestFormatResponseHardCutWithoutBoundaries(t *testing.T) {
	in := strings.Repeat("q", maxResponseLen+100)
	got := FormatResponse(in)

	if !strings.Contains(got, continuedMarker) {
		t.Fatalf("long unbroken text was not split")
	}
	parts := strings.SplitN(got, "\n\n"+continuedMarker+"\n\n", 2)
	if len(parts[0]) != maxResponseLen {
		t.Errorf("hard cut at %d, want %d", len(parts[0]), maxResponseLen)
	}
	if len(parts[1]) != 100 {
		t.Errorf("second part is %d chars, want 100", len(parts[1]))
	}
}
