package anchor

import (
	"strings"

	"golang.org/x/net/html"
)

// Encode captures a live span as an Anchor. The exact quote is the span's
// document-order text; prefix and suffix are the ContextBudget runes
// immediately before and after it. Returns false only when the span's
// boundaries do not resolve in the tree under root.
func Encode(s Span, root *html.Node) (Anchor, bool) {
	f := flatten(root)
	start, end, ok := f.spanRange(s)
	if !ok {
		return Anchor{}, false
	}
	return Anchor{
		Prefix: lastRunes(f.text[:start], ContextBudget),
		Exact:  f.text[start:end],
		Suffix: firstRunes(f.text[end:], ContextBudget),
	}, true
}

// Decode re-locates an anchor in the current document. Search order:
//
//  1. Exact quote with matching prefix and suffix — disambiguates when the
//     quote appears more than once.
//  2. Exact quote alone — tolerates edits near the quote.
//  3. The originally selected text, when it differs from the quote (the
//     two can diverge after migration; both are always attempted).
//
// A false return is an expected outcome, not an error: the quoted text may
// simply no longer exist in the document.
func Decode(a Anchor, selectedText string, root *html.Node) (Span, bool) {
	if a.Exact == "" && selectedText == "" {
		return Span{}, false
	}
	f := flatten(root)

	if a.Exact != "" {
		// Pass 1: full context match.
		if start, ok := findWithContext(f.text, a); ok {
			return f.spanAt(start, start+len(a.Exact))
		}
		// Pass 2: quote alone.
		if start := strings.Index(f.text, a.Exact); start >= 0 {
			return f.spanAt(start, start+len(a.Exact))
		}
	}

	// Pass 3: fall back to the selected text when it diverges from the quote.
	if selectedText != "" && selectedText != a.Exact {
		if start := strings.Index(f.text, selectedText); start >= 0 {
			return f.spanAt(start, start+len(selectedText))
		}
	}

	return Span{}, false
}

// spanAt maps a flat byte range to a Span.
func (f *flatText) spanAt(start, end int) (Span, bool) {
	sb, ok := f.boundaryAt(start, false)
	if !ok {
		return Span{}, false
	}
	eb, ok := f.boundaryAt(end, true)
	if !ok {
		return Span{}, false
	}
	return Span{Start: sb, End: eb}, true
}

// findWithContext scans every occurrence of the exact quote and returns
// the first one whose immediate context matches the anchor.
func findWithContext(text string, a Anchor) (int, bool) {
	from := 0
	for {
		idx := strings.Index(text[from:], a.Exact)
		if idx < 0 {
			return 0, false
		}
		start := from + idx
		end := start + len(a.Exact)
		if strings.HasSuffix(text[:start], a.Prefix) && strings.HasPrefix(text[end:], a.Suffix) {
			return start, true
		}
		from = start + 1
	}
}

// lastRunes returns the trailing n runes of s.
func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}

// firstRunes returns the leading n runes of s.
func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
