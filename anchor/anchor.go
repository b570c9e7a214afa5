// Package anchor converts live text spans into location-independent
// anchors and re-locates those anchors inside a document whose structure
// has since changed.
//
// An Anchor is plain data — the selected text plus bounded context windows
// on either side. It never references document nodes, so it serialises
// safely and survives arbitrary markup churn as long as the quoted text
// still exists somewhere in the document.
//
// The package also decodes the deprecated path+offset format (LegacyAnchor)
// so that records created before the quote-based format existed can be
// migrated on read.
package anchor

import (
	"strings"

	"golang.org/x/net/html"
)

// ContextBudget is the maximum number of runes captured on each side of
// the exact quote when encoding.
const ContextBudget = 32

// Anchor describes a text span by its content and surrounding context.
type Anchor struct {
	Prefix string `json:"prefix"`
	Exact  string `json:"exact"`
	Suffix string `json:"suffix"`
}

// LegacyAnchor is the deprecated structural-address format: paths are
// "/"-separated child indices from the document root, offsets are byte
// offsets into the terminal text node. Read-only — never produced for
// new annotations.
type LegacyAnchor struct {
	StartPath   string `json:"startPath"`
	EndPath     string `json:"endPath"`
	StartOffset int    `json:"startOffset"`
	EndOffset   int    `json:"endOffset"`
}

// Boundary is one end of a live span: a text node in the current parse
// tree and a byte offset into its data.
type Boundary struct {
	Node   *html.Node
	Offset int
}

// Span is a transient reference into the current document rendering.
// Never persisted; always recomputed from an Anchor at render time.
type Span struct {
	Start Boundary
	End   Boundary
}

// Empty reports whether the span has no boundaries set.
func (s Span) Empty() bool {
	return s.Start.Node == nil || s.End.Node == nil
}

// segment maps a contiguous slice of the flattened document text back to
// the text node it came from.
type segment struct {
	node  *html.Node
	start int // byte offset in the flattened text
	end   int
}

// flatText is the document-order concatenation of all visible text nodes,
// with an index for converting flat offsets to node boundaries and back.
type flatText struct {
	text string
	segs []segment
}

// SkipsText reports whether an element's text is never part of the
// rendered document text. Flattening and marker insertion must agree on
// this set or spans would shift between encode and render.
func SkipsText(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "template", "head":
		return true
	}
	return false
}

// flatten walks the tree in document order collecting text node content.
func flatten(root *html.Node) *flatText {
	var b strings.Builder
	var segs []segment

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && SkipsText(n.Data) {
			return
		}
		if n.Type == html.TextNode {
			start := b.Len()
			b.WriteString(n.Data)
			segs = append(segs, segment{node: n, start: start, end: b.Len()})
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return &flatText{text: b.String(), segs: segs}
}

// flatOffset converts a boundary to an offset in the flattened text.
func (f *flatText) flatOffset(b Boundary) (int, bool) {
	for _, seg := range f.segs {
		if seg.node == b.Node {
			off := seg.start + b.Offset
			if off > seg.end {
				return 0, false
			}
			return off, true
		}
	}
	return 0, false
}

// boundaryAt converts a flat offset back to a node boundary. For end
// boundaries, pass end=true so an offset on a segment edge resolves to
// the segment it closes rather than the one it opens.
func (f *flatText) boundaryAt(off int, end bool) (Boundary, bool) {
	for _, seg := range f.segs {
		if off < seg.start || off > seg.end {
			continue
		}
		if off == seg.end && !end && off != len(f.text) {
			continue // prefer the opening segment for start boundaries
		}
		if off == seg.start && end && off != 0 {
			continue // prefer the closing segment for end boundaries
		}
		return Boundary{Node: seg.node, Offset: off - seg.start}, true
	}
	return Boundary{}, false
}

// spanRange returns the flat byte range covered by a span.
func (f *flatText) spanRange(s Span) (int, int, bool) {
	start, ok := f.flatOffset(s.Start)
	if !ok {
		return 0, 0, false
	}
	end, ok := f.flatOffset(s.End)
	if !ok || end < start {
		return 0, 0, false
	}
	return start, end, true
}

// SpanText returns the document-order text covered by the span, or false
// if the span's boundaries are not part of the tree under root.
func SpanText(s Span, root *html.Node) (string, bool) {
	f := flatten(root)
	start, end, ok := f.spanRange(s)
	if !ok {
		return "", false
	}
	return f.text[start:end], true
}
