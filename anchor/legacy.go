package anchor

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// DecodeLegacy resolves a deprecated path+offset anchor into a live span.
//
// Paths are weak references into document structure: a false return means
// the addressed nodes no longer exist (children were added or removed, a
// subtree was pruned) and is expected staleness, never a defect. Callers
// that succeed here should immediately re-encode the span with Encode so
// the record never takes the legacy path again.
func DecodeLegacy(la LegacyAnchor, root *html.Node) (Span, bool) {
	start, ok := resolvePath(root, la.StartPath)
	if !ok {
		return Span{}, false
	}
	end, ok := resolvePath(root, la.EndPath)
	if !ok {
		return Span{}, false
	}

	s := Span{
		Start: Boundary{Node: start, Offset: clampOffset(start, la.StartOffset)},
		End:   Boundary{Node: end, Offset: clampOffset(end, la.EndOffset)},
	}

	// Reject spans that resolve out of document order.
	f := flatten(root)
	if _, _, ok := f.spanRange(s); !ok {
		return Span{}, false
	}
	return s, true
}

// resolvePath follows "/"-separated child indices from root and requires
// the terminal node to be a text node.
func resolvePath(root *html.Node, path string) (*html.Node, bool) {
	n := root
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 {
			return nil, false
		}
		c := n.FirstChild
		for i := 0; i < idx && c != nil; i++ {
			c = c.NextSibling
		}
		if c == nil {
			return nil, false
		}
		n = c
	}
	if n.Type != html.TextNode {
		return nil, false
	}
	return n, true
}

func clampOffset(n *html.Node, off int) int {
	if off < 0 {
		return 0
	}
	if off > len(n.Data) {
		return len(n.Data)
	}
	return off
}
