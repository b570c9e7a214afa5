package highlight

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/margin/anchor"
)

// wrap is Strategy A: wrap the covered nodes boundary-to-boundary in a
// single marker node. Works only when both edges sit under the same
// parent; spans that cross irregular structural boundaries fail and fall
// through to Strategy B.
func wrap(start, end *html.Node) (*html.Node, error) {
	if start.Parent == nil || start.Parent != end.Parent {
		return nil, errCrossesBoundary
	}

	parent := start.Parent
	mark := newMark()
	parent.InsertBefore(mark, start)

	for n := start; n != nil; {
		next := n.NextSibling
		parent.RemoveChild(n)
		mark.AppendChild(n)
		if n == end {
			break
		}
		n = next
	}
	return mark, nil
}

// extractReinsert is Strategy B: extract the spanned text into a detached
// fragment, insert the marker where the span began, then re-attach the
// fragment inside the marker. Always succeeds once the span resolved.
func extractReinsert(root, start, end *html.Node) (*html.Node, error) {
	fragment := coveredTextNodes(root, start, end)
	if len(fragment) == 0 {
		return nil, errCrossesBoundary
	}

	mark := newMark()
	start.Parent.InsertBefore(mark, start)
	for _, n := range fragment {
		n.Parent.RemoveChild(n)
		mark.AppendChild(n)
	}
	return mark, nil
}

// splitEdges splits the boundary text nodes so the span covers whole text
// nodes, and returns the first and last covered node. Splitting never
// changes the document's text content.
func splitEdges(span anchor.Span) (start, end *html.Node) {
	if span.Start.Node == span.End.Node {
		n := splitAfter(span.Start.Node, span.Start.Offset)
		splitAfter(n, span.End.Offset-span.Start.Offset)
		return n, n
	}
	start = splitAfter(span.Start.Node, span.Start.Offset)
	end = span.End.Node
	splitAfter(end, span.End.Offset)
	return start, end
}

// splitAfter splits a text node at a byte offset and returns the node
// holding the data from the offset onward. Offsets at either edge leave
// the node intact.
func splitAfter(n *html.Node, off int) *html.Node {
	if off <= 0 {
		return n
	}
	if off >= len(n.Data) {
		return n
	}
	rest := &html.Node{Type: html.TextNode, Data: n.Data[off:]}
	n.Data = n.Data[:off]
	n.Parent.InsertBefore(rest, n.NextSibling)
	return rest
}

// coveredTextNodes collects, in document order, every text node from
// start through end inclusive, skipping non-rendered containers.
func coveredTextNodes(root *html.Node, start, end *html.Node) []*html.Node {
	var covered []*html.Node
	collecting := false
	done := false

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if done {
			return
		}
		if n.Type == html.ElementNode && anchor.SkipsText(n.Data) {
			return
		}
		if n.Type == html.TextNode {
			if n == start {
				collecting = true
			}
			if collecting {
				covered = append(covered, n)
			}
			if n == end {
				done = true
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	if !done {
		return nil // boundaries not both under root
	}
	return covered
}
