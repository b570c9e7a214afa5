// Package export renders an annotated document as markdown, keeping the
// highlights visible as ==marked== spans.
package export

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"golang.org/x/net/html"

	"github.com/hazyhaar/margin/highlight"
)

// Markdown converts an HTML document to markdown. Marker elements (the
// rendered highlights) are fenced with == so they survive the conversion
// visibly. The input is parsed into a detached tree, so the caller's
// document is never mutated.
func Markdown(htmlStr, sourceURL string) (string, error) {
	root, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return "", fmt.Errorf("export: parse: %w", err)
	}
	fenceMarkers(root)

	var b strings.Builder
	if err := html.Render(&b, root); err != nil {
		return "", fmt.Errorf("export: render: %w", err)
	}

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
		),
	)
	out, err := conv.ConvertString(b.String(), converter.WithDomain(sourceURL))
	if err != nil {
		return "", fmt.Errorf("export: convert: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// fenceMarkers surrounds every rendered marker's content with == fences.
func fenceMarkers(n *html.Node) {
	if n.Type == html.ElementNode && n.Data == "mark" && hasMarginID(n) {
		opening := &html.Node{Type: html.TextNode, Data: "=="}
		closing := &html.Node{Type: html.TextNode, Data: "=="}
		n.InsertBefore(opening, n.FirstChild)
		n.AppendChild(closing)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		fenceMarkers(c)
	}
}

func hasMarginID(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == highlight.IDAttr {
			return true
		}
	}
	return false
}
