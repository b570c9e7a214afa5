package export

import (
	"strings"
	"testing"
)

func TestMarkdownFencesHighlights(t *testing.T) {
	in := `<html><body><h1>Title</h1><p>The <mark data-margin-id="a1" class="margin-highlight">quick fox</mark> jumps.</p></body></html>`

	out, err := Markdown(in, "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "==quick fox==") {
		t.Fatalf("highlight not fenced:\n%s", out)
	}
	if !strings.Contains(out, "# Title") {
		t.Fatalf("heading lost:\n%s", out)
	}
}

func TestMarkdownIgnoresForeignMarks(t *testing.T) {
	in := `<html><body><p>A <mark>plain mark</mark> here.</p></body></html>`

	out, err := Markdown(in, "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "==") {
		t.Fatalf("foreign mark was fenced:\n%s", out)
	}
	if !strings.Contains(out, "plain mark") {
		t.Fatalf("content lost:\n%s", out)
	}
}

func TestMarkdownResolvesRelativeLinks(t *testing.T) {
	in := `<html><body><p><a href="/docs">docs</a></p></body></html>`

	out, err := Markdown(in, "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "https://example.com/docs") {
		t.Fatalf("relative link not resolved:\n%s", out)
	}
}

func TestMarkdownBadInput(t *testing.T) {
	// html.Parse is permissive; even fragments must not error.
	out, err := Markdown("just text, no markup", "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "just text") {
		t.Fatalf("content lost:\n%s", out)
	}
}
