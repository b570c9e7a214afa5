package anchor

import "testing"

// Path to the first text node of <p> in a minimal parsed document:
// document → html → body → p → text.
const pTextPath = "0/1/0/0"

func TestDecodeLegacy(t *testing.T) {
	root := parse(t, `<html><body><p>The quick brown fox</p></body></html>`)

	la := LegacyAnchor{StartPath: pTextPath, EndPath: pTextPath, StartOffset: 4, EndOffset: 9}
	span, ok := DecodeLegacy(la, root)
	if !ok {
		t.Fatal("decode failed")
	}
	if got := spanText(t, span, root); got != "quick" {
		t.Fatalf("text = %q", got)
	}
}

func TestDecodeLegacyAcrossNodes(t *testing.T) {
	root := parse(t, `<html><body><p>one <b>two</b></p></body></html>`)

	la := LegacyAnchor{
		StartPath: "0/1/0/0", // "one "
		EndPath:   "0/1/0/1/0", // "two" inside <b>
		StartOffset: 0,
		EndOffset:   3,
	}
	span, ok := DecodeLegacy(la, root)
	if !ok {
		t.Fatal("decode failed")
	}
	if got := spanText(t, span, root); got != "one two" {
		t.Fatalf("text = %q", got)
	}
}

func TestDecodeLegacyStale(t *testing.T) {
	root := parse(t, `<html><body><p>short</p></body></html>`)

	cases := []struct {
		name string
		la   LegacyAnchor
	}{
		{"missing child", LegacyAnchor{StartPath: "0/1/7/0", EndPath: pTextPath}},
		{"non-text terminal", LegacyAnchor{StartPath: "0/1/0", EndPath: pTextPath}},
		{"malformed index", LegacyAnchor{StartPath: "0/x/0", EndPath: pTextPath}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := DecodeLegacy(tc.la, root); ok {
				t.Fatal("expected stale path to fail")
			}
		})
	}
}

func TestDecodeLegacyClampsOffsets(t *testing.T) {
	root := parse(t, `<html><body><p>tiny</p></body></html>`)

	la := LegacyAnchor{StartPath: pTextPath, EndPath: pTextPath, StartOffset: -3, EndOffset: 99}
	span, ok := DecodeLegacy(la, root)
	if !ok {
		t.Fatal("decode failed")
	}
	if got := spanText(t, span, root); got != "tiny" {
		t.Fatalf("text = %q", got)
	}
}

func TestDecodeLegacyRejectsReversedSpan(t *testing.T) {
	root := parse(t, `<html><body><p>one <b>two</b></p></body></html>`)

	la := LegacyAnchor{
		StartPath: "0/1/0/1/0",
		EndPath:   "0/1/0/0",
		EndOffset: 2,
	}
	if _, ok := DecodeLegacy(la, root); ok {
		t.Fatal("expected out-of-order span to fail")
	}
}
