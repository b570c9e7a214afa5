package annotation

import (
	"testing"

	"github.com/hazyhaar/margin/anchor"
)

func TestNew(t *testing.T) {
	a := New("https://example.com", "quoted", "a note", anchor.Anchor{Exact: "quoted"})

	if a.ID == "" {
		t.Fatal("missing id")
	}
	if a.CreatedAt.IsZero() {
		t.Fatal("missing timestamp")
	}
	if a.Color != DefaultColor {
		t.Fatalf("color = %q", a.Color)
	}
	if !a.Pending() {
		t.Fatal("new annotation must be pending")
	}

	b := New("https://example.com", "quoted", "a note", anchor.Anchor{Exact: "quoted"})
	if a.ID == b.ID {
		t.Fatal("ids must be unique")
	}
	// UUIDv7 ids sort by creation time, which keeps store listings stable.
	if !(a.ID < b.ID) {
		t.Fatalf("ids not monotonic: %s then %s", a.ID, b.ID)
	}
}

func TestPending(t *testing.T) {
	a := New("u", "s", "c", anchor.Anchor{})
	a.RemoteRef = "r1"
	if a.Pending() {
		t.Fatal("annotation with a remote ref is not pending")
	}
}
