package store

import (
	"context"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/margin/anchor"
	"github.com/hazyhaar/margin/annotation"
)

const docURL = "https://example.com/article"

func newAnn(id, comment string) *annotation.Annotation {
	return &annotation.Annotation{
		ID:           id,
		DocumentURL:  docURL,
		SelectedText: "some text",
		Comment:      comment,
		Anchor:       &anchor.Anchor{Exact: "some text"},
		Color:        annotation.DefaultColor,
	}
}

func TestAnnotationsSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewAnnotations(OpenMemory(t), nil)

	// Absent collection is empty, not an error.
	anns, err := s.LoadFor(ctx, docURL)
	if err != nil || len(anns) != 0 {
		t.Fatalf("empty load: %v, %v", anns, err)
	}

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := s.Save(ctx, newAnn(id, "note "+id)); err != nil {
			t.Fatal(err)
		}
	}

	anns, err = s.LoadFor(ctx, docURL)
	if err != nil {
		t.Fatal(err)
	}
	if len(anns) != 3 {
		t.Fatalf("len = %d", len(anns))
	}
	for i, id := range []string{"a1", "a2", "a3"} {
		if anns[i].ID != id {
			t.Fatalf("insertion order broken: %v", anns)
		}
	}
}

func TestAnnotationsSaveReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	s := NewAnnotations(OpenMemory(t), nil)

	for _, id := range []string{"a1", "a2", "a3"} {
		if err := s.Save(ctx, newAnn(id, "orig")); err != nil {
			t.Fatal(err)
		}
	}

	updated := newAnn("a2", "edited")
	updated.RemoteRef = "r42"
	if err := s.Save(ctx, updated); err != nil {
		t.Fatal(err)
	}

	anns, _ := s.LoadFor(ctx, docURL)
	if len(anns) != 3 {
		t.Fatalf("len = %d", len(anns))
	}
	if anns[1].ID != "a2" || anns[1].Comment != "edited" || anns[1].RemoteRef != "r42" {
		t.Fatalf("replace in place failed: %+v", anns[1])
	}
}

func TestAnnotationsRemove(t *testing.T) {
	ctx := context.Background()
	kv := OpenMemory(t)
	s := NewAnnotations(kv, nil)

	if err := s.Save(ctx, newAnn("a1", "")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, newAnn("a2", "")); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(ctx, docURL, "a1"); err != nil {
		t.Fatal(err)
	}
	anns, _ := s.LoadFor(ctx, docURL)
	if len(anns) != 1 || anns[0].ID != "a2" {
		t.Fatalf("after remove: %v", anns)
	}

	// Absent id is a no-op.
	if err := s.Remove(ctx, docURL, "ghost"); err != nil {
		t.Fatal(err)
	}

	// Removing the last record drops the whole key.
	if err := s.Remove(ctx, docURL, "a2"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := kv.Get(ctx, annotationsKey(docURL)); ok {
		t.Fatal("empty collection left behind")
	}
}

func TestAnnotationsPending(t *testing.T) {
	ctx := context.Background()
	s := NewAnnotations(OpenMemory(t), nil)

	synced := newAnn("a1", "")
	synced.RemoteRef = "r1"
	if err := s.Save(ctx, synced); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, newAnn("a2", "")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, newAnn("a3", "")); err != nil {
		t.Fatal(err)
	}

	pending, err := s.Pending(ctx, docURL)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 || pending[0].ID != "a2" || pending[1].ID != "a3" {
		t.Fatalf("pending = %v", pending)
	}
}

func TestAnnotationsPerDocumentIsolation(t *testing.T) {
	ctx := context.Background()
	s := NewAnnotations(OpenMemory(t), nil)

	other := newAnn("b1", "")
	other.DocumentURL = "https://example.com/other"

	if err := s.Save(ctx, newAnn("a1", "")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, other); err != nil {
		t.Fatal(err)
	}

	anns, _ := s.LoadFor(ctx, docURL)
	if len(anns) != 1 || anns[0].ID != "a1" {
		t.Fatalf("collections bleed: %v", anns)
	}
}

func TestSettingsToggle(t *testing.T) {
	ctx := context.Background()
	kv := OpenMemory(t)

	s := NewSettings(kv, nil)
	if !s.Enabled() {
		t.Fatal("default must be enabled")
	}

	if err := s.SetEnabled(ctx, false); err != nil {
		t.Fatal(err)
	}
	if s.Enabled() {
		t.Fatal("toggle off not applied")
	}

	// A fresh cache over the same KV sees the persisted value.
	fresh := NewSettings(kv, nil)
	if fresh.Enabled() {
		t.Fatal("persisted toggle not read")
	}

	if err := fresh.SetEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	s.Refresh()
	if !s.Enabled() {
		t.Fatal("refresh did not re-read")
	}
}
