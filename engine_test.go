package margin

import (
	"context"
	"errors"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/margin/anchor"
	"github.com/hazyhaar/margin/annotation"
	"github.com/hazyhaar/margin/store"
	"github.com/hazyhaar/margin/syncq"
)

const (
	pageURL  = "https://example.com/article"
	pageHTML = `<html><body><h1>Essay</h1><p>The quick brown fox jumps over the lazy dog.</p></body></html>`
)

type flakyRemote struct {
	failing    bool
	deliveries []syncq.Delivery
}

func (r *flakyRemote) Deliver(_ context.Context, d syncq.Delivery) (string, error) {
	if r.failing {
		return "", errors.New("remote unavailable")
	}
	r.deliveries = append(r.deliveries, d)
	return "ref-1", nil
}

func newEngine(t *testing.T, opts EngineOptions) *Engine {
	t.Helper()
	if opts.KV == nil {
		opts.KV = store.OpenMemory(t)
	}
	e, err := NewEngine(opts)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func loadPage(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.LoadDocument(context.Background(), pageURL, pageHTML); err != nil {
		t.Fatal(err)
	}
}

func TestAnnotateRendersAndPersists(t *testing.T) {
	ctx := context.Background()
	kv := store.OpenMemory(t)
	e := newEngine(t, EngineOptions{KV: kv})
	loadPage(t, e)

	ann, err := e.Annotate(ctx, "quick brown fox", "note to self")
	if err != nil {
		t.Fatal(err)
	}
	if ann.ID == "" || ann.Anchor == nil || ann.Anchor.Exact != "quick brown fox" {
		t.Fatalf("annotation = %+v", ann)
	}
	if e.RenderedCount() != 1 {
		t.Fatalf("rendered = %d", e.RenderedCount())
	}

	out, err := e.HTML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `data-margin-id="`+ann.ID+`"`) {
		t.Fatalf("marker missing:\n%s", out)
	}

	// A fresh engine over the same store renders the persisted record.
	e2 := newEngine(t, EngineOptions{KV: kv})
	loadPage(t, e2)
	if e2.RenderedCount() != 1 {
		t.Fatalf("reload rendered = %d", e2.RenderedCount())
	}
}

func TestAnnotateValidation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, EngineOptions{})
	loadPage(t, e)

	if _, err := e.Annotate(ctx, "quick brown fox", "  "); !errors.Is(err, ErrCommentRequired) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.Annotate(ctx, "not in the document", "note"); !errors.Is(err, ErrTextNotFound) {
		t.Fatalf("err = %v", err)
	}
	if _, err := e.CreateFromSelection(ctx, "note"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("err = %v", err)
	}
}

func TestToggleDisablesCapture(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, EngineOptions{})
	loadPage(t, e)

	if err := e.Settings().SetEnabled(ctx, false); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Annotate(ctx, "quick brown fox", "note"); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("err = %v", err)
	}

	if err := e.Settings().SetEnabled(ctx, true); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Annotate(ctx, "quick brown fox", "note"); err != nil {
		t.Fatal(err)
	}
}

func TestReconcileRecoversWipedMarkers(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, EngineOptions{
		// The host re-rendered its content: a fresh snapshot has no markers.
		Snapshot: func(context.Context) (string, error) { return pageHTML, nil },
	})
	loadPage(t, e)

	if _, err := e.Annotate(ctx, "quick brown fox", "note"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Annotate(ctx, "lazy dog", "another"); err != nil {
		t.Fatal(err)
	}

	e.Reconcile(ctx)
	if e.RenderedCount() != 2 {
		t.Fatalf("rendered = %d after reconcile", e.RenderedCount())
	}

	// Idempotent: a second reconcile introduces no duplicates.
	e.Reconcile(ctx)
	out, err := e.HTML()
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out, "data-margin-id"); got != 2 {
		t.Fatalf("marker count = %d:\n%s", got, out)
	}
}

func TestNavigationSwitchesCollections(t *testing.T) {
	ctx := context.Background()
	kv := store.OpenMemory(t)
	otherURL := "https://example.com/other"
	otherHTML := `<html><body><p>entirely different content here</p></body></html>`

	e := newEngine(t, EngineOptions{
		KV:       kv,
		Snapshot: func(context.Context) (string, error) { return otherHTML, nil },
	})
	loadPage(t, e)

	if _, err := e.Annotate(ctx, "quick brown fox", "first page note"); err != nil {
		t.Fatal(err)
	}

	// Seed an annotation for the destination ahead of time.
	other := annotation.New(otherURL, "different content", "second page note",
		anchor.Anchor{Exact: "different content"})
	if err := store.NewAnnotations(kv, nil).Save(ctx, other); err != nil {
		t.Fatal(err)
	}

	e.ClearAll(ctx)
	if e.RenderedCount() != 0 {
		t.Fatalf("rendered = %d after clear", e.RenderedCount())
	}

	e.Navigated(ctx, pageURL, otherURL)
	if e.Location() != otherURL {
		t.Fatalf("location = %q", e.Location())
	}
	if e.RenderedCount() != 1 {
		t.Fatalf("rendered = %d after navigation", e.RenderedCount())
	}
	out, _ := e.HTML()
	if !strings.Contains(out, "data-margin-id") {
		t.Fatalf("destination annotation not rendered:\n%s", out)
	}
}

func TestOfflineThenSync(t *testing.T) {
	ctx := context.Background()
	remote := &flakyRemote{failing: true}
	e := newEngine(t, EngineOptions{Remote: remote})
	loadPage(t, e)

	// Created while the remote is down: stays local and pending.
	ann, err := e.Annotate(ctx, "quick brown fox", "offline note")
	if err != nil {
		t.Fatal(err)
	}
	if e.PendingCount() != 1 || e.RenderedCount() != 1 {
		t.Fatalf("pending=%d rendered=%d", e.PendingCount(), e.RenderedCount())
	}

	remote.failing = false
	if got := e.SyncAll(ctx); got != 1 {
		t.Fatalf("delivered = %d", got)
	}
	if e.PendingCount() != 0 {
		t.Fatalf("pending = %d after sync", e.PendingCount())
	}
	if len(remote.deliveries) != 1 || remote.deliveries[0].Comment != "offline note" {
		t.Fatalf("deliveries = %v", remote.deliveries)
	}

	anns := e.Annotations()
	if len(anns) != 1 || anns[0].ID != ann.ID || anns[0].RemoteRef == "" {
		t.Fatalf("annotations = %+v", anns)
	}
}

func TestLegacyAnchorMigratesOnLoad(t *testing.T) {
	ctx := context.Background()
	kv := store.OpenMemory(t)

	// A record from before the quote-based format: structural path only.
	old := &annotation.Annotation{
		ID:           "legacy-1",
		DocumentURL:  pageURL,
		SelectedText: "quick brown fox",
		Comment:      "old note",
		Legacy: &anchor.LegacyAnchor{
			StartPath: "0/1/1/0", EndPath: "0/1/1/0",
			StartOffset: 4, EndOffset: 19,
		},
		Color: annotation.DefaultColor,
	}
	if err := store.NewAnnotations(kv, nil).Save(ctx, old); err != nil {
		t.Fatal(err)
	}

	e := newEngine(t, EngineOptions{KV: kv})
	loadPage(t, e)

	if e.RenderedCount() != 1 {
		t.Fatalf("rendered = %d", e.RenderedCount())
	}

	// The migrated anchor was persisted: the stored record now resolves
	// without its legacy path.
	stored, err := store.NewAnnotations(kv, nil).LoadFor(ctx, pageURL)
	if err != nil {
		t.Fatal(err)
	}
	if stored[0].Anchor == nil || stored[0].Anchor.Exact != "quick brown fox" {
		t.Fatalf("anchor not migrated: %+v", stored[0].Anchor)
	}
}

func TestRemoveUnrenders(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, EngineOptions{})
	loadPage(t, e)

	ann, err := e.Annotate(ctx, "quick brown fox", "note")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Remove(ctx, ann.ID); err != nil {
		t.Fatal(err)
	}
	if e.RenderedCount() != 0 || len(e.Annotations()) != 0 {
		t.Fatalf("rendered=%d loaded=%d", e.RenderedCount(), len(e.Annotations()))
	}
	out, _ := e.HTML()
	if strings.Contains(out, "data-margin-id") {
		t.Fatalf("marker survived removal:\n%s", out)
	}
}

func TestActivate(t *testing.T) {
	ctx := context.Background()
	var activated []string
	e := newEngine(t, EngineOptions{
		OnActivate: func(id string) { activated = append(activated, id) },
	})
	loadPage(t, e)

	ann, err := e.Annotate(ctx, "lazy dog", "note")
	if err != nil {
		t.Fatal(err)
	}
	if !e.Activate(ann.ID) {
		t.Fatal("activate failed")
	}
	if e.Activate("ghost") {
		t.Fatal("unknown id activated")
	}
	if len(activated) != 1 || activated[0] != ann.ID {
		t.Fatalf("callbacks = %v", activated)
	}
}
