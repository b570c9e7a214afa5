// Package margin is a text-anchoring annotation engine: it converts live
// text selections into location-independent anchors, re-locates them in
// documents whose markup has changed, renders highlight markers
// idempotently, and queues delivery of annotation records to a remote
// store while the local copy stays authoritative.
package margin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/margin/anchor"
	"github.com/hazyhaar/margin/annotation"
	"github.com/hazyhaar/margin/highlight"
	"github.com/hazyhaar/margin/selection"
	"github.com/hazyhaar/margin/store"
	"github.com/hazyhaar/margin/syncq"
)

// Validation failures are rejected at the boundary, with messages
// suitable for direct display.
var (
	ErrCommentRequired = errors.New("a comment is required")
	ErrNoSelection     = errors.New("no text is selected")
	ErrTextNotFound    = errors.New("the text was not found in the document")
)

// SnapshotFunc pulls a fresh HTML snapshot of the host document.
type SnapshotFunc func(ctx context.Context) (string, error)

// EngineOptions wires the engine's collaborators.
type EngineOptions struct {
	// KV is the durable key-value store. Required.
	KV store.KV
	// Remote delivers annotations to the remote store. Optional; without
	// it records simply stay pending.
	Remote syncq.Remote
	// Identity back-fills authors during sync. Optional.
	Identity syncq.Identity
	// UI is the comment-entry collaborator armed by selection capture.
	// Optional.
	UI selection.UI
	// Snapshot refreshes the document from the host. Optional; without it
	// the engine works on the last loaded tree.
	Snapshot SnapshotFunc
	// OnActivate is notified when a marker is activated.
	OnActivate func(id string)
	// MaxSelection bounds selection length in runes. Default: 1000.
	MaxSelection int
	// Color overrides the default highlight color.
	Color string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

// Engine owns the document tree, the marker registry, and the loaded
// annotation collection for the current location. Entry points serialise
// on one mutex: the core logic is single-flow even though host events
// arrive from several goroutines.
type Engine struct {
	logger   *slog.Logger
	anns     *store.Annotations
	settings *store.Settings
	queue    *syncq.Queue
	renderer *highlight.Renderer
	capture  *selection.Capture
	snapshot SnapshotFunc
	color    string

	mu     sync.Mutex
	doc    *html.Node
	docURL string
	loaded []*annotation.Annotation
}

// NewEngine creates an Engine.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.KV == nil {
		return nil, fmt.Errorf("margin: KV store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.UI == nil {
		opts.UI = noopUI{}
	}
	if opts.Color == "" {
		opts.Color = annotation.DefaultColor
	}

	e := &Engine{
		logger:   opts.Logger,
		anns:     store.NewAnnotations(opts.KV, opts.Logger),
		settings: store.NewSettings(opts.KV, opts.Logger),
		snapshot: opts.Snapshot,
		color:    opts.Color,
	}

	e.renderer = highlight.New(highlight.Options{
		OnMigrate: func(ann *annotation.Annotation) error {
			return e.anns.Save(context.Background(), ann)
		},
		OnActivate: opts.OnActivate,
		Logger:     opts.Logger,
	})

	e.capture = selection.New(opts.UI, e.settings, selection.Options{
		MaxLength: opts.MaxSelection,
		Logger:    opts.Logger,
	})

	if opts.Remote != nil {
		e.queue = syncq.New(e.anns, opts.Remote, opts.Identity, opts.Logger)
	}

	return e, nil
}

// Settings exposes the feature toggle.
func (e *Engine) Settings() *store.Settings { return e.settings }

// Capture exposes selection capture for hosts that produce spans directly.
func (e *Engine) Capture() *selection.Capture { return e.capture }

// Location returns the current document location.
func (e *Engine) Location() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docURL
}

// LoadDocument parses an HTML snapshot, loads the location's annotations
// from the store, and renders them in insertion order.
func (e *Engine) LoadDocument(ctx context.Context, url, htmlStr string) error {
	root, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return fmt.Errorf("margin: parse document: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.renderer.Reset()
	e.doc = root
	e.docURL = url

	loaded, err := e.anns.LoadFor(ctx, url)
	if err != nil {
		e.loaded = nil
		return fmt.Errorf("margin: load annotations: %w", err)
	}
	e.loaded = loaded
	e.renderAllLocked()

	e.logger.Info("margin: document loaded",
		"url", url, "annotations", len(loaded), "rendered", e.renderer.Count())
	return nil
}

// HTML serialises the current document tree, markers included.
func (e *Engine) HTML() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil {
		return "", fmt.Errorf("margin: no document loaded")
	}
	var b strings.Builder
	if err := html.Render(&b, e.doc); err != nil {
		return "", fmt.Errorf("margin: render document: %w", err)
	}
	return b.String(), nil
}

// Annotations returns the loaded collection for the current location.
func (e *Engine) Annotations() []*annotation.Annotation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*annotation.Annotation, len(e.loaded))
	copy(out, e.loaded)
	return out
}

// PendingCount reports how many loaded annotations still await delivery.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ann := range e.loaded {
		if ann.Pending() {
			n++
		}
	}
	return n
}

// RenderedCount reports how many markers are currently rendered.
func (e *Engine) RenderedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderer.Count()
}

// Select locates text in the current document and hands it to selection
// capture, arming the affordance when it validates.
func (e *Engine) Select(text string) bool {
	e.mu.Lock()
	if e.doc == nil {
		e.mu.Unlock()
		return false
	}
	span, ok := anchor.Decode(anchor.Anchor{Exact: text}, "", e.doc)
	e.mu.Unlock()
	if !ok {
		e.capture.OnSelection("", anchor.Span{})
		return false
	}
	e.capture.OnSelection(text, span)
	return true
}

// CreateFromSelection consumes the armed selection and a submitted
// comment, writes the annotation locally (local-first), renders it, and
// attempts a best-effort sync.
func (e *Engine) CreateFromSelection(ctx context.Context, comment string) (*annotation.Annotation, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, ErrCommentRequired
	}
	sel := e.capture.Take()
	if sel == nil {
		return nil, ErrNoSelection
	}

	e.mu.Lock()
	enc, ok := anchor.Encode(sel.Span, e.doc)
	if !ok {
		e.mu.Unlock()
		return nil, ErrTextNotFound
	}

	ann := annotation.New(e.docURL, sel.Text, comment, enc)
	ann.Color = e.color

	if err := e.anns.Save(ctx, ann); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.loaded = append(e.loaded, ann)
	e.renderer.Render(ann, e.doc)
	e.mu.Unlock()

	e.syncBestEffort(ctx)
	return ann, nil
}

// Annotate is the one-shot path used by the HTTP and MCP surfaces:
// select text, then submit the comment.
func (e *Engine) Annotate(ctx context.Context, text, comment string) (*annotation.Annotation, error) {
	if !e.Select(text) {
		return nil, ErrTextNotFound
	}
	return e.CreateFromSelection(ctx, comment)
}

// Remove deletes an annotation and its rendered marker.
func (e *Engine) Remove(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.anns.Remove(ctx, e.docURL, id); err != nil {
		return err
	}
	kept := e.loaded[:0]
	for _, ann := range e.loaded {
		if ann.ID != id {
			kept = append(kept, ann)
		}
	}
	e.loaded = kept
	e.renderer.Unrender(id)
	return nil
}

// Activate marks an annotation's marker active and notifies the UI.
func (e *Engine) Activate(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderer.Activate(id)
}

// SyncAll delivers pending annotations for the current location.
func (e *Engine) SyncAll(ctx context.Context) int {
	if e.queue == nil {
		return 0
	}
	url := e.Location()
	if url == "" {
		return 0
	}
	n := e.queue.SyncAll(ctx, url)
	if n > 0 {
		e.refreshLoaded(ctx)
	}
	return n
}

// Queue exposes the sync queue for the daemon's periodic trigger. Nil
// when no remote is configured.
func (e *Engine) Queue() *syncq.Queue { return e.queue }

// ClearAll implements pagewatch.Handler: unrender everything on
// navigation, before the new location loads.
func (e *Engine) ClearAll(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderer.ClearAll()
}

// Navigated implements pagewatch.Handler: pull a fresh snapshot and load
// the new location's annotations.
func (e *Engine) Navigated(ctx context.Context, oldURL, newURL string) {
	htmlStr, ok := e.freshSnapshot(ctx)
	if !ok {
		e.logger.Warn("margin: navigation without snapshot source", "url", newURL)
		return
	}
	if err := e.LoadDocument(ctx, newURL, htmlStr); err != nil {
		e.logger.Error("margin: reload after navigation failed", "url", newURL, "error", err)
	}
	e.syncBestEffort(ctx)
}

// Reconcile implements pagewatch.Handler: after a debounced mutation
// burst, re-render any annotation whose marker was wiped out by the host
// re-rendering its own content. Render is idempotent, so already-rendered
// annotations are skipped.
func (e *Engine) Reconcile(ctx context.Context) {
	if htmlStr, ok := e.freshSnapshot(ctx); ok {
		root, err := html.Parse(strings.NewReader(htmlStr))
		if err != nil {
			e.logger.Warn("margin: reparse on reconcile failed", "error", err)
		} else {
			e.mu.Lock()
			e.doc = root
			e.renderer.Reset()
			e.mu.Unlock()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.doc == nil || e.renderer.Count() >= len(e.loaded) {
		return
	}
	before := e.renderer.Count()
	e.renderAllLocked()
	e.logger.Info("margin: reconciled highlights",
		"url", e.docURL, "recovered", e.renderer.Count()-before)
}

func (e *Engine) renderAllLocked() {
	for _, ann := range e.loaded {
		e.renderer.Render(ann, e.doc)
	}
}

func (e *Engine) freshSnapshot(ctx context.Context) (string, bool) {
	if e.snapshot == nil {
		return "", false
	}
	htmlStr, err := e.snapshot(ctx)
	if err != nil {
		e.logger.Warn("margin: snapshot failed", "error", err)
		return "", false
	}
	return htmlStr, true
}

func (e *Engine) refreshLoaded(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	loaded, err := e.anns.LoadFor(ctx, e.docURL)
	if err != nil {
		e.logger.Warn("margin: refresh loaded failed", "error", err)
		return
	}
	e.loaded = loaded
}

func (e *Engine) syncBestEffort(ctx context.Context) {
	if e.queue == nil {
		return
	}
	e.SyncAll(ctx)
}

type noopUI struct{}

func (noopUI) Arm(*selection.Selection) {}
func (noopUI) Disarm()                  {}
