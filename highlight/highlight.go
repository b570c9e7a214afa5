// Package highlight renders annotations as marker elements inside the
// document tree and keeps a registry of what is currently rendered.
//
// Two insertion strategies cover spans that do and do not cross structural
// boundaries; both are reversible by unwrapping the marker. The registry is
// mutated only through Render, Unrender, ClearAll and Reset so it never
// diverges from the actual tree state.
package highlight

import (
	"fmt"
	"log/slog"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/margin/anchor"
	"github.com/hazyhaar/margin/annotation"
)

// IDAttr carries the annotation id on a rendered marker element.
const IDAttr = "data-margin-id"

// activeAttr marks the currently activated marker.
const activeAttr = "data-margin-active"

// MigrateFunc is called when a legacy anchor decoded successfully and the
// annotation now carries a freshly encoded modern Anchor. Implementations
// persist the record; failures are logged by the caller and retried the
// next time the annotation renders.
type MigrateFunc func(*annotation.Annotation) error

// ActivateFunc notifies the comment UI collaborator that a marker was
// activated.
type ActivateFunc func(id string)

// Options configures a Renderer.
type Options struct {
	// OnMigrate persists annotations migrated off the legacy anchor format.
	OnMigrate MigrateFunc
	// OnActivate is notified when Activate selects a marker.
	OnActivate ActivateFunc
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Renderer owns the marker registry for one document rendering.
type Renderer struct {
	opts   Options
	marks  map[string]*html.Node // annotation id → marker element
	active string
}

// New creates a Renderer with an empty registry.
func New(opts Options) *Renderer {
	opts.defaults()
	return &Renderer{opts: opts, marks: make(map[string]*html.Node)}
}

// Count returns the number of currently rendered markers.
func (r *Renderer) Count() int { return len(r.marks) }

// Rendered reports whether a marker exists for the annotation id.
func (r *Renderer) Rendered(id string) bool {
	_, ok := r.marks[id]
	return ok
}

// Render decodes the annotation's anchor against root and inserts a marker.
// It is idempotent per annotation id: a second call is a no-op. A span that
// no longer resolves is skipped silently — the source text may have been
// removed from the document.
func (r *Renderer) Render(ann *annotation.Annotation, root *html.Node) {
	if _, ok := r.marks[ann.ID]; ok {
		return
	}

	span, ok := r.resolve(ann, root)
	if !ok {
		r.opts.Logger.Debug("highlight: anchor not found, skipping",
			"id", ann.ID, "url", ann.DocumentURL)
		return
	}

	start, end := splitEdges(span)
	mark, err := wrap(start, end)
	if err != nil {
		mark, err = extractReinsert(root, start, end)
	}
	if err != nil {
		r.opts.Logger.Warn("highlight: both insertion strategies failed",
			"id", ann.ID, "error", err)
		return
	}

	mark.Attr = append(mark.Attr,
		html.Attribute{Key: IDAttr, Val: ann.ID},
		html.Attribute{Key: "class", Val: "margin-highlight"},
		html.Attribute{Key: "style", Val: "background:" + ann.Color},
	)
	r.marks[ann.ID] = mark
}

// resolve decodes the modern anchor first and falls back to the legacy
// adapter. A successful legacy decode triggers migration-on-read: the span
// is re-encoded as a modern Anchor and handed to OnMigrate. Migration is
// fire-and-forget — a persistence failure leaves the record untouched and
// the migration is retried on the next successful render.
func (r *Renderer) resolve(ann *annotation.Annotation, root *html.Node) (anchor.Span, bool) {
	if ann.Anchor != nil {
		if span, ok := anchor.Decode(*ann.Anchor, ann.SelectedText, root); ok {
			return span, true
		}
	}
	if ann.Legacy == nil {
		return anchor.Span{}, false
	}

	span, ok := anchor.DecodeLegacy(*ann.Legacy, root)
	if !ok {
		return anchor.Span{}, false
	}

	if enc, ok := anchor.Encode(span, root); ok {
		ann.Anchor = &enc
		if r.opts.OnMigrate != nil {
			if err := r.opts.OnMigrate(ann); err != nil {
				r.opts.Logger.Warn("highlight: anchor migration persist failed",
					"id", ann.ID, "error", err)
			} else {
				r.opts.Logger.Info("highlight: migrated legacy anchor", "id", ann.ID)
			}
		}
	}
	return span, true
}

// Unrender removes the marker for id, unwrapping its content in place.
// Calling it again for the same id is a no-op.
func (r *Renderer) Unrender(id string) {
	mark, ok := r.marks[id]
	if !ok {
		return
	}
	unwrap(mark)
	delete(r.marks, id)
	if r.active == id {
		r.active = ""
	}
}

// ClearAll unrenders every marker. Used on navigation.
func (r *Renderer) ClearAll() {
	for id := range r.marks {
		r.Unrender(id)
	}
}

// Reset forgets the registry without touching the tree. Call it when the
// document has been replaced wholesale and the registered nodes no longer
// belong to the live tree.
func (r *Renderer) Reset() {
	r.marks = make(map[string]*html.Node)
	r.active = ""
}

// Activate marks the annotation's marker active, clears the previous
// active marker, and notifies the UI collaborator.
func (r *Renderer) Activate(id string) bool {
	mark, ok := r.marks[id]
	if !ok {
		return false
	}
	if prev, ok := r.marks[r.active]; ok {
		removeAttr(prev, activeAttr)
	}
	setAttr(mark, activeAttr, "true")
	r.active = id
	if r.opts.OnActivate != nil {
		r.opts.OnActivate(id)
	}
	return true
}

// Active returns the id of the active marker, if any.
func (r *Renderer) Active() string { return r.active }

func newMark() *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: atom.Mark, Data: "mark"}
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

// unwrap replaces a marker with its children and merges the text nodes
// that the original insertion split apart.
func unwrap(mark *html.Node) {
	parent := mark.Parent
	if parent == nil {
		return
	}
	for mark.FirstChild != nil {
		c := mark.FirstChild
		mark.RemoveChild(c)
		parent.InsertBefore(c, mark)
	}
	parent.RemoveChild(mark)
	mergeText(parent)
}

// mergeText coalesces adjacent text node children of parent.
func mergeText(parent *html.Node) {
	c := parent.FirstChild
	for c != nil {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			parent.RemoveChild(next)
			continue // re-check c against its new sibling
		}
		c = next
	}
}

var errCrossesBoundary = fmt.Errorf("highlight: span crosses structural boundary")
