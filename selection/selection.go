// Package selection turns user selection gestures into validated,
// normalized Selection records and arms the "create annotation"
// affordance while one is held.
//
// A selection that fails validation is silently ignored — it is simply
// not a candidate for annotation, not an error.
package selection

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"

	"github.com/hazyhaar/margin/anchor"
)

// MaxLength is the default upper bound on selected text, in runes.
const MaxLength = 1000

// Selection is the ephemeral record held between a completed selection
// gesture and the user's submit/discard decision.
type Selection struct {
	Text string
	Span anchor.Span
}

// UI is the comment-entry collaborator: it shows the affordance while a
// selection is armed and hides it otherwise.
type UI interface {
	Arm(*Selection)
	Disarm()
}

// Toggle gates the whole capture path.
type Toggle interface {
	Enabled() bool
}

// Options configures a Capture.
type Options struct {
	// MaxLength bounds the selected text in runes. Default: 1000.
	MaxLength int
	// Grace delays the disarm after a collapsed selection, avoiding a race
	// with the affordance's own click handling. Default: 250ms.
	Grace time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.MaxLength <= 0 {
		o.MaxLength = MaxLength
	}
	if o.Grace <= 0 {
		o.Grace = 250 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Capture listens for selection-completed signals.
type Capture struct {
	opts   Options
	ui     UI
	toggle Toggle
	strip  *bluemonday.Policy

	mu    sync.Mutex
	held  *Selection
	grace *time.Timer
}

// New creates a Capture. ui and toggle are required collaborators.
func New(ui UI, toggle Toggle, opts Options) *Capture {
	opts.defaults()
	return &Capture{
		opts:   opts,
		ui:     ui,
		toggle: toggle,
		strip:  bluemonday.StrictPolicy(),
	}
}

// OnSelection handles a completed selection gesture. The raw text may
// still contain markup fragments; it is stripped and normalized before
// validation. Valid selections arm the affordance and are held until
// taken or superseded.
func (c *Capture) OnSelection(raw string, span anchor.Span) {
	if !c.toggle.Enabled() {
		return
	}

	text := Normalize(c.strip, raw)
	if text == "" || span.Empty() {
		c.collapsed()
		return
	}
	if n := len([]rune(text)); n > c.opts.MaxLength {
		c.opts.Logger.Debug("selection: over length bound, ignoring", "runes", n)
		return
	}

	c.mu.Lock()
	c.stopGraceLocked()
	c.held = &Selection{Text: text, Span: span}
	held := c.held
	c.mu.Unlock()

	c.ui.Arm(held)
}

// collapsed schedules a grace-delayed disarm for an empty selection.
func (c *Capture) collapsed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopGraceLocked()
	c.grace = time.AfterFunc(c.opts.Grace, func() {
		c.mu.Lock()
		c.held = nil
		c.mu.Unlock()
		c.ui.Disarm()
	})
}

// Take hands over the held selection exactly once. Returns nil when
// nothing is armed.
func (c *Capture) Take() *Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopGraceLocked()
	s := c.held
	c.held = nil
	return s
}

// Discard drops the held selection with no side effects beyond disarming.
func (c *Capture) Discard() {
	c.mu.Lock()
	c.stopGraceLocked()
	c.held = nil
	c.mu.Unlock()
	c.ui.Disarm()
}

func (c *Capture) stopGraceLocked() {
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
}

// Normalize strips markup and control characters from a captured fragment
// and trims surrounding whitespace.
func Normalize(strip *bluemonday.Policy, raw string) string {
	clean := xhtml.UnescapeString(strip.Sanitize(raw))
	clean = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, clean)
	return strings.TrimSpace(clean)
}
