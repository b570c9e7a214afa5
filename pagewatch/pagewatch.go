// Package pagewatch keeps rendered highlights consistent with a mutable
// host document. It coalesces structural-change bursts through a debounce
// window and reacts to single-page-app navigations that never reload the
// page.
//
// The watcher owns no document state itself — it drives a Handler (the
// engine) with two guarantees: a navigation's clear-all completes before
// the subsequent reload begins, and mutation bursts collapse into a
// single reconcile per quiet period.
package pagewatch

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler reacts to document events. All calls happen from the single
// Run goroutine, in order.
type Handler interface {
	// ClearAll unrenders every marker. Called synchronously on navigation,
	// before the reload fires.
	ClearAll(ctx context.Context)
	// Navigated reloads annotations for the new location and re-renders
	// them. Called after the settle delay.
	Navigated(ctx context.Context, oldURL, newURL string)
	// Reconcile re-renders annotations whose markers were wiped out by the
	// host re-rendering its own content. Must be idempotent.
	Reconcile(ctx context.Context)
}

// Options tunes the watcher.
type Options struct {
	// Debounce is the quiet period after a mutation burst before Reconcile
	// fires. More bursts during the window reset the timer. Default: 500ms.
	Debounce time.Duration
	// Settle is the delay between a navigation's ClearAll and the reload,
	// letting navigation-triggered content finish appearing. Default: 750ms.
	Settle time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.Settle <= 0 {
		o.Settle = 750 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher maintains the last known location and feeds events to a Handler.
type Watcher struct {
	opts    Options
	handler Handler

	mu      sync.Mutex
	current string

	bumpCh chan struct{}
	navCh  chan string
}

// New creates a Watcher for the document currently at url.
func New(url string, handler Handler, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{
		opts:    opts,
		handler: handler,
		current: url,
		bumpCh:  make(chan struct{}, 1),
		navCh:   make(chan string, 8),
	}
}

// Bump signals a structural-change burst. Safe to call from any
// goroutine; redundant bumps within a pending window coalesce.
func (w *Watcher) Bump() {
	select {
	case w.bumpCh <- struct{}{}:
	default:
	}
}

// Navigate signals a location change. Safe to call from any goroutine.
func (w *Watcher) Navigate(url string) {
	select {
	case w.navCh <- url:
	default:
		w.opts.Logger.Warn("pagewatch: navigation channel full, dropping", "url", url)
	}
}

// Location returns the last known location. Safe to call from any
// goroutine.
func (w *Watcher) Location() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *Watcher) setLocation(url string) {
	w.mu.Lock()
	w.current = url
	w.mu.Unlock()
}

// Run blocks until ctx is cancelled, dispatching debounced reconciles and
// navigations to the handler.
func (w *Watcher) Run(ctx context.Context) {
	log := w.opts.Logger
	log.Info("pagewatch: started",
		"url", w.current, "debounce", w.opts.Debounce, "settle", w.opts.Settle)

	var debounce *time.Timer
	var debounceCh <-chan time.Time

	stopDebounce := func() {
		if debounce != nil {
			debounce.Stop()
			debounce = nil
			debounceCh = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopDebounce()
			log.Info("pagewatch: stopped")
			return

		case <-w.bumpCh:
			// (Re)start the quiet-period timer.
			stopDebounce()
			debounce = time.NewTimer(w.opts.Debounce)
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			w.handler.Reconcile(ctx)

		case url := <-w.navCh:
			old := w.Location()
			if url == old {
				continue
			}
			w.setLocation(url)
			stopDebounce()
			log.Info("pagewatch: navigation", "from", old, "to", url)

			// Clear-all completes before the reload begins.
			w.handler.ClearAll(ctx)

			select {
			case <-ctx.Done():
				return
			case <-time.After(w.opts.Settle):
			}
			w.handler.Navigated(ctx, old, url)
		}
	}
}
