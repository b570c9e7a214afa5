// Package browser attaches the engine to a live page through Chrome.
// It is the host-document adapter: it produces HTML snapshots on demand
// and feeds navigation and mutation-burst signals to the document
// watcher. The engine itself never depends on this package — any host
// that can supply snapshots and events works.
package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

//go:embed observer.js
var observerJS string

const bindingName = "__margin_binding"

// Options configures the host.
type Options struct {
	// Remote connects to a running Chrome via its websocket URL. Empty
	// launches a local headless Chrome.
	Remote string
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Host is one observed page.
type Host struct {
	opts    Options
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	ctx     context.Context
	cancel  context.CancelFunc

	bumpCh chan struct{}
	navCh  chan string
}

// Open launches (or connects to) Chrome, navigates to url with stealth
// applied, and injects the mutation/navigation observer.
func Open(ctx context.Context, url string, opts Options) (*Host, error) {
	opts.defaults()

	wsURL := opts.Remote
	var lnch *launcher.Launcher
	if wsURL == "" {
		lnch = launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	navCtx, cancelNav := context.WithTimeout(ctx, 30*time.Second)
	defer cancelNav()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		b.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		opts.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	hostCtx, cancel := context.WithCancel(ctx)
	h := &Host{
		opts:    opts,
		browser: b,
		lnch:    lnch,
		page:    page,
		ctx:     hostCtx,
		cancel:  cancel,
		bumpCh:  make(chan struct{}, 1),
		navCh:   make(chan string, 8),
	}

	if err := h.inject(); err != nil {
		h.Close()
		return nil, err
	}

	opts.Logger.Info("browser: attached", "url", url)
	return h, nil
}

// Snapshot serialises the page's current DOM.
func (h *Host) Snapshot(ctx context.Context) (string, error) {
	res, err := h.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: snapshot: %w", err)
	}
	return res.Value.Str(), nil
}

// SelectedText reads the page's current selection.
func (h *Host) SelectedText(ctx context.Context) (string, error) {
	res, err := h.page.Context(ctx).Eval(`() => String(window.getSelection())`)
	if err != nil {
		return "", fmt.Errorf("browser: read selection: %w", err)
	}
	return res.Value.Str(), nil
}

// Bumps signals debounce-worthy structural-change bursts.
func (h *Host) Bumps() <-chan struct{} { return h.bumpCh }

// Navigations emits the new location once per SPA navigation.
func (h *Host) Navigations() <-chan string { return h.navCh }

// Close detaches from the page and shuts down a locally launched Chrome.
func (h *Host) Close() {
	h.cancel()
	if h.page != nil {
		h.page.Close()
	}
	if h.browser != nil {
		h.browser.Close()
	}
	if h.lnch != nil {
		h.lnch.Cleanup()
	}
}

// inject wires the JS observer: a MutationObserver batching into the
// runtime binding, plus history hooks for pushState/replaceState/popstate
// so SPA navigations are caught without a page reload.
func (h *Host) inject() error {
	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(h.page); err != nil {
		h.opts.Logger.Warn("browser: add binding failed (may already exist)", "error", err)
	}

	go h.listenBinding()

	if _, err := h.page.Eval(observerJS); err != nil {
		return fmt.Errorf("browser: inject observer: %w", err)
	}
	return nil
}

// listenBinding receives observer signals via Runtime.bindingCalled.
func (h *Host) listenBinding() {
	h.page.Context(h.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var sig struct {
			Op  string `json:"op"`
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &sig); err != nil {
			h.opts.Logger.Warn("browser: parse binding payload", "error", err)
			return
		}

		switch sig.Op {
		case "mutate":
			select {
			case h.bumpCh <- struct{}{}:
			default:
			}
		case "navigate":
			select {
			case h.navCh <- sig.URL:
			default:
				h.opts.Logger.Warn("browser: navigation channel full, dropping", "url", sig.URL)
			}
		}
	})()
}
