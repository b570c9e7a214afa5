package pagewatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHandler) ClearAll(context.Context) {
	h.record("clear")
}

func (h *recordingHandler) Navigated(_ context.Context, oldURL, newURL string) {
	h.record(fmt.Sprintf("navigated %s -> %s", oldURL, newURL))
}

func (h *recordingHandler) Reconcile(context.Context) {
	h.record("reconcile")
}

func (h *recordingHandler) record(ev string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func startWatcher(t *testing.T, h Handler, opts Options) *Watcher {
	t.Helper()
	w := New("https://example.com/a", h, opts)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return w
}

func TestBumpBurstCoalesces(t *testing.T) {
	h := &recordingHandler{}
	w := startWatcher(t, h, Options{Debounce: 30 * time.Millisecond, Settle: time.Millisecond})

	for i := 0; i < 5; i++ {
		w.Bump()
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, func() bool { return len(h.snapshot()) >= 1 })
	time.Sleep(100 * time.Millisecond)

	got := h.snapshot()
	if len(got) != 1 || got[0] != "reconcile" {
		t.Fatalf("events = %v, want one reconcile", got)
	}
}

func TestBumpRestartsQuietPeriod(t *testing.T) {
	h := &recordingHandler{}
	w := startWatcher(t, h, Options{Debounce: 80 * time.Millisecond, Settle: time.Millisecond})

	w.Bump()
	time.Sleep(50 * time.Millisecond)
	w.Bump() // inside the window: timer restarts
	time.Sleep(50 * time.Millisecond)

	if got := h.snapshot(); len(got) != 0 {
		t.Fatalf("reconcile fired early: %v", got)
	}
	waitFor(t, func() bool { return len(h.snapshot()) == 1 })
}

func TestNavigationClearsBeforeReload(t *testing.T) {
	h := &recordingHandler{}
	w := startWatcher(t, h, Options{Debounce: 10 * time.Millisecond, Settle: 10 * time.Millisecond})

	w.Navigate("https://example.com/b")

	waitFor(t, func() bool { return len(h.snapshot()) >= 2 })
	got := h.snapshot()
	if got[0] != "clear" {
		t.Fatalf("first event = %q, want clear", got[0])
	}
	if got[1] != "navigated https://example.com/a -> https://example.com/b" {
		t.Fatalf("second event = %q", got[1])
	}
	if w.Location() != "https://example.com/b" {
		t.Fatalf("location = %q", w.Location())
	}
}

func TestNavigationToSameURLIgnored(t *testing.T) {
	h := &recordingHandler{}
	w := startWatcher(t, h, Options{Debounce: 10 * time.Millisecond, Settle: time.Millisecond})

	w.Navigate("https://example.com/a")
	time.Sleep(50 * time.Millisecond)

	if got := h.snapshot(); len(got) != 0 {
		t.Fatalf("events = %v, want none", got)
	}
}

func TestNavigationCancelsPendingReconcile(t *testing.T) {
	h := &recordingHandler{}
	w := startWatcher(t, h, Options{Debounce: 60 * time.Millisecond, Settle: time.Millisecond})

	w.Bump()
	w.Navigate("https://example.com/b")

	waitFor(t, func() bool { return len(h.snapshot()) >= 2 })
	time.Sleep(100 * time.Millisecond)

	for _, ev := range h.snapshot() {
		if ev == "reconcile" {
			t.Fatalf("stale reconcile fired: %v", h.snapshot())
		}
	}
}
