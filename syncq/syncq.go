// Package syncq drives best-effort delivery of pending annotations to the
// remote store. The local copy stays authoritative for the UI; a record
// simply remains pending until a sync pass delivers it.
//
// Retries are idempotent: delivery re-sends the full record and the
// remote store treats the canonical content+author as replaceable, so a
// record that failed mid-pass is safely re-delivered later.
package syncq

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/margin/anchor"
	"github.com/hazyhaar/margin/store"
)

// Delivery is the payload handed to the remote store.
type Delivery struct {
	DocumentURL  string         `json:"document_url"`
	SelectedText string         `json:"selected_text"`
	Comment      string         `json:"comment"`
	Author       string         `json:"author,omitempty"`
	Anchor       *anchor.Anchor `json:"anchor,omitempty"`
}

// Remote creates a durable, addressable record. Failures are retryable;
// the caller leaves the record pending and tries again on a later pass.
type Remote interface {
	Deliver(ctx context.Context, d Delivery) (ref string, err error)
}

// Identity supplies the current author identity, when one is available.
type Identity interface {
	CurrentIdentity(ctx context.Context) (string, bool)
}

// Queue iterates the pending annotations for a document and delivers them
// one at a time.
type Queue struct {
	store  *store.Annotations
	remote Remote
	ident  Identity
	logger *slog.Logger
}

// New creates a Queue. ident may be nil when no identity provider exists.
func New(s *store.Annotations, remote Remote, ident Identity, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: s, remote: remote, ident: ident, logger: logger}
}

// SyncAll delivers every pending annotation for documentURL, in insertion
// order. One record's failure never aborts the rest of the pass. Returns
// the number of records delivered in this pass.
func (q *Queue) SyncAll(ctx context.Context, documentURL string) int {
	pending, err := q.store.Pending(ctx, documentURL)
	if err != nil {
		q.logger.Warn("syncq: load pending failed", "url", documentURL, "error", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	delivered := 0
	for _, ann := range pending {
		if ctx.Err() != nil {
			return delivered
		}

		// Back-fill the author so annotations made while unauthenticated
		// become attributable once the user signs in. Persist before the
		// delivery attempt — attribution must survive a delivery failure.
		if ann.Author == "" && q.ident != nil {
			if who, ok := q.ident.CurrentIdentity(ctx); ok && who != "" {
				ann.Author = who
				if err := q.store.Save(ctx, ann); err != nil {
					q.logger.Warn("syncq: author back-fill persist failed",
						"id", ann.ID, "error", err)
					continue
				}
			}
		}

		ref, err := q.remote.Deliver(ctx, Delivery{
			DocumentURL:  ann.DocumentURL,
			SelectedText: ann.SelectedText,
			Comment:      ann.Comment,
			Author:       ann.Author,
			Anchor:       ann.Anchor,
		})
		if err != nil {
			q.logger.Warn("syncq: delivery failed, record stays pending",
				"id", ann.ID, "error", err)
			continue
		}

		ann.RemoteRef = ref
		if err := q.store.Save(ctx, ann); err != nil {
			// The remote accepted the record but the local ref didn't
			// stick; the next pass re-delivers, which the remote treats
			// as a replace.
			q.logger.Warn("syncq: persist remote ref failed", "id", ann.ID, "error", err)
			continue
		}
		delivered++
		q.logger.Info("syncq: delivered", "id", ann.ID, "ref", ref)
	}
	return delivered
}

// Run triggers SyncAll at the given interval until ctx is cancelled.
// location supplies the current document URL on each tick.
func (q *Queue) Run(ctx context.Context, interval time.Duration, location func() string) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	q.logger.Info("syncq: started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("syncq: stopped")
			return
		case <-ticker.C:
			if url := location(); url != "" {
				q.SyncAll(ctx, url)
			}
		}
	}
}
