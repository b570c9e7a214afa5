// Package annotation defines the durable record attached to an anchored
// text span. It is a leaf package: plain data, no I/O.
package annotation

import (
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/margin/anchor"
)

// DefaultColor is applied to annotations created without an explicit color.
const DefaultColor = "#ffe066"

// Annotation is the durable record. It is written to the local store
// immediately on creation (local-first) and delivered to the remote store
// later; RemoteRef stays empty until the first successful delivery.
type Annotation struct {
	ID           string               `json:"id"`
	DocumentURL  string               `json:"document_url"`
	SelectedText string               `json:"selected_text"`
	Comment      string               `json:"comment"`
	Anchor       *anchor.Anchor       `json:"anchor,omitempty"`
	Legacy       *anchor.LegacyAnchor `json:"legacy_anchor,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	Author       string               `json:"author,omitempty"`
	RemoteRef    string               `json:"remote_ref,omitempty"`
	Color        string               `json:"color"`
}

// New creates an annotation with a fresh UUIDv7 id and creation timestamp.
// Author may be empty when no identity is available yet; the sync pass
// back-fills it before delivery.
func New(documentURL, selectedText, comment string, a anchor.Anchor) *Annotation {
	return &Annotation{
		ID:           uuid.Must(uuid.NewV7()).String(),
		DocumentURL:  documentURL,
		SelectedText: selectedText,
		Comment:      comment,
		Anchor:       &a,
		CreatedAt:    time.Now().UTC(),
		Color:        DefaultColor,
	}
}

// Pending reports whether the annotation still awaits remote delivery.
func (a *Annotation) Pending() bool { return a.RemoteRef == "" }
