package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/margin/annotation"
)

// annotationsKeyPrefix namespaces the per-document collections in the KV.
const annotationsKeyPrefix = "annotations:"

// Annotations is the authoritative local set of annotation records,
// collection-per-document over any KV.
type Annotations struct {
	kv     KV
	logger *slog.Logger
}

// NewAnnotations creates the annotation store.
func NewAnnotations(kv KV, logger *slog.Logger) *Annotations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotations{kv: kv, logger: logger}
}

func annotationsKey(documentURL string) string {
	return annotationsKeyPrefix + documentURL
}

// LoadFor returns all annotations for a document location, in insertion
// order. An absent collection is an empty slice, not an error.
func (s *Annotations) LoadFor(ctx context.Context, documentURL string) ([]*annotation.Annotation, error) {
	raw, ok, err := s.kv.Get(ctx, annotationsKey(documentURL))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var anns []*annotation.Annotation
	if err := json.Unmarshal(raw, &anns); err != nil {
		return nil, fmt.Errorf("store: decode collection for %q: %w", documentURL, err)
	}
	return anns, nil
}

// Save upserts one annotation by id within its document's collection.
// New records append; existing records are replaced in place, preserving
// insertion order.
func (s *Annotations) Save(ctx context.Context, ann *annotation.Annotation) error {
	anns, err := s.LoadFor(ctx, ann.DocumentURL)
	if err != nil {
		return err
	}

	replaced := false
	for i, existing := range anns {
		if existing.ID == ann.ID {
			anns[i] = ann
			replaced = true
			break
		}
	}
	if !replaced {
		anns = append(anns, ann)
	}

	return s.writeCollection(ctx, ann.DocumentURL, anns)
}

// Remove deletes one annotation from its document's collection. Removing
// an absent id is a no-op.
func (s *Annotations) Remove(ctx context.Context, documentURL, id string) error {
	anns, err := s.LoadFor(ctx, documentURL)
	if err != nil {
		return err
	}

	kept := anns[:0]
	for _, ann := range anns {
		if ann.ID != id {
			kept = append(kept, ann)
		}
	}
	if len(kept) == len(anns) {
		return nil
	}
	if len(kept) == 0 {
		return s.kv.Remove(ctx, annotationsKey(documentURL))
	}
	return s.writeCollection(ctx, documentURL, kept)
}

// Pending returns the annotations for a location that still lack a
// remote ref, in insertion order.
func (s *Annotations) Pending(ctx context.Context, documentURL string) ([]*annotation.Annotation, error) {
	anns, err := s.LoadFor(ctx, documentURL)
	if err != nil {
		return nil, err
	}
	var pending []*annotation.Annotation
	for _, ann := range anns {
		if ann.Pending() {
			pending = append(pending, ann)
		}
	}
	return pending, nil
}

func (s *Annotations) writeCollection(ctx context.Context, documentURL string, anns []*annotation.Annotation) error {
	raw, err := json.Marshal(anns)
	if err != nil {
		return fmt.Errorf("store: encode collection for %q: %w", documentURL, err)
	}
	return s.kv.Set(ctx, annotationsKey(documentURL), raw)
}
