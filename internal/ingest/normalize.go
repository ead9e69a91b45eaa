package ingest

import (
	"context"
	"fmt"
	"strings"

	"articlereview/internal/types"
)

// InputDocID names the document built from a pipeline input.
const InputDocID = "input"

// Normalizer turns a pdf or url pipeline input into clean plain text.
type Normalizer struct {
	registry *Registry
}

// NewNormalizer creates a Normalizer over r.
func NewNormalizer(r *Registry) *Normalizer {
	return &Normalizer{registry: r}
}

// Normalize ingests value as kind, cleans it and returns the trimmed text
// together with the ingestion warnings. Text inputs are returned as-is.
func (n *Normalizer) Normalize(ctx context.Context, kind types.InputKind, value string) (string, []string, error) {
	e := Entry{ID: InputDocID, Title: InputDocID, Area: "unknown", Source: Source{Type: kind}}
	switch kind {
	case types.InputText:
		return value, nil, nil
	case types.InputPDF:
		e.Source.Path = value
	case types.InputURL:
		e.Source.URL = value
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, kind)
	}

	doc, err := n.registry.Ingest(ctx, e)
	if err != nil {
		return "", nil, err
	}
	Clean(doc)
	return strings.TrimSpace(doc.Content), doc.IngestWarnings, nil
}
