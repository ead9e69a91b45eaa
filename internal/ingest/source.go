// Package ingest reads corpus sources into documents and prepares them for
// indexing.
//
// Three source kinds are supported: PDF files, web pages and inline text.
// Every ingestor returns a types.Document whose Content is the raw
// extracted text; Clean normalizes it and ChunkDocument cuts it into
// character-offset chunks. The pipeline reuses the same ingestors through
// Normalizer to turn a pdf or url input into plain text.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"articlereview/internal/logging"
	"articlereview/internal/types"
)

var (
	// ErrUnsupportedSource is returned for a source type with no ingestor.
	ErrUnsupportedSource = errors.New("unsupported source type")
	// ErrSourceMismatch is returned when an entry reaches the wrong ingestor.
	ErrSourceMismatch = errors.New("source type mismatch")
)

// Source locates the content of one corpus entry. Which field is used
// depends on Type.
type Source struct {
	Type    types.InputKind `json:"type"`
	Path    string          `json:"path,omitempty"`
	URL     string          `json:"url,omitempty"`
	Content string          `json:"content,omitempty"`
}

// Entry is one item of the corpus metadata list.
type Entry struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Area   string `json:"area"`
	Source Source `json:"source"`
}

// Ingestor reads one kind of source.
type Ingestor interface {
	Kind() types.InputKind
	Ingest(ctx context.Context, e Entry) (*types.Document, error)
}

// Registry dispatches entries to the ingestor registered for their kind.
type Registry struct {
	byKind map[types.InputKind]Ingestor
}

// NewRegistry creates a registry. A later ingestor replaces an earlier one
// of the same kind.
func NewRegistry(ingestors ...Ingestor) *Registry {
	r := &Registry{byKind: make(map[types.InputKind]Ingestor, len(ingestors))}
	for _, in := range ingestors {
		r.byKind[in.Kind()] = in
	}
	return r
}

// DefaultRegistry registers the text, pdf and url ingestors. A nil client
// gets the URL ingestor's default.
func DefaultRegistry(client *http.Client) *Registry {
	return NewRegistry(TextIngestor{}, PDFIngestor{}, NewURLIngestor(client))
}

// Ingest reads e with the ingestor for its source type.
func (r *Registry) Ingest(ctx context.Context, e Entry) (*types.Document, error) {
	kind, _ := types.ParseInputKind(string(e.Source.Type))
	in, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, e.Source.Type)
	}
	e.Source.Type = kind

	timer := logging.StartTimer(logging.CategoryIngest, "ingest "+e.ID)
	doc, err := in.Ingest(ctx, e)
	timer.Stop()
	if err != nil {
		logging.IngestWarn("ingest %s (%s) failed: %v", e.ID, kind, err)
		return nil, err
	}
	logging.Ingest("ingested %s (%s): %d chars, %d warnings", e.ID, kind, len(doc.Content), len(doc.IngestWarnings))
	return doc, nil
}

// LoadEntries reads the corpus metadata list from path.
func LoadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	for i := range entries {
		entries[i].ID = strings.TrimSpace(entries[i].ID)
	}
	return entries, nil
}

func checkKind(e Entry, want types.InputKind) error {
	if e.Source.Type != want {
		return fmt.Errorf("%w: want %q, got %q", ErrSourceMismatch, want, e.Source.Type)
	}
	return nil
}

func newDocument(e Entry, kind types.InputKind, uri, content string) *types.Document {
	return &types.Document{
		DocID:       e.ID,
		Title:       e.Title,
		Area:        e.Area,
		SourceType:  kind,
		SourceURI:   uri,
		Content:     content,
		Pages:       []types.Page{},
		IngestStats: map[string]any{},
	}
}
