package ingest

import (
	"context"
	"strings"
	"unicode/utf8"

	"articlereview/internal/types"
)

// TextIngestor wraps inline text.
type TextIngestor struct{}

func (TextIngestor) Kind() types.InputKind { return types.InputText }

func (TextIngestor) Ingest(_ context.Context, e Entry) (*types.Document, error) {
	if err := checkKind(e, types.InputText); err != nil {
		return nil, err
	}
	doc := newDocument(e, types.InputText, "inline:"+e.ID, e.Source.Content)
	doc.IngestStats["n_chars"] = utf8.RuneCountInString(doc.Content)
	if strings.TrimSpace(doc.Content) == "" {
		doc.Warn("Text content is empty.")
	}
	return doc, nil
}
