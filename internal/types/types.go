// Package types provides shared data structures used across the reviewer
// packages. It exists to break import cycles between the tool bridge, the
// retrieval engine, the stores and the pipeline; nothing here has behavior
// beyond small helpers.
package types

import (
	"fmt"
	"strings"
)

// =============================================================================
// SUBJECT AREAS
// =============================================================================

// Area labels a subject area of the private corpus.
type Area = string

const (
	AreaMathematics Area = "Mathematics"
	AreaMedicine    Area = "Medicine"
	AreaEconomics   Area = "Economics"

	// AreaUnknown is used when neither the metadata table nor the index
	// carries an area for a document.
	AreaUnknown Area = "Unknown"
)

// TitleUnknown is the title reported for a document missing from the
// metadata table.
const TitleUnknown = "Unknown"

// KnownAreas returns the fixed label set, sorted.
func KnownAreas() []Area {
	return []Area{AreaEconomics, AreaMathematics, AreaMedicine}
}

// =============================================================================
// INPUT KINDS
// =============================================================================

// InputKind tells the normalizer how to read the input value.
type InputKind string

const (
	InputText InputKind = "text"
	InputPDF  InputKind = "pdf"
	InputURL  InputKind = "url"
)

// ParseInputKind lowercases and trims a raw kind. Unknown kinds are returned
// as-is with ok=false so callers can warn and fall back.
func ParseInputKind(raw string) (InputKind, bool) {
	k := InputKind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case InputText, InputPDF, InputURL:
		return k, true
	default:
		return k, false
	}
}

// =============================================================================
// TOOL PAYLOADS
// =============================================================================

// SearchHit is a document-level search result.
type SearchHit struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Area  Area    `json:"area"`
	Score float64 `json:"score"`
}

// ArticleContent is the reassembled text of one document.
type ArticleContent struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Area    Area   `json:"area"`
	Content string `json:"content"`
}

// =============================================================================
// INDEX RECORDS
// =============================================================================

// ChunkMeta is the metadata stored next to every chunk vector. Pointer
// fields are absent for sources without pages (url, text).
type ChunkMeta struct {
	DocID      string `json:"doc_id"`
	Area       string `json:"area,omitempty"`
	PageStart  *int   `json:"page_start,omitempty"`
	PageEnd    *int   `json:"page_end,omitempty"`
	SourceURI  string `json:"source_uri,omitempty"`
	CharStart  *int   `json:"char_start,omitempty"`
	CharEnd    *int   `json:"char_end,omitempty"`
	TokenCount int    `json:"token_count"`
}

// ChunkNeighbor is one raw nearest-neighbor result. Distance is whatever the
// index reports; it is not yet a score.
type ChunkNeighbor struct {
	Meta     ChunkMeta
	Distance float64
}

// StoredChunk is a chunk read back by document id.
type StoredChunk struct {
	ChunkID string
	Text    string
	Meta    ChunkMeta
}

// Chunk is a unit produced by the indexer, ready for embedding and upsert.
type Chunk struct {
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	Area       string `json:"area"`
	Text       string `json:"text"`
	SourceURI  string `json:"source_uri"`
	PageStart  *int   `json:"page_start"`
	PageEnd    *int   `json:"page_end"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	TokenCount int    `json:"token_count"`
}

// Meta converts a chunk into the metadata persisted with its vector.
func (c Chunk) Meta() ChunkMeta {
	cs, ce := c.CharStart, c.CharEnd
	return ChunkMeta{
		DocID:      c.DocID,
		Area:       c.Area,
		PageStart:  c.PageStart,
		PageEnd:    c.PageEnd,
		SourceURI:  c.SourceURI,
		CharStart:  &cs,
		CharEnd:    &ce,
		TokenCount: c.TokenCount,
	}
}

// ChunkID formats the stable chunk identifier: <doc>::p<start>-<end>::c<n>.
// Missing pages render as None.
func ChunkID(docID string, pageStart, pageEnd *int, index int) string {
	return fmt.Sprintf("%s::p%s-%s::c%d", docID, pageLabel(pageStart), pageLabel(pageEnd), index)
}

func pageLabel(p *int) string {
	if p == nil {
		return "None"
	}
	return fmt.Sprintf("%d", *p)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// IntOr dereferences p, or returns def when p is nil.
func IntOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Page is one page of extracted text, 1-based.
type Page struct {
	Index int    `json:"page_idx"`
	Text  string `json:"text"`
}

// Document is an ingested source before chunking.
type Document struct {
	DocID          string         `json:"doc_id"`
	Title          string         `json:"title"`
	Area           string         `json:"area"`
	SourceType     InputKind      `json:"source_type"`
	SourceURI      string         `json:"source_uri"`
	Content        string         `json:"content"`
	Pages          []Page         `json:"page_map"`
	IngestWarnings []string       `json:"ingest_warnings"`
	IngestStats    map[string]any `json:"ingest_stats"`
}

// Warn appends an ingestion warning.
func (d *Document) Warn(msg string) {
	d.IngestWarnings = append(d.IngestWarnings, msg)
}

// DocMeta is one row of the document metadata table.
type DocMeta struct {
	Title     string `json:"title"`
	Area      string `json:"area"`
	SourceURI string `json:"source_uri,omitempty"`
}
