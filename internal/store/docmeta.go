package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"articlereview/internal/types"
)

const (
	defaultTitle = "Untitled"
	defaultArea  = "General"
)

type docMetaEntry struct {
	DocID     string  `json:"doc_id"`
	ID        string  `json:"id"`
	Title     *string `json:"title"`
	Area      *string `json:"area"`
	SourceURI string  `json:"source_uri"`
}

func (e docMetaEntry) toMeta() types.DocMeta {
	m := types.DocMeta{Title: defaultTitle, Area: defaultArea, SourceURI: e.SourceURI}
	if e.Title != nil {
		m.Title = *e.Title
	}
	if e.Area != nil {
		m.Area = *e.Area
	}
	return m
}

// LoadDocMeta reads the document metadata file. It accepts an object keyed
// by document id or a list whose entries carry doc_id (or id). A missing
// file yields an empty table.
func LoadDocMeta(path string) (map[string]types.DocMeta, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]types.DocMeta{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	return ParseDocMeta(data)
}

// ParseDocMeta decodes metadata in either accepted shape.
func ParseDocMeta(data []byte) (map[string]types.DocMeta, error) {
	out := make(map[string]types.DocMeta)

	var keyed map[string]docMetaEntry
	if err := json.Unmarshal(data, &keyed); err == nil {
		for id, e := range keyed {
			out[id] = e.toMeta()
		}
		return out, nil
	}

	var list []docMetaEntry
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("metadata must be an object or a list: %w", err)
	}
	for _, e := range list {
		id := e.DocID
		if id == "" {
			id = e.ID
		}
		if id == "" {
			continue
		}
		out[id] = e.toMeta()
	}
	return out, nil
}

// MetaTable is the read-mostly document metadata table. Lookups may run
// concurrently with a reload.
type MetaTable struct {
	mu   sync.RWMutex
	rows map[string]types.DocMeta
}

// NewMetaTable wraps rows (nil is allowed).
func NewMetaTable(rows map[string]types.DocMeta) *MetaTable {
	if rows == nil {
		rows = map[string]types.DocMeta{}
	}
	return &MetaTable{rows: rows}
}

// Lookup returns the row for id.
func (t *MetaTable) Lookup(id string) (types.DocMeta, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.rows[id]
	return m, ok
}

// Replace swaps in a freshly loaded table.
func (t *MetaTable) Replace(rows map[string]types.DocMeta) {
	if rows == nil {
		rows = map[string]types.DocMeta{}
	}
	t.mu.Lock()
	t.rows = rows
	t.mu.Unlock()
}

// Len returns the number of rows.
func (t *MetaTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}
