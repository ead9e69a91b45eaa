package indexer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"articlereview/internal/embedding"
	"articlereview/internal/types"
)

// Artifact file names under the processed directory.
const (
	StatsFile    = "stats.json"
	ManifestFile = "manifest.json"
	chunksSuffix = "_chunks.jsonl"
)

// ChunkingConfig records how documents were cut.
type ChunkingConfig struct {
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

// VectorStoreConfig records where the vectors went.
type VectorStoreConfig struct {
	Type       string `json:"type"`
	Path       string `json:"path,omitempty"`
	Address    string `json:"address,omitempty"`
	Collection string `json:"collection_name"`
	Metric     string `json:"metric"`
	Reset      bool   `json:"reset"`
}

// Manifest describes a finished index build. The retrieval service reads
// the embedding section to rebuild the embedder that produced the vectors.
type Manifest struct {
	Embedding   embedding.Info    `json:"embedding_config"`
	Chunking    ChunkingConfig    `json:"chunking_config"`
	VectorStore VectorStoreConfig `json:"vector_store_config"`
	BuiltAt     time.Time         `json:"built_at"`
}

// DocStats is one document's entry in stats.json.
type DocStats struct {
	NChunks        int            `json:"n_chunks"`
	IngestWarnings []string       `json:"ingest_warnings"`
	IngestStats    map[string]any `json:"ingest_stats"`
}

// LoadManifest reads a manifest written by a previous build.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// ChunksPath is where the chunks of docID are recorded.
func ChunksPath(dir, docID string) string {
	return filepath.Join(dir, docID+chunksSuffix)
}

func writeChunksJSONL(dir, docID string, chunks []types.Chunk) error {
	f, err := os.Create(ChunksPath(dir, docID))
	if err != nil {
		return fmt.Errorf("create chunks file: %w", err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			f.Close()
			return fmt.Errorf("encode chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write chunks file: %w", err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
