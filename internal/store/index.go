// Package store holds the persistent chunk index and the document
// metadata table served by the retrieval process.
//
// Two index backends are available:
//   - SQLiteIndex: a single file; distance computed by sqlite-vec when the
//     extension is linked, by a registered Go function on the pure-Go driver,
//     and by a scan otherwise.
//   - QdrantIndex: a remote Qdrant collection reached over gRPC.
package store

import (
	"context"
	"fmt"

	"articlereview/internal/types"
)

// Metric says what the numbers returned by ChunkIndex.Query mean.
type Metric string

const (
	// MetricDistance: lower is closer (cosine distance, 0..2).
	MetricDistance Metric = "distance"
	// MetricSimilarity: higher is closer (cosine similarity, -1..1).
	MetricSimilarity Metric = "similarity"
)

// ChunkIndex is the persistent vector index of corpus chunks.
type ChunkIndex interface {
	// Query returns up to n nearest chunks, closest first.
	Query(ctx context.Context, vector []float32, n int) ([]types.ChunkNeighbor, error)
	// GetByDoc returns every chunk of a document, unordered.
	GetByDoc(ctx context.Context, docID string) ([]types.StoredChunk, error)
	// Upsert writes chunks with their vectors; ids are chunk ids.
	Upsert(ctx context.Context, chunks []types.Chunk, vectors [][]float32) error
	// Reset drops every chunk of the collection.
	Reset(ctx context.Context) error
	Metric() Metric
	Close() error
}

// Options selects and locates an index backend.
type Options struct {
	Backend    string // sqlite, qdrant
	Driver     string // sqlite3, sqlite
	Path       string
	Collection string
	QdrantAddr string
	// Dimensions is required to create a missing Qdrant collection.
	Dimensions int
}

// Open opens the configured backend.
func Open(ctx context.Context, opts Options) (ChunkIndex, error) {
	switch opts.Backend {
	case "", "sqlite":
		return NewSQLiteIndex(opts.Driver, opts.Path, opts.Collection)
	case "qdrant":
		return NewQdrantIndex(ctx, opts.QdrantAddr, opts.Collection, opts.Dimensions)
	default:
		return nil, fmt.Errorf("unsupported index backend: %q", opts.Backend)
	}
}
