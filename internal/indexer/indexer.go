// Package indexer builds the chunk index out of band.
//
// A build reads the corpus metadata list, ingests every entry, cleans and
// chunks it, embeds the chunks in batches and upserts them into the
// configured store. Alongside the index it writes one <doc>_chunks.jsonl
// per document, stats.json and manifest.json to the processed directory.
// A failing entry is logged and skipped; only setup errors abort the build.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"articlereview/internal/embedding"
	"articlereview/internal/ingest"
	"articlereview/internal/logging"
	"articlereview/internal/store"
	"articlereview/internal/types"
)

// Options configures one build.
type Options struct {
	MetadataPath string
	ProcessedDir string
	ChunkSize    int
	ChunkOverlap int
	// BatchSize is the number of chunks per embedding call.
	BatchSize int
	// Workers bounds concurrent ingestion.
	Workers int
	Reset   bool
	// Store is recorded in the manifest.
	Store store.Options
}

// DefaultOptions returns the stock chunking and batching settings.
func DefaultOptions() Options {
	return Options{
		ProcessedDir: "data/processed",
		ChunkSize:    1200,
		ChunkOverlap: 200,
		BatchSize:    32,
		Workers:      4,
	}
}

// Report summarizes a build.
type Report struct {
	Documents int
	Chunks    int
	// Failed maps entry ids to the reason they were skipped.
	Failed   map[string]string
	Duration time.Duration
}

// Indexer runs builds against one embedder and one index.
type Indexer struct {
	sources  *ingest.Registry
	embedder embedding.EmbeddingEngine
	embedCfg embedding.Config
	index    store.ChunkIndex
	opts     Options
}

// New creates an Indexer. Zero BatchSize and Workers take the defaults.
func New(sources *ingest.Registry, embedder embedding.EmbeddingEngine, embedCfg embedding.Config, index store.ChunkIndex, opts Options) *Indexer {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	return &Indexer{sources: sources, embedder: embedder, embedCfg: embedCfg, index: index, opts: opts}
}

type prepared struct {
	entry  ingest.Entry
	doc    *types.Document
	chunks []types.Chunk
	err    error
}

// Run executes a build.
func (ix *Indexer) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryIndexer, "Run")
	defer timer.Stop()

	entries, err := ingest.LoadEntries(ix.opts.MetadataPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(ix.opts.ProcessedDir, 0755); err != nil {
		return nil, fmt.Errorf("create processed dir: %w", err)
	}
	if ix.opts.Reset {
		logging.Indexer("Resetting collection %s", ix.opts.Store.Collection)
		if err := ix.index.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset index: %w", err)
		}
	}

	logging.Indexer("Indexing %d entries (chunk_size=%d overlap=%d workers=%d)",
		len(entries), ix.opts.ChunkSize, ix.opts.ChunkOverlap, ix.opts.Workers)

	docs, err := ix.prepareAll(ctx, entries)
	if err != nil {
		return nil, err
	}

	report := &Report{Failed: make(map[string]string)}
	stats := make(map[string]DocStats)
	for _, p := range docs {
		if p.err == nil {
			p.err = ix.persist(ctx, p)
		}
		if p.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logging.IndexerWarn("Error processing entry %s: %v", entryID(p.entry), p.err)
			report.Failed[entryID(p.entry)] = p.err.Error()
			continue
		}
		stats[p.doc.DocID] = DocStats{
			NChunks:        len(p.chunks),
			IngestWarnings: nonNil(p.doc.IngestWarnings),
			IngestStats:    p.doc.IngestStats,
		}
		report.Documents++
		report.Chunks += len(p.chunks)
	}

	if err := writeJSON(filepath.Join(ix.opts.ProcessedDir, StatsFile), stats); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(ix.opts.ProcessedDir, ManifestFile), ix.manifest()); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	logging.Indexer("Indexed %d documents, %d chunks, %d failed in %v",
		report.Documents, report.Chunks, len(report.Failed), report.Duration)
	return report, nil
}

// prepareAll ingests, cleans and chunks every entry with bounded
// parallelism. Results keep the metadata order.
func (ix *Indexer) prepareAll(ctx context.Context, entries []ingest.Entry) ([]prepared, error) {
	out := make([]prepared, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)

	var mu sync.Mutex
	done := 0
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = ix.prepare(gctx, e)

			mu.Lock()
			done++
			logging.Get(logging.CategoryIndexer).Debug("prepared %d/%d (%s)", done, len(entries), entryID(e))
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, ctx.Err()
}

func (ix *Indexer) prepare(ctx context.Context, e ingest.Entry) prepared {
	p := prepared{entry: e}
	if e.ID == "" {
		p.err = fmt.Errorf("entry has no id")
		return p
	}
	doc, err := ix.sources.Ingest(ctx, e)
	if err != nil {
		p.err = err
		return p
	}
	ingest.Clean(doc)

	chunks, err := ingest.ChunkDocument(doc, ix.opts.ChunkSize, ix.opts.ChunkOverlap)
	if err != nil {
		p.err = err
		return p
	}
	if len(chunks) == 0 {
		doc.Warn(ingest.WarnNoChunks)
	}
	p.doc, p.chunks = doc, chunks
	return p
}

// persist records one document: its chunks file first, then its vectors.
func (ix *Indexer) persist(ctx context.Context, p prepared) error {
	if err := writeChunksJSONL(ix.opts.ProcessedDir, p.doc.DocID, p.chunks); err != nil {
		return err
	}
	for start := 0; start < len(p.chunks); start += ix.opts.BatchSize {
		batch := p.chunks[start:min(start+ix.opts.BatchSize, len(p.chunks))]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := ix.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks %d-%d: %w", start, start+len(batch), err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}
		if err := ix.index.Upsert(ctx, batch, vectors); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
	}
	logging.Indexer("Stored %s: %d chunks", p.doc.DocID, len(p.chunks))
	return nil
}

func (ix *Indexer) manifest() Manifest {
	vs := VectorStoreConfig{
		Type:       ix.opts.Store.Backend,
		Collection: ix.opts.Store.Collection,
		Metric:     string(ix.index.Metric()),
		Reset:      ix.opts.Reset,
	}
	if vs.Type == "" {
		vs.Type = "sqlite"
	}
	if vs.Type == "qdrant" {
		vs.Address = ix.opts.Store.QdrantAddr
	} else {
		vs.Path = ix.opts.Store.Path
	}
	return Manifest{
		Embedding:   embedding.Describe(ix.embedCfg, ix.embedder),
		Chunking:    ChunkingConfig{ChunkSize: ix.opts.ChunkSize, ChunkOverlap: ix.opts.ChunkOverlap},
		VectorStore: vs,
		BuiltAt:     time.Now().UTC(),
	}
}

func entryID(e ingest.Entry) string {
	if e.ID == "" {
		return "unknown"
	}
	return e.ID
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
