package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"articlereview/internal/embedding"
	"articlereview/internal/ingest"
	"articlereview/internal/store"
	"articlereview/internal/types"
)

type countingEmbedder struct {
	mu      sync.Mutex
	batches []int
	failOn  string
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (e *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.batches = append(e.batches, len(texts))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.failOn != "" && strings.Contains(t, e.failOn) {
			return nil, errors.New("embedding quota exceeded")
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *countingEmbedder) Dimensions() int { return 2 }
func (e *countingEmbedder) Name() string    { return "counting" }

type recordingIndex struct {
	mu     sync.Mutex
	chunks map[string]types.Chunk
	resets int
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{chunks: make(map[string]types.Chunk)}
}

func (r *recordingIndex) Query(context.Context, []float32, int) ([]types.ChunkNeighbor, error) {
	return nil, nil
}

func (r *recordingIndex) GetByDoc(_ context.Context, docID string) ([]types.StoredChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.StoredChunk
	for id, c := range r.chunks {
		if c.DocID == docID {
			out = append(out, types.StoredChunk{ChunkID: id, Text: c.Text, Meta: c.Meta()})
		}
	}
	return out, nil
}

func (r *recordingIndex) Upsert(_ context.Context, chunks []types.Chunk, vectors [][]float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(chunks) != len(vectors) {
		return errors.New("length mismatch")
	}
	for _, c := range chunks {
		r.chunks[c.ChunkID] = c
	}
	return nil
}

func (r *recordingIndex) Reset(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.chunks = make(map[string]types.Chunk)
	return nil
}

func (r *recordingIndex) Metric() store.Metric { return store.MetricDistance }
func (r *recordingIndex) Close() error         { return nil }

func writeMetadata(t *testing.T, dir string, entries []ingest.Entry) string {
	t.Helper()
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	path := filepath.Join(dir, "metadata.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func corpusEntries(dir string) []ingest.Entry {
	return []ingest.Entry{
		{ID: "doc_A", Title: "Proofs", Area: "Mathematics", Source: ingest.Source{Type: types.InputText, Content: strings.Repeat("lemma ", 20)}},
		{ID: "doc_B", Title: "Trials", Area: "Medicine", Source: ingest.Source{Type: types.InputText, Content: "short  trial\x00 text"}},
		{ID: "doc_C", Title: "Missing", Area: "Economics", Source: ingest.Source{Type: types.InputPDF, Path: filepath.Join(dir, "nope.pdf")}},
		{ID: "doc_D", Title: "Odd", Area: "Economics", Source: ingest.Source{Type: "docx"}},
		{ID: "doc_E", Title: "Blank", Area: "Economics", Source: ingest.Source{Type: types.InputText, Content: "   "}},
	}
}

func newTestIndexer(t *testing.T, embedder *countingEmbedder, index *recordingIndex, reset bool) (*Indexer, string) {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		MetadataPath: writeMetadata(t, dir, corpusEntries(dir)),
		ProcessedDir: filepath.Join(dir, "processed"),
		ChunkSize:    40,
		ChunkOverlap: 10,
		BatchSize:    2,
		Workers:      3,
		Reset:        reset,
		Store:        store.Options{Backend: "sqlite", Path: "index.db", Collection: "articles"},
	}
	cfg := embedding.Config{Provider: "ollama", OllamaModel: "embeddinggemma", OllamaEndpoint: "http://localhost:11434"}
	return New(ingest.NewRegistry(ingest.TextIngestor{}, ingest.PDFIngestor{}), embedder, cfg, index, opts), opts.ProcessedDir
}

func TestRun_IndexesAndSkipsFailures(t *testing.T) {
	embedder := &countingEmbedder{}
	index := newRecordingIndex()
	ix, processed := newTestIndexer(t, embedder, index, false)

	report, err := ix.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Documents)
	assert.Contains(t, report.Failed, "doc_C")
	assert.Contains(t, report.Failed, "doc_D")
	assert.Contains(t, report.Failed["doc_D"], "unsupported source type")
	assert.Equal(t, len(index.chunks), report.Chunks)

	// doc_A is 119 characters after cleaning: windows start at 0, 30, 60, 90.
	a, _ := index.GetByDoc(context.Background(), "doc_A")
	assert.Len(t, a, 4)
	for _, n := range embedder.batches {
		assert.LessOrEqual(t, n, 2)
	}

	b, _ := index.GetByDoc(context.Background(), "doc_B")
	require.Len(t, b, 1)
	assert.Equal(t, "short trial text", b[0].Text)
	assert.Equal(t, "doc_B::pNone-None::c0", b[0].ChunkID)

	var stats map[string]DocStats
	data, err := os.ReadFile(filepath.Join(processed, StatsFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 4, stats["doc_A"].NChunks)
	assert.Equal(t, []string{ingest.WarnNullBytes}, stats["doc_B"].IngestWarnings)
	assert.Equal(t, 0, stats["doc_E"].NChunks)
	assert.Contains(t, stats["doc_E"].IngestWarnings, ingest.WarnNoChunks)
	assert.NotContains(t, stats, "doc_C")

	m, err := LoadManifest(filepath.Join(processed, ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, "ollama", m.Embedding.Provider)
	assert.Equal(t, "embeddinggemma", m.Embedding.Model)
	assert.Equal(t, 2, m.Embedding.Dimensions)
	assert.Equal(t, ChunkingConfig{ChunkSize: 40, ChunkOverlap: 10}, m.Chunking)
	assert.Equal(t, "sqlite", m.VectorStore.Type)
	assert.Equal(t, "index.db", m.VectorStore.Path)
	assert.Equal(t, "distance", m.VectorStore.Metric)
}

func TestRun_WritesChunksJSONL(t *testing.T) {
	ix, processed := newTestIndexer(t, &countingEmbedder{}, newRecordingIndex(), false)
	_, err := ix.Run(context.Background())
	require.NoError(t, err)

	f, err := os.Open(ChunksPath(processed, "doc_A"))
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var c types.Chunk
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		assert.Equal(t, "doc_A", c.DocID)
		assert.Equal(t, "Mathematics", c.Area)
		ids = append(ids, c.ChunkID)
	}
	require.NoError(t, sc.Err())
	assert.True(t, sort.StringsAreSorted(ids))
	assert.Equal(t, []string{"doc_A::pNone-None::c0", "doc_A::pNone-None::c1", "doc_A::pNone-None::c2", "doc_A::pNone-None::c3"}, ids)

	_, err = os.Stat(ChunksPath(processed, "doc_C"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_EmbedFailureSkipsDocument(t *testing.T) {
	embedder := &countingEmbedder{failOn: "trial"}
	index := newRecordingIndex()
	ix, _ := newTestIndexer(t, embedder, index, false)

	report, err := ix.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.Failed["doc_B"], "embedding quota exceeded")
	b, _ := index.GetByDoc(context.Background(), "doc_B")
	assert.Empty(t, b)
	a, _ := index.GetByDoc(context.Background(), "doc_A")
	assert.NotEmpty(t, a)
}

func TestRun_Reset(t *testing.T) {
	index := newRecordingIndex()
	index.chunks["stale::pNone-None::c0"] = types.Chunk{DocID: "stale"}

	ix, _ := newTestIndexer(t, &countingEmbedder{}, index, true)
	_, err := ix.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, index.resets)
	stale, _ := index.GetByDoc(context.Background(), "stale")
	assert.Empty(t, stale)
}

func TestRun_BadMetadata(t *testing.T) {
	ix := New(ingest.NewRegistry(), &countingEmbedder{}, embedding.Config{}, newRecordingIndex(),
		Options{MetadataPath: filepath.Join(t.TempDir(), "missing.json"), ChunkSize: 10})
	_, err := ix.Run(context.Background())
	assert.Error(t, err)
}

func TestRun_Canceled(t *testing.T) {
	ix, _ := newTestIndexer(t, &countingEmbedder{}, newRecordingIndex(), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ix.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
