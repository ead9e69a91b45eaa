// Package retrieval ranks corpus documents for a free-text query and
// reassembles a document's text from its indexed chunks.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"articlereview/internal/logging"
	"articlereview/internal/store"
	"articlereview/internal/types"
)

// ErrInvalidArgument is returned for an empty document id.
var ErrInvalidArgument = errors.New("invalid argument")

// Embedder turns a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the subset of store.ChunkIndex the engine reads.
type Index interface {
	Query(ctx context.Context, vector []float32, n int) ([]types.ChunkNeighbor, error)
	GetByDoc(ctx context.Context, docID string) ([]types.StoredChunk, error)
	Metric() store.Metric
}

// MetaSource looks up document metadata by id.
type MetaSource interface {
	Lookup(id string) (types.DocMeta, bool)
}

// Options holds engine defaults. Zero fields take the package defaults.
type Options struct {
	TopKChunks int
	TopKDocs   int
	MaxChunks  int
	MaxChars   int
	ScoreMode  ScoreMode
}

// DefaultOptions returns the standard limits.
func DefaultOptions() Options {
	return Options{
		TopKChunks: 60,
		TopKDocs:   5,
		MaxChunks:  100,
		MaxChars:   40000,
		ScoreMode:  ScoreAuto,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.TopKChunks <= 0 {
		o.TopKChunks = d.TopKChunks
	}
	if o.TopKDocs <= 0 {
		o.TopKDocs = d.TopKDocs
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = d.MaxChunks
	}
	if o.MaxChars <= 0 {
		o.MaxChars = d.MaxChars
	}
	if o.ScoreMode == "" {
		o.ScoreMode = d.ScoreMode
	}
	return o
}

// SearchOptions overrides the engine limits for one search.
type SearchOptions struct {
	TopKChunks int
	TopKDocs   int
}

// ContentOptions overrides the engine limits for one content fetch.
type ContentOptions struct {
	MaxChunks int
	MaxChars  int
}

// Engine is stateless apart from its collaborators; calls may run
// concurrently.
type Engine struct {
	embedder Embedder
	index    Index
	meta     MetaSource
	score    ScoreFunc
	opts     Options
}

// NewEngine wires the collaborators. meta may be nil.
func NewEngine(embedder Embedder, index Index, meta MetaSource, opts Options) (*Engine, error) {
	if embedder == nil || index == nil {
		return nil, fmt.Errorf("retrieval engine needs an embedder and an index")
	}
	opts = opts.withDefaults()
	score, err := ScoreConverter(opts.ScoreMode, index.Metric())
	if err != nil {
		return nil, err
	}
	return &Engine{embedder: embedder, index: index, meta: meta, score: score, opts: opts}, nil
}

func (e *Engine) lookup(id string) (types.DocMeta, bool) {
	if e.meta == nil {
		return types.DocMeta{}, false
	}
	return e.meta.Lookup(id)
}

type docScores struct {
	id     string
	scores []float64
	area   string
	mean   float64
}

// SearchArticles ranks documents for query. An empty or whitespace query
// returns no hits without touching the embedder or the index.
func (e *Engine) SearchArticles(ctx context.Context, query string, so SearchOptions) ([]types.SearchHit, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []types.SearchHit{}, nil
	}
	kChunks, kDocs := e.opts.TopKChunks, e.opts.TopKDocs
	if so.TopKChunks > 0 {
		kChunks = so.TopKChunks
	}
	if so.TopKDocs > 0 {
		kDocs = so.TopKDocs
	}

	timer := logging.StartTimer(logging.CategoryRetrieval, "SearchArticles")
	defer timer.Stop()

	vec, err := e.embedder.Embed(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	neighbors, err := e.index.Query(ctx, vec, kChunks)
	if err != nil {
		return nil, fmt.Errorf("index query failed: %w", err)
	}
	if len(neighbors) == 0 {
		logging.Retrieval("SearchArticles: index returned no neighbors (k=%d)", kChunks)
	}

	// Group in first-encounter order so ties keep index order.
	var docs []*docScores
	byID := make(map[string]*docScores)
	for _, n := range neighbors {
		id := n.Meta.DocID
		if id == "" {
			continue
		}
		d, ok := byID[id]
		if !ok {
			area := n.Meta.Area
			if area == "" {
				area = types.AreaUnknown
			}
			d = &docScores{id: id, area: area}
			byID[id] = d
			docs = append(docs, d)
		}
		d.scores = append(d.scores, e.score(n.Distance))
	}

	for _, d := range docs {
		sort.Sort(sort.Reverse(sort.Float64Slice(d.scores)))
		top := d.scores
		if len(top) > kChunks {
			top = top[:kChunks]
		}
		var sum float64
		for _, s := range top {
			sum += s
		}
		d.mean = sum / float64(max(len(top), 1))
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].mean > docs[j].mean })
	if len(docs) > kDocs {
		docs = docs[:kDocs]
	}

	hits := make([]types.SearchHit, 0, len(docs))
	for _, d := range docs {
		hit := types.SearchHit{ID: d.id, Title: d.id, Area: d.area, Score: d.mean}
		if m, ok := e.lookup(d.id); ok {
			hit.Title = m.Title
			hit.Area = m.Area
		}
		hits = append(hits, hit)
	}

	logging.RetrievalDebug("SearchArticles: query_len=%d neighbors=%d docs=%d", len(q), len(neighbors), len(hits))
	return hits, nil
}

type contentRow struct {
	page      int
	charStart int
	charEnd   int
	text      string
	area      string
}

// GetArticleContent reassembles a document from its chunks in page then
// character order. The chunk that would push the total past MaxChars is
// dropped and assembly stops.
func (e *Engine) GetArticleContent(ctx context.Context, docID string, co ContentOptions) (types.ArticleContent, error) {
	id := strings.TrimSpace(docID)
	if id == "" {
		return types.ArticleContent{}, fmt.Errorf("%w: empty document id", ErrInvalidArgument)
	}
	maxChunks, maxChars := e.opts.MaxChunks, e.opts.MaxChars
	if co.MaxChunks > 0 {
		maxChunks = co.MaxChunks
	}
	if co.MaxChars > 0 {
		maxChars = co.MaxChars
	}

	chunks, err := e.index.GetByDoc(ctx, id)
	if err != nil {
		return types.ArticleContent{}, fmt.Errorf("failed to fetch chunks for %s: %w", id, err)
	}

	out := types.ArticleContent{ID: id, Title: types.TitleUnknown, Area: types.AreaUnknown}
	meta, hasMeta := e.lookup(id)
	if hasMeta {
		out.Title = meta.Title
		out.Area = meta.Area
	}
	if len(chunks) == 0 {
		return out, nil
	}

	rows := make([]contentRow, len(chunks))
	for i, c := range chunks {
		rows[i] = contentRow{
			page:      types.IntOr(c.Meta.PageStart, 0),
			charStart: types.IntOr(c.Meta.CharStart, 0),
			charEnd:   types.IntOr(c.Meta.CharEnd, 0),
			text:      c.Text,
			area:      c.Meta.Area,
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].page != rows[j].page {
			return rows[i].page < rows[j].page
		}
		return rows[i].charStart < rows[j].charStart
	})
	if !hasMeta && rows[0].area != "" {
		out.Area = rows[0].area
	}
	if len(rows) > maxChunks {
		rows = rows[:maxChunks]
	}

	var sb strings.Builder
	total := 0
	for _, r := range rows {
		block := fmt.Sprintf("[doc_id=%s page=%d chars=%d-%d]\n%s\n\n", id, r.page, r.charStart, r.charEnd, r.text)
		n := utf8.RuneCountInString(block)
		if total+n > maxChars {
			break
		}
		sb.WriteString(block)
		total += n
	}
	out.Content = sb.String()

	logging.RetrievalDebug("GetArticleContent: id=%s chunks=%d content_len=%d", id, len(chunks), len(out.Content))
	return out, nil
}
