package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"articlereview/internal/logging"
	"articlereview/internal/types"
)

const scrollPageSize = 256

// QdrantIndex stores chunks in a Qdrant collection with cosine distance.
// Qdrant reports cosine similarity, so Metric is MetricSimilarity.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      qdrant.PointsClient
	collections qdrant.CollectionsClient
	collection  string
	dimensions  int
}

// NewQdrantIndex connects to Qdrant's gRPC port. When dimensions is
// positive a missing collection is created.
func NewQdrantIndex(ctx context.Context, addr, collection string, dimensions int) (*QdrantIndex, error) {
	if addr == "" {
		addr = "localhost:6334"
	}
	if collection == "" {
		collection = "articles"
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s: %w", addr, err)
	}

	q := &QdrantIndex{
		conn:        conn,
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
		collection:  collection,
		dimensions:  dimensions,
	}
	if dimensions > 0 {
		if err := q.ensureCollection(ctx); err != nil {
			conn.Close()
			return nil, err
		}
	}
	logging.Store("Qdrant index opened: addr=%s collection=%s", addr, collection)
	return q, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	resp, err := q.collections.CollectionExists(ctx, &qdrant.CollectionExistsRequest{CollectionName: q.collection})
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", q.collection, err)
	}
	if resp.GetResult().GetExists() {
		return nil
	}
	return q.create(ctx)
}

func (q *QdrantIndex) create(ctx context.Context) error {
	_, err := q.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}
	logging.Store("Created Qdrant collection %s (dim=%d)", q.collection, q.dimensions)
	return nil
}

// Metric reports cosine similarity.
func (q *QdrantIndex) Metric() Metric { return MetricSimilarity }

// Query searches the collection.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, n int) ([]types.ChunkNeighbor, error) {
	if n <= 0 {
		return nil, nil
	}
	resp, err := q.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(n),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	out := make([]types.ChunkNeighbor, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		out = append(out, types.ChunkNeighbor{
			Meta:     metaFromPayload(p.GetPayload()),
			Distance: float64(p.GetScore()),
		})
	}
	return out, nil
}

// GetByDoc scrolls every point whose doc_id matches.
func (q *QdrantIndex) GetByDoc(ctx context.Context, docID string) ([]types.StoredChunk, error) {
	limit := uint32(scrollPageSize)
	req := &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatchKeyword("doc_id", docID)}},
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}

	var out []types.StoredChunk
	for {
		resp, err := q.points.Scroll(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll failed: %w", err)
		}
		for _, p := range resp.GetResult() {
			payload := p.GetPayload()
			out = append(out, types.StoredChunk{
				ChunkID: payload["chunk_id"].GetStringValue(),
				Text:    payload["text"].GetStringValue(),
				Meta:    metaFromPayload(payload),
			})
		}
		if resp.GetNextPageOffset() == nil {
			return out, nil
		}
		req.Offset = resp.GetNextPageOffset()
	}
}

// Upsert writes points keyed by a name-based UUID of the chunk id.
func (q *QdrantIndex) Upsert(ctx context.Context, chunks []types.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	if q.dimensions == 0 {
		q.dimensions = len(vectors[0])
		if err := q.ensureCollection(ctx); err != nil {
			return err
		}
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		payload, err := qdrant.TryValueMap(chunkPayload(c))
		if err != nil {
			return fmt.Errorf("chunk %s: invalid payload: %w", c.ChunkID, err)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(c.ChunkID)),
			Vectors: qdrant.NewVectorsDense(vectors[i]),
			Payload: payload,
		}
	}

	wait := true
	if _, err := q.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	logging.StoreDebug("Upserted %d points into %s", len(points), q.collection)
	return nil
}

// Reset drops and recreates the collection.
func (q *QdrantIndex) Reset(ctx context.Context) error {
	if _, err := q.collections.Delete(ctx, &qdrant.DeleteCollection{CollectionName: q.collection}); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", q.collection, err)
	}
	logging.Store("Dropped Qdrant collection %s", q.collection)
	if q.dimensions > 0 {
		return q.create(ctx)
	}
	return nil
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.conn.Close()
}

// PointID maps a chunk id to the UUID Qdrant requires.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func chunkPayload(c types.Chunk) map[string]any {
	p := map[string]any{
		"chunk_id":    c.ChunkID,
		"doc_id":      c.DocID,
		"area":        c.Area,
		"text":        c.Text,
		"source_uri":  c.SourceURI,
		"char_start":  c.CharStart,
		"char_end":    c.CharEnd,
		"token_count": c.TokenCount,
	}
	if c.PageStart != nil {
		p["page_start"] = *c.PageStart
	}
	if c.PageEnd != nil {
		p["page_end"] = *c.PageEnd
	}
	return p
}

func metaFromPayload(p map[string]*qdrant.Value) types.ChunkMeta {
	return types.ChunkMeta{
		DocID:      p["doc_id"].GetStringValue(),
		Area:       p["area"].GetStringValue(),
		PageStart:  payloadInt(p, "page_start"),
		PageEnd:    payloadInt(p, "page_end"),
		SourceURI:  p["source_uri"].GetStringValue(),
		CharStart:  payloadInt(p, "char_start"),
		CharEnd:    payloadInt(p, "char_end"),
		TokenCount: int(p["token_count"].GetIntegerValue()),
	}
}

func payloadInt(p map[string]*qdrant.Value, key string) *int {
	v, ok := p[key]
	if !ok || v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *qdrant.Value_IntegerValue:
		return types.IntPtr(int(k.IntegerValue))
	case *qdrant.Value_DoubleValue:
		return types.IntPtr(int(k.DoubleValue))
	default:
		return nil
	}
}

var _ ChunkIndex = (*QdrantIndex)(nil)
