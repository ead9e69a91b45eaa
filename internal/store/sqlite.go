package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"articlereview/internal/logging"
	"articlereview/internal/types"
)

const chunksSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	collection  TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	doc_id      TEXT NOT NULL,
	area        TEXT,
	text        TEXT NOT NULL DEFAULT '',
	page_start  INTEGER,
	page_end    INTEGER,
	source_uri  TEXT,
	char_start  INTEGER,
	char_end    INTEGER,
	token_count INTEGER NOT NULL DEFAULT 0,
	embedding   BLOB NOT NULL,
	PRIMARY KEY (collection, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(collection, doc_id);
`

var metaColumns = []string{
	"chunk_id", "doc_id", "area", "page_start", "page_end",
	"source_uri", "char_start", "char_end", "token_count",
}

// SQLiteIndex stores chunks and their vectors in one SQLite table.
type SQLiteIndex struct {
	db         *sql.DB
	mu         sync.RWMutex
	path       string
	collection string

	// sqlDistance is set when vec_distance_cosine is callable from SQL.
	sqlDistance bool
}

// NewSQLiteIndex opens (creating if needed) the index database. driver is
// "sqlite3" (mattn, cgo) or "sqlite" (modernc, pure Go).
func NewSQLiteIndex(driver, path, collection string) (*SQLiteIndex, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteIndex")
	defer timer.Stop()

	if driver == "" {
		driver = "sqlite3"
	}
	if collection == "" {
		collection = "articles"
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn, err := sqliteDSN(driver, path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(chunksSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteIndex{db: db, path: path, collection: collection}
	s.detectVecExtension()
	logging.Store("SQLite index opened: path=%s driver=%s collection=%s sql_distance=%v", path, driver, collection, s.sqlDistance)
	return s, nil
}

func sqliteDSN(driver, path string) (string, error) {
	switch driver {
	case "sqlite3":
		return path + "?_busy_timeout=5000&_journal_mode=WAL", nil
	case "sqlite":
		return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver: %q", driver)
	}
}

// detectVecExtension checks whether vec_distance_cosine can run in SQL.
func (s *SQLiteIndex) detectVecExtension() {
	one := encodeVector([]float32{1})
	var d float64
	if err := s.db.QueryRow("SELECT vec_distance_cosine(?, ?)", one, one).Scan(&d); err == nil {
		s.sqlDistance = true
		var version string
		if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err == nil {
			logging.StoreDebug("sqlite-vec %s loaded", version)
		}
		return
	}
	logging.StoreWarn("vec_distance_cosine not available; nearest-neighbor queries will scan the collection")
}

// Metric reports cosine distance.
func (s *SQLiteIndex) Metric() Metric { return MetricDistance }

// Query returns the n chunks closest to vector by cosine distance.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, n int) ([]types.ChunkNeighbor, error) {
	if n <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.sqlDistance {
		return s.scanQuery(ctx, vector, n)
	}

	query, args, err := sq.Select(metaColumns...).
		Column(sq.Expr("vec_distance_cosine(embedding, ?) AS distance", encodeVector(vector))).
		From("chunks").
		Where(sq.Eq{"collection": s.collection}).
		OrderBy("distance", "chunk_id").
		Limit(uint64(n)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("nearest-neighbor query failed: %w", err)
	}
	defer rows.Close()

	var out []types.ChunkNeighbor
	for rows.Next() {
		var r metaRow
		var dist float64
		if err := rows.Scan(append(r.dest(), &dist)...); err != nil {
			return nil, fmt.Errorf("failed to scan neighbor: %w", err)
		}
		out = append(out, types.ChunkNeighbor{Meta: r.meta(), Distance: dist})
	}
	return out, rows.Err()
}

// scanQuery computes distances in Go when SQL cannot.
func (s *SQLiteIndex) scanQuery(ctx context.Context, vector []float32, n int) ([]types.ChunkNeighbor, error) {
	query, args, err := sq.Select(metaColumns...).Column("embedding").
		From("chunks").
		Where(sq.Eq{"collection": s.collection}).
		OrderBy("chunk_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan query failed: %w", err)
	}
	defer rows.Close()

	var out []types.ChunkNeighbor
	for rows.Next() {
		var r metaRow
		var blob []byte
		if err := rows.Scan(append(r.dest(), &blob)...); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", r.chunkID, err)
		}
		dist, err := cosineDistance(vector, vec)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", r.chunkID, err)
		}
		out = append(out, types.ChunkNeighbor{Meta: r.meta(), Distance: dist})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// GetByDoc returns all chunks of a document.
func (s *SQLiteIndex) GetByDoc(ctx context.Context, docID string) ([]types.StoredChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args, err := sq.Select(metaColumns...).Column("text").
		From("chunks").
		Where(sq.Eq{"collection": s.collection, "doc_id": docID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chunk lookup failed: %w", err)
	}
	defer rows.Close()

	var out []types.StoredChunk
	for rows.Next() {
		var r metaRow
		var text string
		if err := rows.Scan(append(r.dest(), &text)...); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, types.StoredChunk{ChunkID: r.chunkID, Text: text, Meta: r.meta()})
	}
	return out, rows.Err()
}

// Upsert replaces chunks by id inside one transaction.
func (s *SQLiteIndex) Upsert(ctx context.Context, chunks []types.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, c := range chunks {
		query, args, err := sq.Replace("chunks").
			Columns("collection", "chunk_id", "doc_id", "area", "text", "page_start", "page_end",
				"source_uri", "char_start", "char_end", "token_count", "embedding").
			Values(s.collection, c.ChunkID, c.DocID, c.Area, c.Text, nullInt(c.PageStart), nullInt(c.PageEnd),
				c.SourceURI, c.CharStart, c.CharEnd, c.TokenCount, encodeVector(vectors[i])).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build upsert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert chunk %s: %w", c.ChunkID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	logging.StoreDebug("Upserted %d chunks into %s", len(chunks), s.collection)
	return nil
}

// Reset deletes every chunk of the collection.
func (s *SQLiteIndex) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query, args, err := sq.Delete("chunks").Where(sq.Eq{"collection": s.collection}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to reset collection: %w", err)
	}
	n, _ := res.RowsAffected()
	logging.Store("Reset collection %s (%d chunks removed)", s.collection, n)
	return nil
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// metaRow receives the metaColumns of one row.
type metaRow struct {
	chunkID    string
	docID      string
	area       sql.NullString
	pageStart  sql.NullInt64
	pageEnd    sql.NullInt64
	sourceURI  sql.NullString
	charStart  sql.NullInt64
	charEnd    sql.NullInt64
	tokenCount int
}

func (r *metaRow) dest() []any {
	return []any{&r.chunkID, &r.docID, &r.area, &r.pageStart, &r.pageEnd,
		&r.sourceURI, &r.charStart, &r.charEnd, &r.tokenCount}
}

func (r *metaRow) meta() types.ChunkMeta {
	return types.ChunkMeta{
		DocID:      r.docID,
		Area:       r.area.String,
		PageStart:  intPtr(r.pageStart),
		PageEnd:    intPtr(r.pageEnd),
		SourceURI:  r.sourceURI.String,
		CharStart:  intPtr(r.charStart),
		CharEnd:    intPtr(r.charEnd),
		TokenCount: r.tokenCount,
	}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return types.IntPtr(int(v.Int64))
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

var _ ChunkIndex = (*SQLiteIndex)(nil)
