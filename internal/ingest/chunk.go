package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"articlereview/internal/types"
)

// pageSeparator is the text PDF extraction places between pages.
const pageSeparator = "\n\n"

// WarnNoChunks is recorded when a document yields no chunks.
const WarnNoChunks = "No chunks were created from the document content."

// ChunkDocument cuts doc.Content into windows of size characters that
// start every size-overlap characters. Offsets count characters, not bytes.
// For paged documents each chunk records the pages its first and last
// character fall on.
func ChunkDocument(doc *types.Document, size, overlap int) ([]types.Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}

	content := []rune(doc.Content)
	pages := pageSpans(doc.Pages)

	var chunks []types.Chunk
	for start, n := 0, 0; start < len(content); start, n = start+size-overlap, n+1 {
		end := min(start+size, len(content))
		text := string(content[start:end])
		ps, pe := locatePages(pages, start, end)
		chunks = append(chunks, types.Chunk{
			ChunkID:    types.ChunkID(doc.DocID, ps, pe, n),
			DocID:      doc.DocID,
			Area:       doc.Area,
			Text:       text,
			SourceURI:  doc.SourceURI,
			PageStart:  ps,
			PageEnd:    pe,
			CharStart:  start,
			CharEnd:    end,
			TokenCount: len(strings.Fields(text)),
		})
	}
	return chunks, nil
}

type pageSpan struct {
	index      int
	start, end int
}

// pageSpans lays pages end to end, separated like extracted PDF text.
func pageSpans(pages []types.Page) []pageSpan {
	spans := make([]pageSpan, 0, len(pages))
	offset := 0
	for _, p := range pages {
		n := utf8.RuneCountInString(p.Text)
		spans = append(spans, pageSpan{index: p.Index, start: offset, end: offset + n})
		offset += n + utf8.RuneCountInString(pageSeparator)
	}
	return spans
}

func locatePages(spans []pageSpan, start, end int) (*int, *int) {
	var ps, pe *int
	for _, s := range spans {
		if s.start <= start && start < s.end {
			ps = types.IntPtr(s.index)
		}
		if s.start < end && end <= s.end {
			pe = types.IntPtr(s.index)
		}
	}
	return ps, pe
}
