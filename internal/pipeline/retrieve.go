package pipeline

import (
	"context"
	"fmt"
	"strings"
)

// retrieve searches the corpus with the head of the normalized text and
// fetches a snippet of every hit. A hit that cannot be fetched is dropped
// with a warning naming it.
func (r *run) retrieve(ctx context.Context) (StageStatus, string) {
	st := r.state
	query := strings.TrimSpace(head(st.NormalizedText, queryChars))
	st.RetrievalDebug.Query = query
	if query == "" {
		return StatusSkipped, r.warn("Empty normalized text; cannot retrieve articles.")
	}

	hits, err := r.tools.SearchArticles(ctx, query)
	if err != nil {
		return StatusFailed, r.warn("Failed search_articles: %v", err)
	}
	if len(hits) > r.cfg.TopK {
		hits = hits[:r.cfg.TopK]
	}
	st.RetrievalDebug.Hits = hits
	r.log.Debug("search_articles returned %d hits", len(hits))

	failed := 0
	for _, hit := range hits {
		content, err := r.tools.GetArticleContent(ctx, hit.ID)
		if err != nil {
			r.warn("Failed get_article_content for %s: %v", hit.ID, err)
			failed++
			continue
		}
		st.Retrieved = append(st.Retrieved, EnrichedHit{
			Hit: hit,
			Doc: EnrichedDoc{
				ID:             content.ID,
				Title:          content.Title,
				Area:           content.Area,
				ContentSnippet: head(content.Content, snippetChars),
			},
		})
	}

	if failed > 0 {
		return StatusDegraded, fmt.Sprintf("%d of %d hits not enriched", failed, len(hits))
	}
	return StatusOK, fmt.Sprintf("%d hits", len(hits))
}
