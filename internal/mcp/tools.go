package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"articlereview/internal/types"
)

// Tool names served by the retrieval service.
const (
	ToolSearchArticles    = "search_articles"
	ToolGetArticleContent = "get_article_content"
)

var (
	searchHitKeys      = []string{"id", "title", "area", "score"}
	articleContentKeys = []string{"id", "title", "area", "content"}
)

// ToolCaller is the part of Bridge used by ArticleTools.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}, timeout time.Duration) (any, error)
}

// ArticleTools is a typed client for the retrieval service tools.
type ArticleTools struct {
	caller  ToolCaller
	timeout time.Duration
}

// NewArticleTools wraps caller. timeout applies to each call.
func NewArticleTools(caller ToolCaller, timeout time.Duration) *ArticleTools {
	return &ArticleTools{caller: caller, timeout: timeout}
}

// SearchArticles calls search_articles. Every element must carry id, title,
// area and score.
func (a *ArticleTools) SearchArticles(ctx context.Context, query string) ([]types.SearchHit, error) {
	v, err := a.caller.CallTool(ctx, ToolSearchArticles, map[string]interface{}{"query": query}, a.timeout)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, protocolErr("%s: expected list, got %T", ToolSearchArticles, v)
	}

	hits := make([]types.SearchHit, 0, len(list))
	for i, item := range list {
		where := fmt.Sprintf("%s hit[%d]", ToolSearchArticles, i)
		var hit types.SearchHit
		if err := decodeWithKeys(item, searchHitKeys, where, &hit); err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// GetArticleContent calls get_article_content. The result must carry id,
// title, area and content.
func (a *ArticleTools) GetArticleContent(ctx context.Context, id string) (types.ArticleContent, error) {
	var out types.ArticleContent
	v, err := a.caller.CallTool(ctx, ToolGetArticleContent, map[string]interface{}{"id": id}, a.timeout)
	if err != nil {
		return out, err
	}
	if err := decodeWithKeys(v, articleContentKeys, ToolGetArticleContent, &out); err != nil {
		return types.ArticleContent{}, err
	}
	return out, nil
}

// decodeWithKeys checks that v is an object holding every key, then decodes
// it into out.
func decodeWithKeys(v any, keys []string, where string, out any) error {
	obj, ok := v.(map[string]any)
	if !ok {
		return protocolErr("%s: expected object, got %T", where, v)
	}
	var missing []string
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return protocolErr("%s: missing keys %v", where, missing)
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return protocolErr("%s: %v", where, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return protocolErr("%s: %v", where, err)
	}
	return nil
}
