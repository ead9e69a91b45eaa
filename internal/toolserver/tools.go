package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"articlereview/internal/logging"
	"articlereview/internal/retrieval"
)

// SearchTool handles search_articles.
type SearchTool struct {
	engine Engine
}

// NewSearchTool creates a SearchTool.
func NewSearchTool(engine Engine) *SearchTool {
	return &SearchTool{engine: engine}
}

// Definition returns the MCP tool definition for search_articles.
func (t *SearchTool) Definition() mcp.Tool {
	return mcp.NewTool("search_articles",
		mcp.WithDescription("Search the indexed articles by similarity. Returns document-level hits "+
			"as a JSON list of {id, title, area, score}, best first."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query string."),
		),
	)
}

// Handle runs the search.
func (t *SearchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	timer := logging.StartTimer(logging.CategoryTools, "search_articles")
	hits, err := t.engine.SearchArticles(ctx, query, retrieval.SearchOptions{})
	timer.Stop()
	if err != nil {
		logging.ToolsWarn("search_articles failed: %v", err)
		return mcp.NewToolResultErrorFromErr("search failed", err), nil
	}
	return jsonResult(hits)
}

// ContentTool handles get_article_content.
type ContentTool struct {
	engine Engine
}

// NewContentTool creates a ContentTool.
func NewContentTool(engine Engine) *ContentTool {
	return &ContentTool{engine: engine}
}

// Definition returns the MCP tool definition for get_article_content.
func (t *ContentTool) Definition() mcp.Tool {
	return mcp.NewTool("get_article_content",
		mcp.WithDescription("Retrieve the indexed text of one document as {id, title, area, content}."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("The document id."),
		),
	)
}

// Handle reassembles the document.
func (t *ContentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	doc, err := t.engine.GetArticleContent(ctx, id, retrieval.ContentOptions{})
	if err != nil {
		if errors.Is(err, retrieval.ErrInvalidArgument) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		logging.ToolsWarn("get_article_content %q failed: %v", id, err)
		return mcp.NewToolResultErrorFromErr("content lookup failed", err), nil
	}
	return jsonResult(doc)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
