// Package toolserver exposes the retrieval engine as MCP tools.
//
// It is the composition root of the retrieval process: it builds the
// server and registers the two article tools. Ranking and content assembly
// live in the retrieval package.
package toolserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"articlereview/internal/logging"
	"articlereview/internal/retrieval"
	"articlereview/internal/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Name is the server name reported during initialize.
const Name = "article-retrieval"

// Engine is the retrieval surface the tools call.
type Engine interface {
	SearchArticles(ctx context.Context, query string, opts retrieval.SearchOptions) ([]types.SearchHit, error)
	GetArticleContent(ctx context.Context, docID string, opts retrieval.ContentOptions) (types.ArticleContent, error)
}

// New creates the MCP server with both article tools registered.
func New(engine Engine) *server.MCPServer {
	s := server.NewMCPServer(
		Name,
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Search the private article corpus and read indexed articles."),
	)

	search := NewSearchTool(engine)
	s.AddTool(search.Definition(), search.Handle)

	content := NewContentTool(engine)
	s.AddTool(content.Definition(), content.Handle)

	return s
}

// ServeStdio serves s on the given streams until in is closed or ctx ends.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	logging.Tools("Serving MCP tools on stdio")
	err := server.NewStdioServer(s).Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

// ServeHTTP serves s as a streamable HTTP endpoint on addr at /mcp until ctx
// ends.
func ServeHTTP(ctx context.Context, s *server.MCPServer, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Tools("Serving MCP tools on http://%s/mcp", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	}
}
