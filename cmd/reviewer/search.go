package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"articlereview/internal/mcp"
)

var (
	fetchID   string
	listTools bool
)

// searchCmd calls the retrieval tools through the same bridge the pipeline uses
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query the retrieval service by hand",
	Long: `Connects to the retrieval service the way reviewer run does and calls
search_articles with the query, or get_article_content with --id.

Examples:
  reviewer search "randomized controlled trial of statins"
  reviewer search --id doc_A
  reviewer search --list`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&fetchID, "id", "", "Fetch the content of this article instead of searching")
	searchCmd.Flags().BoolVar(&listTools, "list", false, "List the tools the service advertises")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := newBridge()
	defer bridge.Close()

	sess, err := bridge.EnsureSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to reach retrieval service: %w", err)
	}
	logger.Debug("Connected", zap.String("server", sess.Server.Name), zap.String("version", sess.Server.Version))

	if listTools {
		tools, err := bridge.ListTools(ctx)
		if err != nil {
			return err
		}
		for _, t := range tools {
			fmt.Printf("%-22s %s\n", t.Name, t.Description)
		}
		return nil
	}

	articles := mcp.NewArticleTools(bridge, cfg.GetToolTimeout())
	if fetchID != "" {
		content, err := articles.GetArticleContent(ctx, fetchID)
		if err != nil {
			return err
		}
		return encodeJSON(os.Stdout, content)
	}

	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return fmt.Errorf("a query, --id or --list is required")
	}
	hits, err := articles.SearchArticles(ctx, query)
	if err != nil {
		return err
	}
	return encodeJSON(os.Stdout, hits)
}
