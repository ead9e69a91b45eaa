// Command reviewer classifies, summarizes and reviews scientific articles
// against a private corpus.
//
//	reviewer index             build the chunk index from ARTICLES_DIR
//	reviewer serve             serve search_articles and get_article_content over MCP
//	reviewer run               review one article (text, pdf or url)
//	reviewer search <query>    call the retrieval tools by hand
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"articlereview/internal/config"
	"articlereview/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	envFile    string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "reviewer",
	Short: "Article reviewer - retrieval-grounded classification, extraction and review",
	Long: `reviewer runs an article through a fixed five-stage pipeline:
normalize, retrieve, classify, extract and review.

Retrieval goes through an MCP tool server (reviewer serve) backed by a
chunk index built with reviewer index. Every stage degrades to a default
value with a warning instead of failing the run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}

		// stdout carries tool traffic for serve and JSON for run; logs go to stderr.
		zcfg := zap.NewProductionConfig()
		zcfg.OutputPaths = []string{"stderr"}
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		if err := logging.Initialize(ws, logging.Settings{
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Categories: cfg.Logging.Categories,
			Level:      level,
			JSONFormat: cfg.Logging.JSONFormat,
		}); err != nil {
			return fmt.Errorf("failed to initialize category logs: %w", err)
		}
		logging.Boot("reviewer %s (config %q)", cmd.Name(), configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "reviewer.yaml", "Config file (missing file means defaults)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory for category logs (default: current)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
