package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"articlereview/internal/ingest"
	"articlereview/internal/mcp"
	"articlereview/internal/pipeline"
	"articlereview/internal/schema"
	"articlereview/internal/types"
)

// Output file names under --out-dir.
const (
	extractionFile = "extraction_1.json"
	reviewFile     = "review_1.md"
	agentFile      = "agent_output.json"
)

var (
	inputKind  string
	inputValue string
	outDir     string
	keySpell   string
	render     bool

	warnLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	areaLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// runCmd reviews one article
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Review one article through the full pipeline",
	Long: `Normalizes the input, retrieves related corpus articles through the
retrieval service, classifies the article, extracts its problem, steps and
conclusion, and writes a peer review in Portuguese.

Writes extraction_1.json, review_1.md and agent_output.json to --out-dir and
prints the result with its warnings as JSON on stdout.

Example:
  reviewer run --input-kind pdf --input paper.pdf
  reviewer run --input-kind url --input https://arxiv.org/abs/2401.00001 --render`,
	RunE: runReview,
}

func init() {
	runCmd.Flags().StringVar(&inputKind, "input-kind", "", "Input kind: text, url or pdf (required)")
	runCmd.Flags().StringVar(&inputValue, "input", "", "Raw text, URL or PDF path (required)")
	runCmd.Flags().StringVar(&outDir, "out-dir", "", "Output directory (default from config: out)")
	runCmd.Flags().StringVar(&keySpell, "problem-key-spelling", "", "Spelling in the problem key: artcle or article")
	runCmd.Flags().BoolVar(&render, "render", false, "Render the review as Markdown on stderr")
	_ = runCmd.MarkFlagRequired("input-kind")
	_ = runCmd.MarkFlagRequired("input")
}

func runReview(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	spelling := cfg.Pipeline.ProblemKeySpelling
	if keySpell != "" {
		spelling = keySpell
	}
	if spelling != schema.SpellingHistorical && spelling != schema.SpellingCorrected {
		return fmt.Errorf("invalid --problem-key-spelling %q (valid: artcle, article)", spelling)
	}
	dir := cfg.Pipeline.OutDir
	if outDir != "" {
		dir = outDir
	}

	model, err := newModel(ctx)
	if err != nil {
		return err
	}
	bridge := newBridge()
	defer func() {
		if err := bridge.Close(); err != nil {
			logger.Warn("Closing MCP bridge", zap.Error(err))
		}
	}()

	machine := pipeline.New(
		mcp.NewArticleTools(bridge, cfg.GetToolTimeout()),
		model,
		ingest.NewNormalizer(ingest.DefaultRegistry(nil)),
		pipeline.Config{
			TopK:           cfg.Pipeline.TopK,
			ExtractionKeys: schema.DefaultExtractionKeys(spelling),
			Repair:         true,
		},
	)

	logger.Info("Starting review", zap.String("input_kind", inputKind))
	state := machine.Run(ctx, types.InputKind(inputKind), inputValue)
	for _, st := range state.Stages {
		logger.Debug("Stage finished",
			zap.String("stage", st.Stage),
			zap.String("status", string(st.Status)),
			zap.Int64("duration_ms", st.DurationMS))
	}

	if err := writeOutputs(dir, state); err != nil {
		return err
	}
	logger.Info("Review written",
		zap.String("run_id", state.RunID),
		zap.String("area", state.ChosenArea),
		zap.Int("warnings", len(state.Warnings)),
		zap.String("out_dir", dir))

	printSummary(os.Stderr, state)
	if render {
		if err := renderReview(os.Stderr, state.ReviewMarkdown); err != nil {
			logger.Warn("Markdown render failed", zap.Error(err))
		}
	}
	return encodeJSON(os.Stdout, state.Verbose())
}

// writeOutputs writes the three result files to dir.
func writeOutputs(dir string, state *pipeline.State) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeJSONFile(filepath.Join(dir, extractionFile), state.Extraction); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, reviewFile), []byte(state.ReviewMarkdown), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", reviewFile, err)
	}
	return writeJSONFile(filepath.Join(dir, agentFile), state.Output())
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if err := encodeJSON(f, v); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// encodeJSON writes v indented, leaving non-ASCII and HTML characters as is.
func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, state *pipeline.State) {
	fmt.Fprintf(w, "%s %s\n", areaLabel.Render("area:"), state.ChosenArea)
	for _, msg := range state.Warnings {
		fmt.Fprintf(w, "%s %s\n", warnLabel.Render("warning:"), msg)
	}
}

func renderReview(w io.Writer, md string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
