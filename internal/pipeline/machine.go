// Package pipeline runs one article through the review stages.
//
// A run walks Normalize, Retrieve, Classify, Extract and Review in that
// order and always reaches Done. No stage returns an error to the caller:
// failures become warnings on the State and the stage falls back to a
// default value, so the output files can always be written.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"articlereview/internal/logging"
	"articlereview/internal/schema"
	"articlereview/internal/types"
)

// Tools is the retrieval service as seen by the Retrieve stage.
type Tools interface {
	SearchArticles(ctx context.Context, query string) ([]types.SearchHit, error)
	GetArticleContent(ctx context.Context, id string) (types.ArticleContent, error)
}

// Normalizer turns an input into plain text plus ingestion warnings.
type Normalizer interface {
	Normalize(ctx context.Context, kind types.InputKind, value string) (string, []string, error)
}

// Model is the chat model used by the classify, extract and review stages.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Text limits, in characters.
const (
	queryChars         = 1500
	snippetChars       = 1200
	summaryChars       = 6000
	classifyInputChars = 7000
	extractInputChars  = 12000
	reviewInputChars   = 9000
)

// Config tunes a Machine.
type Config struct {
	// TopK caps the number of search hits that get enriched.
	TopK int
	// ExtractionKeys are the exact keys of the extraction object.
	ExtractionKeys schema.ExtractionKeys
	// Repair enables the single repair call on malformed extractions.
	Repair bool
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		TopK:           5,
		ExtractionKeys: schema.DefaultExtractionKeys(schema.SpellingHistorical),
		Repair:         true,
	}
}

// Machine holds the collaborators shared by every run. It keeps no per-run
// state and can be used for several runs.
type Machine struct {
	tools      Tools
	model      Model
	normalizer Normalizer
	cfg        Config
}

// New creates a Machine.
func New(tools Tools, model Model, normalizer Normalizer, cfg Config) *Machine {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.ExtractionKeys == (schema.ExtractionKeys{}) {
		cfg.ExtractionKeys = DefaultConfig().ExtractionKeys
	}
	return &Machine{tools: tools, model: model, normalizer: normalizer, cfg: cfg}
}

// run is the per-run view of the machine.
type run struct {
	*Machine
	state *State
	log   *logging.RequestLogger
}

// step runs one stage and reports how it ended.
func (r *run) step(ctx context.Context, s Stage) (StageStatus, string) {
	switch s {
	case StageNormalize:
		return r.normalize(ctx)
	case StageRetrieve:
		return r.retrieve(ctx)
	case StageClassify:
		return r.classify(ctx)
	case StageExtract:
		return r.extract(ctx)
	case StageReview:
		return r.review(ctx)
	}
	return StatusSkipped, "no such stage"
}

// Run processes one input and returns the final state.
func (m *Machine) Run(ctx context.Context, kind types.InputKind, value string) *State {
	state := NewState(uuid.NewString(), kind, value, m.cfg.ExtractionKeys)
	r := &run{Machine: m, state: state, log: logging.WithRequestID(logging.CategoryPipeline, state.RunID).WithField("kind", kind)}

	timer := logging.StartTimer(logging.CategoryPipeline, "Run")
	defer timer.Stop()
	r.log.Info("Starting run (kind=%s, %d chars)", kind, len(value))

	for s := StageNormalize; s != StageDone; s = s.Next() {
		start := time.Now()
		status, note := r.step(ctx, s)
		d := time.Since(start)
		state.record(s, status, d, note)
		if status == StatusOK {
			r.log.Debug("stage %s ok in %v", s, d)
		} else {
			r.log.Warn("stage %s %s in %v: %s", s, status, d, note)
		}
	}

	r.log.Info("Run finished: area=%q, %d warnings", state.ChosenArea, len(state.Warnings))
	return state
}

// warn records a warning on the state and returns it for the stage note.
func (r *run) warn(format string, args ...any) string {
	r.state.Warn(format, args...)
	return r.state.Warnings[len(r.state.Warnings)-1]
}

// head returns the first n characters of s.
func head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
