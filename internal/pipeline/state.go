package pipeline

import (
	"fmt"
	"time"

	"articlereview/internal/schema"
	"articlereview/internal/types"
)

// Stage identifies a step of the review pipeline.
type Stage int

const (
	StageNormalize Stage = iota
	StageRetrieve
	StageClassify
	StageExtract
	StageReview
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageNormalize:
		return "normalize"
	case StageRetrieve:
		return "retrieve"
	case StageClassify:
		return "classify"
	case StageExtract:
		return "extract"
	case StageReview:
		return "review"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Next returns the stage that always follows s.
func (s Stage) Next() Stage {
	if s >= StageDone {
		return StageDone
	}
	return s + 1
}

// StageStatus is how a stage ended.
type StageStatus string

const (
	StatusOK       StageStatus = "ok"
	StatusDegraded StageStatus = "degraded"
	StatusSkipped  StageStatus = "skipped"
	StatusFailed   StageStatus = "failed"
)

// StageRecord is one entry of the stage trace.
type StageRecord struct {
	Stage      string      `json:"stage"`
	Status     StageStatus `json:"status"`
	DurationMS int64       `json:"duration_ms"`
	Note       string      `json:"note,omitempty"`
}

// EnrichedDoc is the part of a retrieved article kept in the state.
type EnrichedDoc struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Area           string `json:"area"`
	ContentSnippet string `json:"content_snippet"`
}

// EnrichedHit pairs a search hit with its fetched content.
type EnrichedHit struct {
	Hit types.SearchHit `json:"hit"`
	Doc EnrichedDoc     `json:"doc"`
}

// RetrievalDebug keeps the query and the raw hits for inspection.
type RetrievalDebug struct {
	Query string            `json:"query"`
	Hits  []types.SearchHit `json:"hits"`
}

// State is threaded through every stage of one run. Each stage owns a set
// of fields and always leaves them at a usable value.
type State struct {
	RunID      string          `json:"run_id"`
	InputKind  types.InputKind `json:"input_kind"`
	InputValue string          `json:"input_value"`

	NormalizedText string            `json:"normalized_text"`
	Retrieved      []EnrichedHit     `json:"retrieved"`
	ChosenArea     string            `json:"chosen_area"`
	Rationale      string            `json:"rationale,omitempty"`
	Extraction     schema.Extraction `json:"extraction"`
	ReviewMarkdown string            `json:"review_markdown"`
	Warnings       []string          `json:"warnings"`
	RetrievalDebug RetrievalDebug    `json:"retrieval_debug"`
	Stages         []StageRecord     `json:"stages"`
}

// NewState creates the state for one run with every field at its default.
func NewState(runID string, kind types.InputKind, value string, keys schema.ExtractionKeys) *State {
	return &State{
		RunID:          runID,
		InputKind:      kind,
		InputValue:     value,
		Retrieved:      []EnrichedHit{},
		Extraction:     schema.EmptyExtraction(keys),
		Warnings:       []string{},
		RetrievalDebug: RetrievalDebug{Hits: []types.SearchHit{}},
		Stages:         []StageRecord{},
	}
}

// Warn appends a warning.
func (s *State) Warn(format string, args ...any) {
	s.Warnings = append(s.Warnings, fmt.Sprintf(format, args...))
}

// StageStatus returns how stage ended, or "" if it has not run.
func (s *State) StageStatus(stage Stage) StageStatus {
	for _, r := range s.Stages {
		if r.Stage == stage.String() {
			return r.Status
		}
	}
	return ""
}

func (s *State) record(stage Stage, status StageStatus, d time.Duration, note string) {
	s.Stages = append(s.Stages, StageRecord{
		Stage:      stage.String(),
		Status:     status,
		DurationMS: d.Milliseconds(),
		Note:       note,
	})
}

// Output is the result written to agent_output.json.
type Output struct {
	Area           string            `json:"area"`
	Extraction     schema.Extraction `json:"extraction"`
	ReviewMarkdown string            `json:"review_markdown"`
}

// VerboseOutput is Output plus the warnings, printed after a run.
type VerboseOutput struct {
	Output
	Warnings []string `json:"warnings"`
}

// Output returns the run result.
func (s *State) Output() Output {
	return Output{Area: s.ChosenArea, Extraction: s.Extraction, ReviewMarkdown: s.ReviewMarkdown}
}

// Verbose returns the run result with warnings.
func (s *State) Verbose() VerboseOutput {
	return VerboseOutput{Output: s.Output(), Warnings: s.Warnings}
}
