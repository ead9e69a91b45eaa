package pipeline

import (
	"context"
	"encoding/json"

	"articlereview/internal/schema"
)

// review writes the Portuguese peer review. It needs the extraction, so it
// is skipped when the extract stage failed.
func (r *run) review(ctx context.Context) (StageStatus, string) {
	st := r.state
	if st.StageStatus(StageExtract) == StatusFailed {
		st.ReviewMarkdown = ""
		return StatusSkipped, r.warn("No extraction data available for review.")
	}

	area := st.ChosenArea
	if area == "" {
		area = "N/A"
	}
	extraction, err := json.Marshal(st.Extraction)
	if err != nil {
		st.ReviewMarkdown = schema.EnsureMinSections("")
		return StatusFailed, r.warn("Review could not encode extraction: %v", err)
	}

	raw, err := r.model.CompleteWithSystem(ctx, ReviewPrompt(area),
		ReviewUserPrompt(string(extraction), head(st.NormalizedText, reviewInputChars)))
	if err != nil {
		st.ReviewMarkdown = schema.EnsureMinSections("")
		return StatusFailed, r.warn("Review call failed: %v", err)
	}

	out := schema.NewValidator[string](schema.ReviewSchema{}, nil, false).Process(ctx, raw)
	for _, w := range out.Warnings {
		st.Warn("%s", w)
	}
	st.ReviewMarkdown = out.Value
	if !schema.HasMinSections(schema.ParseReview(raw)) {
		return StatusDegraded, "scaffold added"
	}
	return StatusOK, ""
}
