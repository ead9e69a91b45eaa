package pipeline

import (
	"context"

	"articlereview/internal/schema"
)

// extract fills the three extraction keys. A malformed answer gets one
// repair call; whatever remains is coerced into the exact shape.
func (r *run) extract(ctx context.Context) (StageStatus, string) {
	st := r.state
	keys := r.cfg.ExtractionKeys

	raw, err := r.model.CompleteWithSystem(ctx, ExtractionPrompt(keys), head(st.NormalizedText, extractInputChars))
	if err != nil {
		st.Extraction = schema.EmptyExtraction(keys)
		return StatusFailed, r.warn("Extractor call failed: %v", err)
	}

	out := schema.NewValidator[schema.Extraction](schema.NewExtractionSchema(keys), r.model, r.cfg.Repair).Process(ctx, raw)
	for _, w := range out.Warnings {
		st.Warn("%s", w)
	}
	st.Extraction = out.Value

	switch {
	case out.Degraded:
		return StatusDegraded, "coerced"
	case out.Repaired:
		return StatusDegraded, "repaired"
	}
	return StatusOK, ""
}
